package camdetect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line, the line number being the class index.
func LoadLabels(file string) ([]string, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	return ReadLabels(f)
}

// ReadLabels reads one label per line from r.  Blank lines inside the file are
// kept so class indexes stay aligned, blank lines at the end are dropped.
func ReadLabels(r io.Reader) ([]string, error) {

	scanner := bufio.NewScanner(r)

	var labels []string

	// read and trim each line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		labels = append(labels, line)
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	return labels, nil
}
