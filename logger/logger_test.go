package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func TestNewLevel(t *testing.T) {

	var buf bytes.Buffer

	log, err := New(Options{Level: "warn", NoColors: true, Output: &buf})

	if err != nil {
		t.Fatal(err)
	}

	log.Info("hidden")
	log.WithField("threshold", 0.5).Warn("shown")

	out := buf.String()

	if strings.Contains(out, "hidden") {
		t.Error("info entry written at warn level")
	}

	if !strings.Contains(out, "shown") || !strings.Contains(out, "threshold:0.5") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNewFile(t *testing.T) {

	file := filepath.Join(t.TempDir(), "camdetect.log")

	log, err := New(Options{File: file, NoColors: true, Output: &bytes.Buffer{}})

	if err != nil {
		t.Fatal(err)
	}

	log.Info("to file")

	data, err := os.ReadFile(file)

	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing entry, got %q", data)
	}
}

func TestWithSession(t *testing.T) {

	log := logrus.New()

	a := WithSession(log)
	b := WithSession(log)

	id, ok := a.Data[SessionKey].(string)

	if !ok {
		t.Fatalf("session field missing")
	}

	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("session id is not a uuid: %v", err)
	}

	if a.Data[SessionKey] == b.Data[SessionKey] {
		t.Error("expected distinct session ids")
	}
}
