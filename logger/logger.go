package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SessionKey is the log field holding the session id
const SessionKey = "session"

// Options configures the logger
type Options struct {
	// Level is a logrus level name, eg: "debug", defaults to info
	Level string
	// File is an optional log file, rotated by size
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// NoColors disables terminal colors
	NoColors bool
	// ReportCaller adds the calling file, line and function to entries
	ReportCaller bool
	// Output defaults to stderr
	Output io.Writer
}

// New returns a logger writing to the console and, when File is set, to a
// rotating log file
func New(opts Options) (*logrus.Logger, error) {

	level := logrus.InfoLevel

	if opts.Level != "" {

		lvl, err := logrus.ParseLevel(opts.Level)

		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}

		level = lvl
	}

	log := logrus.New()
	log.SetLevel(level)

	log.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColors,
		TimestampFormat: "2006-01-02 15:04:05.000",
		HideKeys:        false,
		CallerFirst:     true,
		FieldsOrder:     []string{SessionKey, "seq", "generation"},
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
		},
	})

	out := opts.Output

	if out == nil {
		out = os.Stderr
	}

	writers := []io.Writer{out}

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    opts.MaxSizeMB,
			MaxAge:     opts.MaxAgeDays,
			MaxBackups: opts.MaxBackups,
		})
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.SetReportCaller(opts.ReportCaller)

	return log, nil
}

// WithSession returns an entry tagged with a new random session id, used to
// tell program runs apart in a shared log file
func WithSession(log logrus.FieldLogger) *logrus.Entry {
	return log.WithField(SessionKey, uuid.NewString())
}
