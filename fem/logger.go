package fem

import (
	"fmt"
	"io"
	"log"
)

// Level is the minimum severity a Model logs.
type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps "debug", "info", "warning" and "error" onto a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

type logger struct {
	out   *log.Logger
	level Level
}

func newLogger() *logger {
	return &logger{out: log.New(io.Discard, "", 0), level: LevelInfo}
}

func (l *logger) logf(level Level, tag, format string, args ...any) {
	if level < l.level {
		return
	}
	l.out.Printf(tag+" "+format, args...)
}

func (l *logger) Debugf(format string, args ...any) { l.logf(LevelDebug, "DEBUG", format, args...) }

func (l *logger) Infof(format string, args ...any) { l.logf(LevelInfo, "INFO", format, args...) }

func (l *logger) Warnf(format string, args ...any) { l.logf(LevelWarning, "WARN", format, args...) }
