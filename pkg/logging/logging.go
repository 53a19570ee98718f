package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Formatter renders entries as "[YYYY-MM-DD HH:MM:SS] LEVEL: message", the
// line format the station writes to its diagnostic stream.
type Formatter struct{}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s: %s\n",
		entry.Time.Format("2006-01-02 15:04:05"),
		levelName(entry.Level),
		entry.Message)), nil
}

func levelName(level logrus.Level) string {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return "CRITICAL"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.WarnLevel:
		return "WARN"
	default:
		return "INFO"
	}
}

// Logrus represents the logrus logger
type Logrus struct {
	level  string
	output io.Writer
}

// NewLogrus creates a new logrus instance
func NewLogrus(level string, output io.Writer) *Logrus {
	return &Logrus{level: level, output: output}
}

// Get returns a logrus entry for the given context
func (l *Logrus) Get(context string) *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&Formatter{})
	log.SetOutput(l.output)

	return log.WithFields(logrus.Fields{
		"Context": context,
	})
}

// Critical logs at the CRITICAL level without terminating the process; the
// supervisor owns the restart decision.
func Critical(log *logrus.Entry, format string, args ...interface{}) {
	log.Logf(logrus.FatalLevel, format, args...)
}
