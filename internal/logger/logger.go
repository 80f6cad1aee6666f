// Package logger writes the updater's error log.
//
// Every line has the form
//
//	YYYY/M/D H:Min:S <L>: <message> [key=value ...]
//
// where L is E for critical errors and W for warnings. Info (I) and debug (D)
// lines only appear when the level is lowered below warn.
package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultFileName is the log file created in the working directory.
const DefaultFileName = "error_log_auto_updater.txt"

// Config holds the logger setup.
type Config struct {
	FilePath   string
	Level      zerolog.Level
	Console    io.Writer // optional mirror, e.g. os.Stderr in foreground mode
	MaxBackups int       // previous runs kept beside the fresh file
}

// DefaultConfig returns the configuration used when no flags override it.
func DefaultConfig() Config {
	return Config{
		FilePath:   DefaultFileName,
		Level:      zerolog.WarnLevel,
		MaxBackups: 5,
	}
}

// Logger owns the log file for the lifetime of the process.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New opens a fresh log file. The previous run's file, if any, is rotated
// aside so each run starts with an empty log.
func New(cfg Config) (*Logger, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("log file path is required")
	}

	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}
	if err := file.Rotate(); err != nil {
		return nil, fmt.Errorf("unable to create error log file %s: %w", cfg.FilePath, err)
	}

	writers := []io.Writer{NewWriter(file)}
	if cfg.Console != nil {
		writers = append(writers, NewWriter(cfg.Console))
	}

	return &Logger{
		Logger: zerolog.New(zerolog.MultiLevelWriter(writers...)).
			Level(cfg.Level).
			With().
			Timestamp().
			Logger(),
		file: file,
	}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewWriter formats zerolog events into error log lines on out.
func NewWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:             out,
		NoColor:         true,
		PartsOrder:      []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatTimestamp: formatTimestamp,
		FormatLevel:     formatLevel,
	}
}

// Critical starts an E line. Critical conditions stop the process at startup.
func Critical(l zerolog.Logger) *zerolog.Event {
	return l.Error()
}

// Warning starts a W line. Warnings abandon the current archive or entry only.
func Warning(l zerolog.Logger) *zerolog.Event {
	return l.Warn()
}

// Stamp renders t the way the log prints dates: no zero padding.
func Stamp(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d %d:%d:%d",
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second())
}

func formatTimestamp(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return fmt.Sprint(i)
	}
	t, err := time.Parse(zerolog.TimeFieldFormat, s)
	if err != nil {
		return s
	}
	return Stamp(t)
}

func formatLevel(i interface{}) string {
	level, _ := i.(string)
	switch level {
	case zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		return "E:"
	case zerolog.LevelWarnValue:
		return "W:"
	case zerolog.LevelInfoValue:
		return "I:"
	case zerolog.LevelDebugValue, zerolog.LevelTraceValue:
		return "D:"
	default:
		return "-:"
	}
}
