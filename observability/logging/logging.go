package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes the logger built by New.
type Options struct {
	Service string
	Env     string
	Level   slog.Level
	// File, when set, receives a copy of every line with size based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return attr
}

// New builds a JSON logger writing to out (stdout when nil) and, when
// configured, to a rotating file. The returned closer releases the file.
func New(out io.Writer, opts Options) (*slog.Logger, io.Closer) {
	if out == nil {
		out = os.Stdout
	}
	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: replaceAttr,
	})
	args := []any{slog.String("service", strings.TrimSpace(opts.Service))}
	if env := strings.TrimSpace(opts.Env); env != "" {
		args = append(args, slog.String("env", env))
	}
	return slog.New(handler).With(args...), closer
}

// Setup installs a stdout JSON logger as the process default and bridges the
// standard library logger onto it.
func Setup(service, env string) *slog.Logger {
	logger, _ := New(os.Stdout, Options{Service: service, Env: env})
	install(logger)
	return logger
}

// SetupWithOptions is Setup with file rotation and level control.
func SetupWithOptions(opts Options) (*slog.Logger, io.Closer) {
	logger, closer := New(os.Stdout, opts)
	install(logger)
	return logger, closer
}

func install(logger *slog.Logger) {
	slog.SetDefault(logger)
	bridge := slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
