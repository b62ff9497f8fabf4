package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender will create human readable tab delimited outputs.
type ConsoleAppender struct {
	encoder zapcore.Encoder
	out     zapcore.WriteSyncer
}

// NewStdoutAppender creates a new appender that writes human readable log lines to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewWriterAppender(zapcore.Lock(os.Stdout))
}

// NewWriterAppender creates a new appender that writes human readable log lines to `out`.
func NewWriterAppender(out zapcore.WriteSyncer) ConsoleAppender {
	return ConsoleAppender{
		encoder: zapcore.NewConsoleEncoder(NewLoggerConfig().EncoderConfig),
		out:     out,
	}
}

// NewFileAppender creates an appender writing to a size-rotated log file at `path`.
func NewFileAppender(path string) ConsoleAppender {
	return NewWriterAppender(zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    64, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}))
}

// Write outputs the log entry to the underlying writer.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync flushes the underlying writer.
func (appender ConsoleAppender) Sync() error {
	return appender.out.Sync()
}
