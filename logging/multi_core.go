package logging

import (
	"go.uber.org/zap/zapcore"
)

// NewMultiCoreWithWriters creates a zapcore.Core that tees entries to a
// console writer and a file writer at the same minimum level.
//
// The file side always uses JSON encoding so logs stay machine-parseable.
// The console side is human-readable in development mode and JSON in
// production.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}
