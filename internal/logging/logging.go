// Package logging builds the console logger shared by every command.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger. Verbose enables debug output; quiet restricts
// output to warnings and errors. Quiet wins when both are set.
func New(verbose, quiet bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	if quiet {
		level = zapcore.WarnLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.TimeKey = ""

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// Dry logs a would-have action. Every dry-run path goes through this helper
// so the prefix stays uniform.
func Dry(log *zap.SugaredLogger, format string, args ...any) {
	log.Infof("[dry-run] "+format, args...)
}
