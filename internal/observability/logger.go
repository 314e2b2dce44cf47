// Package observability holds the process-wide logging setup. CLI
// commands and the HTTP server share one zap logger configured here.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process logger. It defaults to a console encoder at
// info level so commands can log before configuration is loaded;
// Configure replaces it once the log settings are known.
var CLILogger = newConsoleLogger(zapcore.InfoLevel)

// Configure rebuilds CLILogger from the given settings. Level accepts
// zap's textual levels (debug, info, warn, error); format is "console"
// or "json". Unknown values fall back to info/console.
func Configure(level, format string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	if format == "json" {
		CLILogger = newJSONLogger(lvl)
		return
	}
	CLILogger = newConsoleLogger(lvl)
}

// Sync flushes buffered log entries. Safe to call at process exit;
// stderr sync errors are ignored.
func Sync() {
	_ = CLILogger.Sync()
}

func newConsoleLogger(lvl zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core)
}

func newJSONLogger(lvl zapcore.Level) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core)
}
