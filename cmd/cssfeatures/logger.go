package main

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logLevels are the accepted values of --log-level.
var logLevels = []string{"none", "normal", "debug"}

// newLogger returns the console logger used by every subcommand.
// All output goes to w so that stdout stays reserved for reports and JSON.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	var min zapcore.Level
	switch strings.ToLower(level) {
	case "none":
		return zap.NewNop(), nil
	case "", "normal":
		min = zapcore.InfoLevel
	case "debug":
		min = zapcore.DebugLevel
	default:
		return nil, fmt.Errorf("unknown log level %q (available: %s)", level, strings.Join(logLevels, ", "))
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	ec.TimeKey = zapcore.OmitKey
	ec.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(zapcore.AddSync(w)), min)
	return zap.New(core).Named("cssfeatures"), nil
}
