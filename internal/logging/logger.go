// Package logging builds the shared zap logger for docrouter.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger from the given level and format.
//
// Level is one of debug, info, warn, error. Format is "json" for
// production output or "console" for development.
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q (supported: json, console)", format)
	}

	ws, _, err := zap.Open("stderr")
	if err != nil {
		return nil, fmt.Errorf("failed to open log sink: %w", err)
	}

	core := zapcore.NewCore(encoder, ws, lvl)
	return zap.New(core, zap.AddCaller()), nil
}
