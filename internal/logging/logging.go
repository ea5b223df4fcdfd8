// Package logging builds the zap loggers used across the engine.
package logging

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	reqid "github.com/hanpama/opgraph/internal/reqid"
)

// New returns a development logger when debug is set and a production JSON
// logger otherwise. LOG_LEVEL overrides the level of either.
func New(debug bool) (*zap.Logger, error) {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(l)
	}

	log, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

// Exception logs err at error level together with the current stack. Used
// wherever a failure is hidden from the client.
func Exception(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	log.Error(msg, append(fields, zap.Error(err), zap.Stack("stack"))...)
}

// WithRequest annotates log with the request id carried by ctx, if any.
func WithRequest(ctx context.Context, log *zap.Logger) *zap.Logger {
	if id, ok := reqid.FromContext(ctx); ok {
		return log.With(zap.String("request_id", id))
	}
	return log
}
