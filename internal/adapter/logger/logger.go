package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type ZapLogger struct {
	z *zap.Logger
}

// New builds a JSON logger for production and a console logger otherwise.
// Every entry carries the service and hostname fields.
func New(service, env, level string) (*ZapLogger, error) {
	var cfg zap.Config
	if strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.MessageKey = "message"

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	hostname, _ := os.Hostname()
	z, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", service), zap.String("hostname", hostname)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &ZapLogger{z: z}, nil
}

// NewNop discards everything. Used in tests.
func NewNop() *ZapLogger {
	return &ZapLogger{z: zap.NewNop()}
}

func (l *ZapLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.z.Info(message, fields(action, requestID, details)...)
}

func (l *ZapLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.z.Debug(message, fields(action, requestID, details)...)
}

func (l *ZapLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	l.z.Error(message, append(fields(action, requestID, details), zap.Error(err))...)
}

func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}

func fields(action, requestID string, details map[string]interface{}) []zap.Field {
	fs := make([]zap.Field, 0, 3)
	fs = append(fs, zap.String("action", action))
	if requestID != "" {
		fs = append(fs, zap.String("request_id", requestID))
	}
	if len(details) > 0 {
		fs = append(fs, zap.Any("details", details))
	}
	return fs
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored by the HTTP middleware, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
