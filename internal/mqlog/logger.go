// Package mqlog provides the structured logging conventions shared by the
// Client, Producer, Consumer, and Publisher/Subscriber components.
package mqlog

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names for structured logging.
const (
	ComponentClient     = "client"
	ComponentProducer   = "producer"
	ComponentConsumer   = "consumer"
	ComponentPayload    = "payload"
	ComponentPublisher  = "publisher"
	ComponentSubscriber = "subscriber"
)

// Canonical field names used across the package.
const (
	FieldNamespace = "namespace"
	FieldStream    = "stream"
	FieldGroup     = "group"
	FieldConsumer  = "consumer"
	FieldMessageID = "message_id"
	FieldChannel   = "channel"
)

// New creates a zap.Logger with the given level and format.
// level can be debug, info, warn, or error; format can be json or console.
// An empty level defaults to info, which means the DEBUG-level protocol
// logging this package emits is silent unless a caller explicitly opts in.
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), lvl)
	return zap.New(core), nil
}

// Component returns logger scoped with a component field, matching the
// teacher's NewComponentLogger convention.
func Component(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
