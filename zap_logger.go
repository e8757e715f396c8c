package firmstore

import (
	"go.uber.org/zap"
)

// ZapLogger adapts a zap logger to the Logger interface
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

// NewProductionZapLogger creates a production-configured zap logger
func NewProductionZapLogger() (*ZapLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger}, nil
}

// NewDevelopmentZapLogger creates a development-configured zap logger
func NewDevelopmentZapLogger() (*ZapLogger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger}, nil
}

func (z *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	z.logger.Debug(msg, mapToZapFields(fields)...)
}

func (z *ZapLogger) Info(msg string, fields map[string]interface{}) {
	z.logger.Info(msg, mapToZapFields(fields)...)
}

func (z *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	z.logger.Warn(msg, mapToZapFields(fields)...)
}

func (z *ZapLogger) Error(msg string, fields map[string]interface{}) {
	z.logger.Error(msg, mapToZapFields(fields)...)
}

// Sync flushes buffered log entries
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}

func mapToZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}
