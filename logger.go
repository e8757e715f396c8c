package firmstore

import "log"

// Logger interface for structured logging.
// Implementations should be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoOpLogger discards all log messages. Used as the default when no logger
// is configured.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}

// StdLogger logs to the standard library logger. Handy for quick debugging
// without wiring a structured logger.
type StdLogger struct{}

func (s *StdLogger) Debug(msg string, fields map[string]interface{}) {
	log.Printf("[DEBUG] %s %v", msg, fields)
}

func (s *StdLogger) Info(msg string, fields map[string]interface{}) {
	log.Printf("[INFO] %s %v", msg, fields)
}

func (s *StdLogger) Warn(msg string, fields map[string]interface{}) {
	log.Printf("[WARN] %s %v", msg, fields)
}

func (s *StdLogger) Error(msg string, fields map[string]interface{}) {
	log.Printf("[ERROR] %s %v", msg, fields)
}
