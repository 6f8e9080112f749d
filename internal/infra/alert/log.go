package alert

import (
	"context"

	"github.com/vaibhav071104/vaultguard/internal/port"

	"go.uber.org/zap"
)

// LogSink writes alerts to the application log. Default sink for local
// development and tests.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, recipient, subject, body string) error {
	s.logger.Warn("fraud alert",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

var _ port.AlertSink = (*LogSink)(nil)
