package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("recipient", msg.Recipient),
		zap.String("template", msg.Template),
		zap.String("subject", msg.Subject),
		zap.Any("data", msg.Data),
	)
	return nil
}
