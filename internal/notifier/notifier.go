package notifier

import (
	"context"

	"go.uber.org/zap"
)

// Kind names the message template that produced a notification.
type Kind string

const (
	KindExpiringSoon  Kind = "expiring_soon"
	KindRenewed       Kind = "renewed"
	KindRenewalFailed Kind = "renewal_failed"
	KindExpired       Kind = "expired"
)

// Message is what gets delivered to an owner.
type Message struct {
	Kind           Kind   `json:"kind"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	RegistrationID string `json:"registration_id"`
}

// Notifier delivers a message to a registration owner. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, msg Message) error
}

// LogNotifier only writes messages to the log. Used when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ownerID string, msg Message) error {
	n.logger.Info("notification",
		zap.String("owner_id", ownerID),
		zap.String("kind", string(msg.Kind)),
		zap.String("registration_id", msg.RegistrationID),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body))
	return nil
}
