package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/guestpass-service/internal/domain"
	"github.com/spec-kit/guestpass-service/internal/events"
	"github.com/spec-kit/guestpass-service/internal/notifier"
	"github.com/spec-kit/guestpass-service/internal/observability"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

const expiryLayout = "2006-01-02 15:04 UTC"

// NotificationService formats owner messages and hands them to the notifier.
type NotificationService struct {
	notifier   notifier.Notifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Notifier   notifier.Notifier
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRegistrationCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventRegistrationSubmitted, n.logEvent)
	n.dispatcher.Subscribe(events.EventRegistrationSubmissionFailed, n.logEvent)
	n.dispatcher.Subscribe(events.EventRegistrationFlagsChanged, n.logEvent)
}

func (n *NotificationService) logEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("registration_id", event.RegistrationID),
		zap.String("owner_id", event.OwnerID),
		zap.String("trigger", event.Actor.Trigger),
		zap.Any("payload", event.Payload))
	return nil
}

// NotifyExpiring warns the owner that the validity window is about to close.
func (n *NotificationService) NotifyExpiring(ctx context.Context, reg *domain.Registration) error {
	body := []string{
		"Your parking registration will expire soon!",
		describe(reg),
	}
	if reg.ExpiresAt != nil {
		body = append(body, "Expires at: "+reg.ExpiresAt.UTC().Format(expiryLayout))
	}
	body = append(body, fmt.Sprintf("Resubmit registration %s to renew it.", reg.ID))
	return n.send(ctx, reg, notifier.KindExpiringSoon, "Parking registration expiring soon", body)
}

// NotifyRenewed tells the owner an unattended renewal went through.
func (n *NotificationService) NotifyRenewed(ctx context.Context, reg *domain.Registration) error {
	body := []string{
		"Your parking registration has been automatically renewed!",
		describe(reg),
	}
	if reg.ExpiresAt != nil {
		body = append(body, "New expiration: "+reg.ExpiresAt.UTC().Format(expiryLayout))
	}
	body = append(body, fmt.Sprintf("Submission count: %d", reg.SubmissionCount))
	return n.send(ctx, reg, notifier.KindRenewed, "Automatic re-registration successful", body)
}

// NotifyRenewalFailed tells the owner an unattended renewal did not go through.
func (n *NotificationService) NotifyRenewalFailed(ctx context.Context, reg *domain.Registration, detail string) error {
	body := []string{
		"Failed to automatically renew your parking registration.",
		describe(reg),
		"Error: " + detail,
		fmt.Sprintf("Please resubmit registration %s manually.", reg.ID),
	}
	return n.send(ctx, reg, notifier.KindRenewalFailed, "Automatic re-registration failed", body)
}

func (n *NotificationService) send(ctx context.Context, reg *domain.Registration, kind notifier.Kind, title string, body []string) error {
	msg := notifier.Message{
		Kind:           kind,
		Title:          title,
		Body:           strings.Join(body, "\n"),
		RegistrationID: reg.ID,
	}
	err := n.notifier.Notify(ctx, reg.OwnerID, msg)
	n.metrics.RecordNotification(string(kind), err == nil)
	if err != nil {
		return apperrors.NewNotificationFailed(err)
	}
	return nil
}

func describe(reg *domain.Registration) string {
	return fmt.Sprintf("Guest: %s %s\nVehicle: %s %s (%s)",
		reg.FirstName, reg.LastName, reg.CarMake, reg.CarModel, reg.LicensePlate)
}
