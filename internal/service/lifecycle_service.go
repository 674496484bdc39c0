package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/guestpass-service/internal/cache"
	"github.com/spec-kit/guestpass-service/internal/config"
	"github.com/spec-kit/guestpass-service/internal/domain"
	"github.com/spec-kit/guestpass-service/internal/events"
	"github.com/spec-kit/guestpass-service/internal/executor"
	"github.com/spec-kit/guestpass-service/internal/observability"
	"github.com/spec-kit/guestpass-service/internal/repository"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// MinSearchLength is the shortest query Search accepts.
const MinSearchLength = 2

// LifecycleService owns expiry computation, the user flags and portal submissions.
// Every mutation of a registration goes through it.
type LifecycleService struct {
	registrations repository.RegistrationRepository
	executor      executor.SubmissionExecutor
	lock          cache.SubmissionLock
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	clock         func() time.Time
	cfg           config.LifecycleConfig

	flights singleflight.Group
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	RegistrationRepo repository.RegistrationRepository
	Executor         executor.SubmissionExecutor
	Lock             cache.SubmissionLock
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Clock            func() time.Time
}

// NewLifecycleService constructs the service. Lock, Dispatcher, Logger and Clock are optional.
func NewLifecycleService(cfg config.LifecycleConfig, deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		registrations: deps.RegistrationRepo,
		executor:      deps.Executor,
		lock:          deps.Lock,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		clock:         deps.Clock,
		cfg:           cfg,
	}
	if s.lock == nil {
		s.lock = cache.NewLocalLock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Now returns the service clock reading, in UTC.
func (s *LifecycleService) Now() time.Time {
	return s.clock().UTC()
}

// Create normalizes and validates fields, then stores a never-submitted registration owned by actor.
func (s *LifecycleService) Create(ctx context.Context, actor domain.Actor, fields domain.RegistrationFields) (*domain.Registration, error) {
	if strings.TrimSpace(actor.ID) == "" || actor.System {
		return nil, apperrors.NewForbidden("registrations must be created by a user")
	}
	fields = fields.Normalize()
	if problems := fields.Validate(); len(problems) > 0 {
		details := make(map[string]any, len(problems))
		for k, v := range problems {
			details[k] = v
		}
		return nil, apperrors.NewValidationError("invalid registration fields", details)
	}

	reg := &domain.Registration{OwnerID: actor.ID, RegistrationFields: fields}
	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewEvent(events.EventRegistrationCreated, reg, actor, s.Now(), nil))
	return reg, nil
}

// Get loads one registration the actor may see.
func (s *LifecycleService) Get(ctx context.Context, id string, actor domain.Actor) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, reg, domain.ScopeOwner); err != nil {
		return nil, err
	}
	return reg, nil
}

// ListForOwner returns the actor's own registrations, newest first.
func (s *LifecycleService) ListForOwner(ctx context.Context, actor domain.Actor) ([]domain.Registration, error) {
	return s.registrations.ListByOwner(ctx, actor.ID)
}

// Submit sends the registration to the portal. On success the validity window restarts
// at now and the counter is bumped once; on failure nothing is written and the error
// carries the executor detail. Concurrent calls for one id share a single attempt.
func (s *LifecycleService) Submit(ctx context.Context, id string, actor domain.Actor) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, reg, domain.ScopeOwner); err != nil {
		return nil, err
	}

	val, err, _ := s.flights.Do(id, func() (any, error) {
		return s.submitLocked(ctx, reg, actor)
	})
	if err != nil {
		return nil, err
	}
	return val.(*domain.Registration), nil
}

func (s *LifecycleService) submitLocked(ctx context.Context, reg *domain.Registration, actor domain.Actor) (*domain.Registration, error) {
	release, ok, err := s.lock.Acquire(ctx, reg.ID, s.cfg.SubmissionLockTTL())
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("a submission for this registration is already in progress",
			map[string]any{"registration_id": reg.ID})
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release submission lock", zap.String("registration_id", reg.ID), zap.Error(err))
		}
	}()

	// Re-read under the lock so the executor sees the latest field values.
	reg, err = s.registrations.GetByID(ctx, reg.ID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := s.execute(ctx, reg.RegistrationFields)
	s.metrics.ObserveSubmission(actor.Trigger(), res.OK, start)

	if !res.OK {
		s.logger.Warn("submission failed",
			zap.String("registration_id", reg.ID),
			zap.String("trigger", actor.Trigger()),
			zap.String("detail", res.Detail))
		s.publish(ctx, events.NewEvent(events.EventRegistrationSubmissionFailed, reg, actor, s.Now(),
			events.RegistrationSubmissionFailedPayload{Detail: res.Detail}))
		return nil, apperrors.NewSubmissionFailed(res.Detail)
	}

	// The portal has accepted; record it even if the caller has gone away.
	now := s.Now()
	updated, err := s.registrations.RecordSubmission(context.WithoutCancel(ctx), reg.ID, now, domain.ExpiryFor(now))
	if err != nil {
		s.logger.Error("portal accepted submission but recording it failed",
			zap.String("registration_id", reg.ID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("registration submitted",
		zap.String("registration_id", updated.ID),
		zap.String("trigger", actor.Trigger()),
		zap.Int("submission_count", updated.SubmissionCount),
		zap.Time("expires_at", *updated.ExpiresAt))
	s.publish(ctx, events.NewEvent(events.EventRegistrationSubmitted, updated, actor, now,
		events.RegistrationSubmittedPayload{
			ExpiresAt:       *updated.ExpiresAt,
			SubmissionCount: updated.SubmissionCount,
			Detail:          res.Detail,
		}))
	return updated, nil
}

// execute runs the executor under the submission timeout. A deadline or cancellation
// is a failure even if the executor never returns.
func (s *LifecycleService) execute(ctx context.Context, fields domain.RegistrationFields) executor.Result {
	execCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmissionTimeout())
	defer cancel()

	done := make(chan executor.Result, 1)
	go func() {
		done <- s.executor.Submit(execCtx, fields)
	}()

	select {
	case res := <-done:
		return res
	case <-execCtx.Done():
		select {
		case res := <-done:
			return res
		default:
		}
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return executor.Failed("submission timed out")
		}
		return executor.Failed("submission cancelled")
	}
}

// SetActive updates the guest-present flag. Expiry is untouched.
func (s *LifecycleService) SetActive(ctx context.Context, id string, actor domain.Actor, active bool) (*domain.Registration, error) {
	return s.updateFlags(ctx, id, actor, repository.RegistrationFlagsDelta{IsActive: &active})
}

// SetAutoReregister updates the unattended renewal flag.
func (s *LifecycleService) SetAutoReregister(ctx context.Context, id string, actor domain.Actor, enabled bool) (*domain.Registration, error) {
	return s.updateFlags(ctx, id, actor, repository.RegistrationFlagsDelta{AutoReregister: &enabled})
}

func (s *LifecycleService) updateFlags(ctx context.Context, id string, actor domain.Actor, delta repository.RegistrationFlagsDelta) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, reg, domain.ScopeOwner); err != nil {
		return nil, err
	}
	updated, err := s.registrations.UpdateFlags(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewEvent(events.EventRegistrationFlagsChanged, updated, actor, s.Now(),
		events.RegistrationFlagsChangedPayload{IsActive: updated.IsActive, AutoReregister: updated.AutoReregister}))
	return updated, nil
}

// Search matches query case-insensitively against first name, last name, car model
// and plate. Only the actor's rows are searched unless adminScope is set, which
// requires a privileged actor. Results are newest first, ties broken by id.
func (s *LifecycleService) Search(ctx context.Context, actor domain.Actor, query string, adminScope bool) ([]domain.Registration, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		return nil, apperrors.NewValidationError("search query must be at least 2 characters",
			map[string]any{"q": "too short"})
	}
	filter := repository.RegistrationFilter{SearchTerm: &query}
	if adminScope {
		if err := authorize(actor, nil, domain.ScopeAdmin); err != nil {
			return nil, err
		}
	} else {
		owner := actor.ID
		filter.OwnerID = &owner
	}
	return s.registrations.Search(ctx, filter)
}

// FindExpiringSoon returns submitted registrations whose expiry lies in [now, now+within],
// regardless of flags, soonest first.
func (s *LifecycleService) FindExpiringSoon(ctx context.Context, within time.Duration) ([]domain.Registration, error) {
	now := s.Now()
	to := now.Add(within)
	return s.registrations.ListWhere(ctx, repository.RegistrationFilter{
		ExpiresFrom:  &now,
		ExpiresTo:    &to,
		SortByExpiry: true,
	})
}

// FindAutoRenewalCandidates returns active, auto-renewing registrations whose expiry
// lies in [now, now+within], soonest first.
func (s *LifecycleService) FindAutoRenewalCandidates(ctx context.Context, within time.Duration) ([]domain.Registration, error) {
	now := s.Now()
	to := now.Add(within)
	active, auto := true, true
	return s.registrations.ListWhere(ctx, repository.RegistrationFilter{
		IsActive:       &active,
		AutoReregister: &auto,
		ExpiresFrom:    &now,
		ExpiresTo:      &to,
		SortByExpiry:   true,
	})
}

// ListExpiringSoon is FindExpiringSoon for admin callers.
func (s *LifecycleService) ListExpiringSoon(ctx context.Context, actor domain.Actor, within time.Duration) ([]domain.Registration, error) {
	if err := authorize(actor, nil, domain.ScopeAdmin); err != nil {
		return nil, err
	}
	return s.FindExpiringSoon(ctx, within)
}

// ListAutoRenewing returns every active, auto-renewing registration. Admin only.
func (s *LifecycleService) ListAutoRenewing(ctx context.Context, actor domain.Actor) ([]domain.Registration, error) {
	if err := authorize(actor, nil, domain.ScopeAdmin); err != nil {
		return nil, err
	}
	active, auto := true, true
	return s.registrations.ListWhere(ctx, repository.RegistrationFilter{IsActive: &active, AutoReregister: &auto})
}

// Stats summarises the store. Admin only.
func (s *LifecycleService) Stats(ctx context.Context, actor domain.Actor) (repository.RegistrationStats, error) {
	if err := authorize(actor, nil, domain.ScopeAdmin); err != nil {
		return repository.RegistrationStats{}, err
	}
	return s.registrations.Stats(ctx)
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
