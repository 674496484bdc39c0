package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/guestpass-service/internal/cache"
	"github.com/spec-kit/guestpass-service/internal/config"
	"github.com/spec-kit/guestpass-service/internal/domain"
	"github.com/spec-kit/guestpass-service/internal/observability"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// Job names, also used on the CLI and admin API.
const (
	JobExpiryNotice = "expiry-notice"
	JobAutoRenewal  = "auto-reregister"
)

// Lifecycle is the part of the lifecycle service the jobs drive.
type Lifecycle interface {
	Now() time.Time
	FindExpiringSoon(ctx context.Context, within time.Duration) ([]domain.Registration, error)
	FindAutoRenewalCandidates(ctx context.Context, within time.Duration) ([]domain.Registration, error)
	Submit(ctx context.Context, id string, actor domain.Actor) (*domain.Registration, error)
}

// OwnerNotifications sends the owner-facing messages.
type OwnerNotifications interface {
	NotifyExpiring(ctx context.Context, reg *domain.Registration) error
	NotifyRenewed(ctx context.Context, reg *domain.Registration) error
	NotifyRenewalFailed(ctx context.Context, reg *domain.Registration, detail string) error
}

// JobDependencies bundles collaborators shared by the jobs.
type JobDependencies struct {
	Lifecycle     Lifecycle
	Notifications OwnerNotifications
	Ledger        cache.NoticeLedger
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewJobs builds the job table from configuration.
func NewJobs(cfg config.SchedulerConfig, deps JobDependencies) []Job {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Ledger == nil {
		deps.Ledger = cache.NewMemoryLedger()
	}
	notice := &ExpiryNoticeJob{cfg: cfg, deps: deps}
	renewal := &AutoRenewalJob{cfg: cfg, deps: deps}
	return []Job{
		{Name: JobExpiryNotice, Interval: cfg.NotificationInterval(), RunOnStart: cfg.RunOnStart, Run: notice.Run},
		{Name: JobAutoRenewal, Interval: cfg.RenewalInterval(), RunOnStart: cfg.RunOnStart, Run: renewal.Run},
	}
}

type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeFailed
	outcomeSkipped
)

// forEach runs fn for every registration with at most limit in flight, each under its
// own timeout. One item never cancels another.
func forEach(ctx context.Context, regs []domain.Registration, limit int, timeout time.Duration, fn func(context.Context, *domain.Registration) itemOutcome) JobReport {
	if limit <= 0 {
		limit = 1
	}
	report := JobReport{Found: len(regs)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range regs {
		reg := &regs[i]
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			out := fn(itemCtx, reg)
			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeSucceeded:
				report.Succeeded++
			case outcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (o itemOutcome) label() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// ExpiryNoticeJob warns owners whose registrations expire within the notice window.
// Each expiry instant is announced at most once.
type ExpiryNoticeJob struct {
	cfg  config.SchedulerConfig
	deps JobDependencies
}

func (j *ExpiryNoticeJob) Run(ctx context.Context) (JobReport, error) {
	window := time.Duration(j.cfg.NoticeWindowHours) * time.Hour
	regs, err := j.deps.Lifecycle.FindExpiringSoon(ctx, window)
	if err != nil {
		return JobReport{}, err
	}
	return forEach(ctx, regs, j.cfg.Concurrency, j.cfg.ItemTimeout(), func(ctx context.Context, reg *domain.Registration) itemOutcome {
		out := j.notify(ctx, reg, window)
		j.deps.Metrics.RecordJobItem(JobExpiryNotice, out.label())
		return out
	}), nil
}

func (j *ExpiryNoticeJob) notify(ctx context.Context, reg *domain.Registration, window time.Duration) itemOutcome {
	log := j.deps.Logger.With(zap.String("job", JobExpiryNotice), zap.String("registration_id", reg.ID))
	if j.cfg.SkipNoticeForAutoRenewing && reg.IsActive && reg.AutoReregister {
		log.Debug("skipping notice, renewal job owns this registration")
		return outcomeSkipped
	}

	key := NoticeKey(reg)
	ttl := reg.ExpiresAt.Sub(j.deps.Lifecycle.Now()) + window
	claimed, err := j.deps.Ledger.Claim(ctx, key, ttl)
	if err != nil {
		// Ledger down: send anyway and accept a possible repeat.
		log.Warn("notice ledger unavailable", zap.Error(err))
		claimed = true
	}
	if !claimed {
		return outcomeSkipped
	}

	if err := j.deps.Notifications.NotifyExpiring(ctx, reg); err != nil {
		log.Warn("expiry notice not delivered", zap.Error(err))
		if relErr := j.deps.Ledger.Release(context.WithoutCancel(ctx), key); relErr != nil {
			log.Warn("release notice claim", zap.Error(relErr))
		}
		return outcomeFailed
	}
	log.Info("expiry notice sent", zap.Time("expires_at", *reg.ExpiresAt))
	return outcomeSucceeded
}

// NoticeKey identifies one expiry instant of one registration.
func NoticeKey(reg *domain.Registration) string {
	return reg.ID + "@" + reg.ExpiresAt.UTC().Format(time.RFC3339)
}

// AutoRenewalJob resubmits active, auto-renewing registrations nearing expiry as the
// system actor. Failures are reported to the owner and left for the next pass.
type AutoRenewalJob struct {
	cfg  config.SchedulerConfig
	deps JobDependencies
}

func (j *AutoRenewalJob) Run(ctx context.Context) (JobReport, error) {
	lead := time.Duration(j.cfg.RenewalLeadWindowHours) * time.Hour
	regs, err := j.deps.Lifecycle.FindAutoRenewalCandidates(ctx, lead)
	if err != nil {
		return JobReport{}, err
	}
	return forEach(ctx, regs, j.cfg.Concurrency, j.cfg.ItemTimeout(), func(ctx context.Context, reg *domain.Registration) itemOutcome {
		out := j.renew(ctx, reg)
		j.deps.Metrics.RecordJobItem(JobAutoRenewal, out.label())
		return out
	}), nil
}

func (j *AutoRenewalJob) renew(ctx context.Context, reg *domain.Registration) itemOutcome {
	log := j.deps.Logger.With(zap.String("job", JobAutoRenewal), zap.String("registration_id", reg.ID))

	updated, err := j.deps.Lifecycle.Submit(ctx, reg.ID, domain.SystemActor())
	if apperrors.HasCode(err, apperrors.CodeConflict) {
		log.Info("submission already in progress, leaving it")
		return outcomeSkipped
	}
	if err != nil {
		detail := apperrors.Detail(err)
		if detail == "" {
			detail = "system error: " + err.Error()
		}
		log.Warn("auto re-registration failed", zap.String("detail", detail))
		if nerr := j.deps.Notifications.NotifyRenewalFailed(context.WithoutCancel(ctx), reg, detail); nerr != nil {
			log.Warn("renewal failure notice not delivered", zap.Error(nerr))
		}
		return outcomeFailed
	}

	log.Info("auto re-registration succeeded",
		zap.Time("expires_at", *updated.ExpiresAt),
		zap.Int("submission_count", updated.SubmissionCount))
	if nerr := j.deps.Notifications.NotifyRenewed(ctx, updated); nerr != nil {
		log.Warn("renewal notice not delivered", zap.Error(nerr))
	}
	return outcomeSucceeded
}
