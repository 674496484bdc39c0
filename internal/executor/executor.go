package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/guestpass-service/internal/domain"
)

// Result reports whether the portal accepted a submission. There is no partial success.
type Result struct {
	OK     bool
	Detail string
}

// SubmissionExecutor performs the external portal submission for one registration.
type SubmissionExecutor interface {
	Submit(ctx context.Context, fields domain.RegistrationFields) Result
}

// Succeeded and Failed build results.
func Succeeded(detail string) Result { return Result{OK: true, Detail: detail} }

func Failed(detail string) Result { return Result{OK: false, Detail: detail} }

// DryRunExecutor accepts every submission without contacting the portal.
type DryRunExecutor struct {
	logger *zap.Logger
}

// NewDryRunExecutor builds the development executor.
func NewDryRunExecutor(logger *zap.Logger) *DryRunExecutor {
	return &DryRunExecutor{logger: logger}
}

func (e *DryRunExecutor) Submit(ctx context.Context, fields domain.RegistrationFields) Result {
	if err := ctx.Err(); err != nil {
		return Failed("submission cancelled: " + err.Error())
	}
	e.logger.Info("dry-run portal submission",
		zap.String("license_plate", fields.LicensePlate),
		zap.String("apartment", fields.ApartmentVisiting))
	return Succeeded("dry run")
}
