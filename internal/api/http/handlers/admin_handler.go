package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/guestpass-service/internal/service"
	"github.com/spec-kit/guestpass-service/internal/worker"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// JobRunner is the scheduler surface exposed to admins.
type JobRunner interface {
	RunNow(ctx context.Context, name string) (worker.JobReport, error)
	Status() []worker.JobStatus
}

// AdminHandler serves admin-only registration and scheduler endpoints.
type AdminHandler struct {
	registrations *RegistrationsHandler
	service       *service.LifecycleService
	jobs          JobRunner
	noticeWindow  time.Duration
}

// NewAdminHandler constructs handler. jobs may be nil when the scheduler is disabled.
func NewAdminHandler(registrations *RegistrationsHandler, jobs JobRunner) *AdminHandler {
	return &AdminHandler{
		registrations: registrations,
		service:       registrations.service,
		jobs:          jobs,
		noticeWindow:  registrations.noticeWindow,
	}
}

// Search GET /admin/registrations/search?q=.
func (h *AdminHandler) Search(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	regs, err := h.service.Search(c.UserContext(), actor, c.Query("q"), true)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.registrations.renderAll(regs)})
}

// Expiring GET /admin/registrations/expiring?hours=.
func (h *AdminHandler) Expiring(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	window := h.noticeWindow
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 || hours > 168 {
			return apperrors.NewValidationError("hours must be between 1 and 168", map[string]any{"hours": raw})
		}
		window = time.Duration(hours) * time.Hour
	}
	regs, err := h.service.ListExpiringSoon(c.UserContext(), actor, window)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.registrations.renderAll(regs)})
}

// AutoRenewing GET /admin/registrations/auto.
func (h *AdminHandler) AutoRenewing(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	regs, err := h.service.ListAutoRenewing(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.registrations.renderAll(regs)})
}

// Stats GET /admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Jobs GET /admin/jobs.
func (h *AdminHandler) Jobs(c *fiber.Ctx) error {
	if h.jobs == nil {
		return c.JSON(fiber.Map{"data": []worker.JobStatus{}})
	}
	return c.JSON(fiber.Map{"data": h.jobs.Status()})
}

// RunJob POST /admin/jobs/:name/run.
func (h *AdminHandler) RunJob(c *fiber.Ctx) error {
	if h.jobs == nil {
		return apperrors.NewNotFound("job", map[string]any{"name": c.Params("name")})
	}
	report, err := h.jobs.RunNow(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
