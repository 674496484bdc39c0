package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/guestpass-service/internal/api/dto"
	"github.com/spec-kit/guestpass-service/internal/auth"
	"github.com/spec-kit/guestpass-service/internal/domain"
	"github.com/spec-kit/guestpass-service/internal/service"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// RegistrationsHandler serves an owner's registration endpoints.
type RegistrationsHandler struct {
	service      *service.LifecycleService
	noticeWindow time.Duration
}

// NewRegistrationsHandler constructs handler. noticeWindow drives the derived status.
func NewRegistrationsHandler(lifecycle *service.LifecycleService, noticeWindow time.Duration) *RegistrationsHandler {
	return &RegistrationsHandler{service: lifecycle, noticeWindow: noticeWindow}
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

// Create POST /registrations.
func (h *RegistrationsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reg, err := h.service.Create(c.UserContext(), actor, req.Fields())
	if err != nil {
		return err
	}
	if !req.SubmitNow {
		return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.render(reg)})
	}

	// The row is saved at this point; any submit error is reported inline so the
	// client retries through /submit instead of creating a duplicate.
	outcome := dto.SubmissionOutcome{OK: true}
	if submitted, err := h.service.Submit(c.UserContext(), reg.ID, actor); err != nil {
		outcome = failedOutcome(err)
	} else {
		reg = submitted
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.render(reg), "submission": outcome})
}

func failedOutcome(err error) dto.SubmissionOutcome {
	domainErr := apperrors.ToDomainError(err)
	detail := apperrors.Detail(err)
	if detail == "" {
		detail = domainErr.Message
	}
	return dto.SubmissionOutcome{OK: false, Code: domainErr.Code, Detail: detail}
}

// List GET /registrations.
func (h *RegistrationsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	regs, err := h.service.ListForOwner(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.renderAll(regs)})
}

// Search GET /registrations/search?q=.
func (h *RegistrationsHandler) Search(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	regs, err := h.service.Search(c.UserContext(), actor, c.Query("q"), false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.renderAll(regs)})
}

// Get GET /registrations/:id.
func (h *RegistrationsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	reg, err := h.service.Get(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.render(reg)})
}

// Submit POST /registrations/:id/submit.
func (h *RegistrationsHandler) Submit(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	reg, err := h.service.Submit(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.render(reg)})
}

// SetActive PUT /registrations/:id/active.
func (h *RegistrationsHandler) SetActive(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SetActiveRequest
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return apperrors.NewValidationError("active (boolean) required", nil)
	}
	reg, err := h.service.SetActive(c.UserContext(), c.Params("id"), actor, *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.render(reg)})
}

// SetAutoReregister PUT /registrations/:id/auto-reregister.
func (h *RegistrationsHandler) SetAutoReregister(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SetAutoReregisterRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return apperrors.NewValidationError("enabled (boolean) required", nil)
	}
	reg, err := h.service.SetAutoReregister(c.UserContext(), c.Params("id"), actor, *req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.render(reg)})
}

func (h *RegistrationsHandler) render(reg *domain.Registration) dto.RegistrationResponse {
	return dto.NewRegistrationResponse(reg, h.service.Now(), h.noticeWindow)
}

func (h *RegistrationsHandler) renderAll(regs []domain.Registration) []dto.RegistrationResponse {
	now := h.service.Now()
	items := make([]dto.RegistrationResponse, 0, len(regs))
	for i := range regs {
		items = append(items, dto.NewRegistrationResponse(&regs[i], now, h.noticeWindow))
	}
	return items
}
