package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/guestpass-service/internal/api/dto"
	"github.com/spec-kit/guestpass-service/internal/auth"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// AuthHandler issues actor tokens to the command surface.
type AuthHandler struct {
	issuer *auth.TokenIssuer
}

// NewAuthHandler constructs handler.
func NewAuthHandler(issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// IssueToken POST /auth/token.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token, exp, admin, err := h.issuer.Issue(req.ClientKey, req.ActorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		Admin:       admin,
	}})
}
