package service

import (
	"github.com/spec-kit/guestpass-service/internal/domain"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// Allowed is the single authorization rule for lifecycle operations. reg may be nil
// for operations that do not target one registration; only ScopeAdmin makes sense then.
func Allowed(actor domain.Actor, reg *domain.Registration, scope domain.Scope) bool {
	if actor.Privileged() {
		return true
	}
	switch scope {
	case domain.ScopeOwner:
		return reg != nil && actor.ID != "" && reg.OwnerID == actor.ID
	default:
		return false
	}
}

func authorize(actor domain.Actor, reg *domain.Registration, scope domain.Scope) error {
	if Allowed(actor, reg, scope) {
		return nil
	}
	if scope == domain.ScopeAdmin {
		return apperrors.NewForbidden("admin privileges required")
	}
	return apperrors.NewForbidden("registration belongs to another user")
}
