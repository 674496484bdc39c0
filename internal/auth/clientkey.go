package auth

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// HashClientKey hashes a client key for AUTH_CLIENT_KEY_HASH.
func HashClientKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareClientKey verifies a key against its hashed value.
func CompareClientKey(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// TokenIssuer trades the command surface's client key for an actor token.
type TokenIssuer struct {
	tokens        *TokenManager
	clientKeyHash string
	admins        map[string]struct{}
}

// NewTokenIssuer builds an issuer. Actors listed in adminIDs get the admin claim.
func NewTokenIssuer(tokens *TokenManager, clientKeyHash string, adminIDs []string) *TokenIssuer {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &TokenIssuer{tokens: tokens, clientKeyHash: clientKeyHash, admins: admins}
}

// Issue returns a signed token for actorID when clientKey matches.
func (i *TokenIssuer) Issue(clientKey, actorID string) (string, time.Time, bool, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", time.Time{}, false, apperrors.NewValidationError("actor_id is required", nil)
	}
	if i.clientKeyHash == "" {
		return "", time.Time{}, false, apperrors.NewUnauthorized("token issuance is not configured")
	}
	if err := CompareClientKey(i.clientKeyHash, clientKey); err != nil {
		return "", time.Time{}, false, apperrors.NewUnauthorized("invalid client key")
	}
	_, admin := i.admins[actorID]
	token, exp, err := i.tokens.GenerateToken(actorID, admin)
	if err != nil {
		return "", time.Time{}, false, apperrors.NewInternalError(err)
	}
	return token, exp, admin, nil
}
