package dto

import "time"

// TokenRequest payload.
type TokenRequest struct {
	ClientKey string `json:"client_key"`
	ActorID   string `json:"actor_id"`
}

// TokenResponse returns an access token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Admin       bool      `json:"admin"`
}
