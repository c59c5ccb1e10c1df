package models

import "time"

// RefreshToken is the persisted half of an issued refresh token, keyed by its jti
type RefreshToken struct {
	ID               string    `json:"id" db:"id"`
	AuthorizationURN string    `json:"authorization_urn" db:"authorization_urn"`
	IdentityURN      string    `json:"identity_urn" db:"identity_urn"`
	ClientID         string    `json:"client_id" db:"client_id"`
	Scope            []string  `json:"scope" db:"scope"`
	ExpiresAt        time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// TokenSet is the token endpoint response
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}
