package models

import "time"

// AuthorizationCode model depends on RFC OAUTH2.1
type AuthorizationCode struct {
	Code        string      `json:"code"`
	IdentityURN string      `json:"identity_urn"`
	ClientID    string      `json:"client_id"`
	RedirectURI string      `json:"redirect_uri"`
	Scope       []string    `json:"scope"`
	State       string      `json:"state"`
	Persona     PersonaData `json:"persona"`
	PKCE        *PKCE       `json:"pkce,omitempty"`
	ExpiresAt   time.Time   `json:"expires_at"`
}
