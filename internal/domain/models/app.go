package models

import "time"

// App is a client application registered in starbase
type App struct {
	ClientID    string    `json:"client_id" db:"client_id"`
	SecretHash  []byte    `json:"-" db:"secret_hash"`
	Name        string    `json:"name" db:"name"`
	Icon        string    `json:"icon" db:"icon"`
	RedirectURI string    `json:"redirect_uri" db:"redirect_uri"`
	Scopes      []string  `json:"scopes" db:"scopes"`
	Published   bool      `json:"published" db:"published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AllowsScope reports whether the app may request the given scope.
// An app with no scope list may request any catalogued scope.
func (a App) AllowsScope(scope string) bool {
	if len(a.Scopes) == 0 {
		return true
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Scope names known to the catalog
const (
	ScopeOpenID            = "openid"
	ScopeProfile           = "profile"
	ScopeEmail             = "email"
	ScopeConnectedAccounts = "connected_accounts"
)

// Scope is a catalog entry describing what a scope grants
type Scope struct {
	Name        string   `json:"name" yaml:"name" db:"name"`
	Description string   `json:"description" yaml:"description" db:"description"`
	Claims      []string `json:"claims" yaml:"claims" db:"claims"`
	Hidden      bool     `json:"hidden" yaml:"hidden" db:"hidden"`
}
