package models

// rollup_action values that skip the account picker
const (
	ActionConnect   = "connect"
	ActionReconnect = "reconnect"
)

// prompt values
const (
	PromptLogin   = "login"
	PromptConsent = "consent"
	PromptNone    = "none"
)

// AuthzParams are the authorization request parameters carried across the login detour
type AuthzParams struct {
	ClientID     string   `json:"client_id"`
	RedirectURI  string   `json:"redirect_uri"`
	Scope        []string `json:"scope"`
	State        string   `json:"state"`
	Prompt       string   `json:"prompt,omitempty"`
	LoginHint    string   `json:"login_hint,omitempty"`
	RollupAction string   `json:"rollup_action,omitempty"`
	PKCE         *PKCE    `json:"pkce,omitempty"`
}

// OAuthState is kept in a cookie for the duration of a provider login round trip
type OAuthState struct {
	State        string `json:"state"`
	Verifier     string `json:"verifier"`
	ClientID     string `json:"client_id"`
	RollupAction string `json:"rollup_action,omitempty"`
}
