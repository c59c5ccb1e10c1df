package models

// ConsentPayload is everything the consent screen needs to render
type ConsentPayload struct {
	ClientID          string    `json:"client_id"`
	RedirectURI       string    `json:"redirect_uri"`
	State             string    `json:"state"`
	App               App       `json:"app"`
	User              Identity  `json:"user"`
	RequestedScope    []string  `json:"requested_scope"`
	ScopeMeta         []Scope   `json:"scope_meta"`
	EmailAccounts     []Account `json:"email_accounts,omitempty"`
	ConnectedAccounts []Account `json:"connected_accounts,omitempty"`
}

// AuthorizeResult is what a successful grant hands back to the client
type AuthorizeResult struct {
	Code  string `json:"code"`
	State string `json:"state"`
}
