package models

import (
	"encoding/json"
	"errors"
	"time"
)

// AllAccounts is the connected_accounts selection sharing every current and future account
const AllAccounts = "ALL"

// Authorization is the consent an identity has given an application
type Authorization struct {
	URN         string      `json:"urn" db:"urn"`
	IdentityURN string      `json:"identity_urn" db:"identity_urn"`
	ClientID    string      `json:"client_id" db:"client_id"`
	Scope       []string    `json:"scope" db:"scope"`
	Persona     PersonaData `json:"persona" db:"persona"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// Covers reports whether every requested scope is already granted
func (a Authorization) Covers(requested []string) bool {
	granted := make(map[string]struct{}, len(a.Scope))
	for _, s := range a.Scope {
		granted[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// PersonaData is the data the user picked to share for scopes that need a choice
type PersonaData struct {
	Email             string            `json:"email,omitempty"`
	ConnectedAccounts ConnectedAccounts `json:"connected_accounts,omitempty"`
}

// ConnectedAccounts is either every account of the identity or an explicit list
type ConnectedAccounts struct {
	All  bool
	URNs []string
}

// IsZero reports whether nothing was selected
func (c ConnectedAccounts) IsZero() bool {
	return !c.All && len(c.URNs) == 0
}

func (c ConnectedAccounts) MarshalJSON() ([]byte, error) {
	if c.All {
		return json.Marshal(AllAccounts)
	}
	if c.URNs == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.URNs)
}

func (c *ConnectedAccounts) UnmarshalJSON(data []byte) error {
	*c = ConnectedAccounts{}
	if string(data) == "null" {
		return nil
	}
	var all string
	if err := json.Unmarshal(data, &all); err == nil {
		if all != AllAccounts {
			return errors.New("connected_accounts must be ALL or a list of account urns")
		}
		c.All = true
		return nil
	}
	return json.Unmarshal(data, &c.URNs)
}
