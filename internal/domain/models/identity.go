package models

import "time"

// AccountType is the login method backing an account
type AccountType string

const (
	AccountEmail     AccountType = "email"
	AccountGoogle    AccountType = "google"
	AccountGithub    AccountType = "github"
	AccountMicrosoft AccountType = "microsoft"
)

// EmailCapable reports whether accounts of this type can be shared under the email scope
func (t AccountType) EmailCapable() bool {
	switch t {
	case AccountEmail, AccountGoogle, AccountMicrosoft:
		return true
	}
	return false
}

// Identity is the person every connected account belongs to
type Identity struct {
	URN         string    `json:"urn" db:"urn"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Picture     string    `json:"picture" db:"picture"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Account is a single login method connected to an identity
type Account struct {
	URN         string         `json:"urn" db:"urn"`
	IdentityURN string         `json:"identity_urn" db:"identity_urn"`
	Type        AccountType    `json:"type" db:"type"`
	Identifier  string         `json:"identifier" db:"identifier"`
	Alias       string         `json:"alias" db:"alias"`
	Picture     string         `json:"picture" db:"picture"`
	PassHash    []byte         `json:"-" db:"pass_hash"`
	Profile     map[string]any `json:"profile,omitempty" db:"profile"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// ProviderProfile is what an external identity provider reports about a user
type ProviderProfile struct {
	Type       AccountType    `json:"type"`
	Identifier string         `json:"identifier"`
	Alias      string         `json:"alias"`
	Email      string         `json:"email"`
	Picture    string         `json:"picture"`
	Raw        map[string]any `json:"raw"`
}
