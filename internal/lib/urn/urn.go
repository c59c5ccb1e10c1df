// Package urn builds and parses the urn:rollupid identifiers used for identities, accounts and authorizations.
package urn

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const (
	prefix = "urn:rollupid:"

	KindIdentity      = "identity"
	KindAccount       = "account"
	KindAuthorization = "authorization"
	KindIDRef         = "idref"
)

var ErrMalformed = errors.New("malformed urn")

// URN is a parsed urn:rollupid:<kind>/<id>
type URN struct {
	Kind string
	ID   string
}

func (u URN) String() string {
	return prefix + u.Kind + "/" + u.ID
}

// Parse splits a urn string, ignoring any q-component
func Parse(s string) (URN, error) {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return URN{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	kind, id, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || id == "" {
		return URN{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return URN{Kind: kind, ID: id}, nil
}

// Is reports whether s parses as a urn of the given kind
func Is(s, kind string) bool {
	u, err := Parse(s)
	return err == nil && u.Kind == kind
}

// Keccak256Hex is the 0x prefixed legacy keccak256 digest of data
func Keccak256Hex(data string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(data))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// IDRef is the unhashed reference an account urn is derived from
func IDRef(accountType, identifier string) string {
	return prefix + KindIDRef + ":" + accountType + "/" + identifier
}

// Account derives the account urn for a login method, identifiers compared case-insensitively
func Account(accountType, identifier string) string {
	ref := IDRef(accountType, strings.ToLower(strings.TrimSpace(identifier)))
	return URN{Kind: KindAccount, ID: Keccak256Hex(ref)}.String()
}

// NewIdentity mints a fresh identity urn
func NewIdentity() string {
	return URN{Kind: KindIdentity, ID: Keccak256Hex(uuid.NewString())}.String()
}

// Authorization is the urn of the consent an identity gave to a client
func Authorization(identityURN, clientID string) (string, error) {
	u, err := Parse(identityURN)
	if err != nil {
		return "", err
	}
	if u.Kind != KindIdentity {
		return "", fmt.Errorf("%w: %q is not an identity", ErrMalformed, identityURN)
	}
	return URN{Kind: KindAuthorization, ID: u.ID + "@" + clientID}.String(), nil
}
