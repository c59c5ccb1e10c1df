package jwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is recorded in every token so one kind cannot be replayed as another
type TokenType string

const (
	Session TokenType = "session"
	Access  TokenType = "access"
	ID      TokenType = "id"
	Refresh TokenType = "refresh"
)

const (
	ClaimIssuer    = "iss"
	ClaimSubject   = "sub"
	ClaimAudience  = "aud"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimJTI       = "jti"
	ClaimTokenType = "token_type"
	ClaimScope     = "scope"
)

var ErrTokenClaimsIncorrect = errors.New("token claims are incorrect")

// DefaultClaimKeys are the claims each token type must carry
var DefaultClaimKeys = map[TokenType][]string{
	Session: {ClaimSubject, ClaimJTI},
	Access:  {ClaimSubject, ClaimJTI, ClaimScope},
	ID:      {ClaimSubject},
	Refresh: {ClaimSubject, ClaimJTI, ClaimScope},
}

// ClaimsController providing token's claims validation
type ClaimsController interface {
	IsClaimsValid(typ TokenType, claims jwt.MapClaims) error
}

// ClaimsControllerImpl concrete implementation of ClaimsController interface
type ClaimsControllerImpl struct {
	ClaimKeysByToken map[TokenType][]string
}

// NewClaimsController creates new instance of ClaimsControllerImpl
func NewClaimsController(validClaimKeys map[TokenType][]string) *ClaimsControllerImpl {
	return &ClaimsControllerImpl{
		ClaimKeysByToken: validClaimKeys,
	}
}

// IsClaimsValid checks the token type matches and every required claim is present and non empty
func (c *ClaimsControllerImpl) IsClaimsValid(typ TokenType, claims jwt.MapClaims) error {
	if claims == nil {
		return errors.New("claims cannot be nil")
	}
	if got, _ := claims[ClaimTokenType].(string); got != string(typ) {
		return fmt.Errorf("%w: token type %q, want %q", ErrTokenClaimsIncorrect, got, typ)
	}
	for _, claim := range c.ClaimKeysByToken[typ] {
		val, ok := claims[claim]
		if !ok || val == nil || val == "" {
			return fmt.Errorf("%w: missing %s", ErrTokenClaimsIncorrect, claim)
		}
	}
	return nil
}

// Scope returns the space delimited scope claim as a list
func Scope(claims jwt.MapClaims) []string {
	s, _ := claims[ClaimScope].(string)
	return strings.Fields(s)
}

// Subject returns the sub claim
func Subject(claims jwt.MapClaims) string {
	s, _ := claims[ClaimSubject].(string)
	return s
}

// JTI returns the jti claim
func JTI(claims jwt.MapClaims) string {
	s, _ := claims[ClaimJTI].(string)
	return s
}

// StringClaim returns a string valued claim
func StringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
