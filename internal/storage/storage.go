package storage

import "errors"

var (
	ErrIdentityNotFound      = errors.New("identity not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrAppNotFound           = errors.New("app not found")
	ErrAppExists             = errors.New("app already exists")
	ErrScopeNotFound         = errors.New("scope not found")
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrCodeNotFound          = errors.New("authorization code not found")
	ErrKeyNotFound           = errors.New("redis key not found")
	InfoCacheDisabled        = errors.New("info cache is disabled")
)
