package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{BadRequest("x"), http.StatusBadRequest},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestFrom_WrappedChain(t *testing.T) {
	err := fmt.Errorf("%s: %w", "authorize.Confirm", BadRequest("state is required"))

	e := From(err)
	require.NotNil(t, e)
	assert.Equal(t, CodeBadRequest, e.Code)
	assert.Equal(t, "state is required", e.Message)
	assert.True(t, errors.Is(err, ErrBadRequest))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFrom_UnknownBecomesInternal(t *testing.T) {
	cause := errors.New("connection refused")

	e := From(cause)
	assert.Equal(t, CodeInternal, e.Code)
	assert.Equal(t, InternalMessage, e.Message)
	assert.ErrorIs(t, e, cause)
	assert.Nil(t, From(nil))
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, CodeNotFound, FromStatus(status.Error(codes.NotFound, "gone")).Code)
	assert.Equal(t, CodeUnauthorized, FromStatus(status.Error(codes.Unauthenticated, "who")).Code)
	assert.Equal(t, CodeConflict, FromStatus(status.Error(codes.AlreadyExists, "dup")).Code)
	assert.Equal(t, CodeInternal, FromStatus(status.Error(codes.Unavailable, "down")).Code)
	assert.Equal(t, "gone", FromStatus(status.Error(codes.NotFound, "gone")).Message)
}
