package respond

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/app/interceptors"
	"passport/internal/lib/apperr"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func decode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Message
}

func TestError(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"typed", interceptors.EnvProd, apperr.BadRequest("state is required"), http.StatusBadRequest, "state is required"},
		{"wrapped typed", interceptors.EnvProd, errors.Join(errors.New("ctx"), apperr.Conflict("taken")), http.StatusConflict, "taken"},
		{"internal prod", interceptors.EnvProd, errors.New("db down"), http.StatusInternalServerError, apperr.InternalMessage},
		{"internal local", interceptors.EnvLocal, errors.New("db down"), http.StatusInternalServerError, apperr.InternalMessage + ": db down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/authorize", nil)
			r = r.WithContext(interceptors.WithEnv(r.Context(), tt.env))
			rec := httptest.NewRecorder()

			Error(rec, r, discard, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantMsg, decode(t, rec))
		})
	}
}
