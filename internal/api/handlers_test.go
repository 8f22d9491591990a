package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeweave/backend/internal/storage"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotImplemented,
		statusFor(storage.NewNotSupportedError("supabase.user_profiles.begin_tx", "supabase")))
	assert.Equal(t, http.StatusBadRequest,
		statusFor(storage.NewValidationError("op", "bad input")))
	assert.Equal(t, http.StatusInternalServerError,
		statusFor(storage.NewDatabaseError("op", "boom", nil)))
	assert.Equal(t, http.StatusInternalServerError,
		statusFor(fmt.Errorf("plain failure")))
}

func TestErrorHandlerWritesProblemDetails(t *testing.T) {
	e := echo.New()

	t.Run("http error keeps its status and message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/missing", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		ErrorHandler(echo.NewHTTPError(http.StatusNotFound, "Workflow not found"), c)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var problem ProblemDetails
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		assert.Equal(t, http.StatusNotFound, problem.Status)
		assert.Equal(t, "Workflow not found", problem.Detail)
		assert.Equal(t, http.StatusText(http.StatusNotFound), problem.Title)
	})

	t.Run("storage errors map through statusFor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		ErrorHandler(storage.NewValidationError("op", "unknown field"), c)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var problem ProblemDetails
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		assert.Contains(t, problem.Detail, "unknown field")
	})

	t.Run("committed response is left alone", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, c.NoContent(http.StatusOK))

		ErrorHandler(fmt.Errorf("late failure"), c)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}
