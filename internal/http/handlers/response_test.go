package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/wa-intercom-relay/internal/http/middleware"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
	"github.com/tbourn/wa-intercom-relay/internal/services"
)

// serveFail runs handler behind RequestID with a logger writing into buf.
func serveFail(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	lg := zerolog.New(&buf)

	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/x", handler)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(middleware.RequestIDHeader, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, &buf
}

func TestFail_EnvelopeAndLogging(t *testing.T) {
	w, buf := serveFail(t, func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom")
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorResponse{RequestID: "rid-1", Code: ErrCodeInternal, Message: "kaboom"}, resp)
	assert.Contains(t, buf.String(), `"level":"error"`)

	w, buf = serveFail(t, func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope")
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, buf.Len(), "4xx must not be logged")
}

func TestFailErr_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrRoutingNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrUnknownIntegration, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrJobNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("load: %w", repo.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{services.ErrInvalidRouting, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrAlreadyDelivered, http.StatusConflict, ErrCodeConflict},
		{services.ErrInFlight, http.StatusConflict, ErrCodeConflict},
		{services.ErrDispatcherStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{services.ErrDispatcherBusy, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		w, _ := serveFail(t, func(c *gin.Context) { failErr(c, tc.err) })
		assert.Equal(t, tc.status, w.Code, "err=%v", tc.err)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.code, resp.Code)
		assert.Equal(t, tc.err.Error(), resp.Message)
	}
}
