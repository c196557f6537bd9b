package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid record", fmt.Errorf("%w: identity is required", models.ErrInvalidRecord), http.StatusBadRequest},
		{"record not found", storage.ErrRecordNotFound, http.StatusNotFound},
		{"object not found", storage.ErrObjectNotFound, http.StatusNotFound},
		{"in flight", enroll.ErrOperationInFlight, http.StatusConflict},
		{"models loading", errors.Join(vision.ErrModelsNotReady, errors.New("open model")), http.StatusServiceUnavailable},
		{"length mismatch", fmt.Errorf("verify: %w", biometric.ErrDescriptorLengthMismatch), http.StatusInternalServerError},
		{"non-finite descriptor", fmt.Errorf("identify: %w", biometric.ErrNonFiniteDescriptor), http.StatusInternalServerError},
		{"empty frame", capture.ErrEmptyFrame, http.StatusBadRequest},
		{"image too large", fmt.Errorf("%w: 9x9", capture.ErrImageTooLarge), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(recorder)
			c.Request = httptest.NewRequest("GET", "/v1/records/x", nil)

			respondError(c, tt.err)

			if recorder.Code != tt.want {
				t.Errorf("status = %d, want %d", recorder.Code, tt.want)
			}
		})
	}
}

func TestSessionKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/v1/verify", nil)
	c.Request.RemoteAddr = "10.0.0.7:5000"
	if got := sessionKey(c); got != "10.0.0.7" {
		t.Errorf("sessionKey without header = %q", got)
	}

	c.Request.Header.Set(SessionHeader, "kiosk-2")
	if got := sessionKey(c); got != "kiosk-2" {
		t.Errorf("sessionKey with header = %q", got)
	}
}
