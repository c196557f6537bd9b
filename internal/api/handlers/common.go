package handlers

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

const (
	// SessionHeader identifies the caller for per-session serialization.
	SessionHeader = "X-Session-ID"
	// OperatorHeader names the operator recorded as EnrolledBy.
	OperatorHeader = "X-Operator"

	maxImageBytes = 10 << 20
)

var errImageRequired = errors.New("image file required")

// sessionKey falls back to the client address when no session header is sent.
func sessionKey(c *gin.Context) string {
	if s := c.GetHeader(SessionHeader); s != "" {
		return s
	}
	return c.ClientIP()
}

// readImage decodes the "image" part of a multipart request.
func readImage(c *gin.Context) (image.Image, error) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		return nil, errImageRequired
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return capture.Decode(data)
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrRecordNotFound), errors.Is(err, storage.ErrObjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, enroll.ErrOperationInFlight):
		status = http.StatusConflict
	case errors.Is(err, vision.ErrModelsNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrEmptyFrame), errors.Is(err, capture.ErrImageTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, biometric.ErrDescriptorLengthMismatch), errors.Is(err, biometric.ErrNonFiniteDescriptor):
		slog.Error("descriptor integrity fault", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
