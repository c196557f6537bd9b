package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/vision"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	deps      map[string]Pinger
	readiness *vision.Readiness
}

// NewSystemHandler checks every non-nil entry of deps plus model readiness.
func NewSystemHandler(deps map[string]Pinger, readiness *vision.Readiness) *SystemHandler {
	return &SystemHandler{deps: deps, readiness: readiness}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	for name, dep := range h.deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	if h.readiness != nil {
		if _, err := h.readiness.Provider(); err != nil {
			checks["models"] = err.Error()
			healthy = false
		} else {
			checks["models"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
