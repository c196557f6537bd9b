package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/pkg/dto"
)

type VerifyHandler struct {
	svc *enroll.Service
}

func NewVerifyHandler(svc *enroll.Service) *VerifyHandler {
	return &VerifyHandler{svc: svc}
}

// Verify checks an uploaded image against the claimed identity form field.
func (h *VerifyHandler) Verify(c *gin.Context) {
	identity := c.PostForm("identity")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity is required"})
		return
	}
	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.svc.Verify(c.Request.Context(), sessionKey(c), identity, img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOutcomeResponse(out, h.svc.Threshold()))
}

// Identify searches every enrolled record for the uploaded face.
func (h *VerifyHandler) Identify(c *gin.Context) {
	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.svc.Identify(c.Request.Context(), sessionKey(c), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOutcomeResponse(out, h.svc.Threshold()))
}
