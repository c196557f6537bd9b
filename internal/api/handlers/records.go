package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type RecordHandler struct {
	svc *enroll.Service
}

func NewRecordHandler(svc *enroll.Service) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// Enroll accepts a multipart form with the record fields and an image.
func (h *RecordHandler) Enroll(c *gin.Context) {
	var form dto.EnrollForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := models.ParseEnrollMode(form.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Enroll(c.Request.Context(), enroll.EnrollRequest{
		Session:    sessionKey(c),
		Identity:   form.Identity,
		FullName:   form.FullName,
		Phone:      form.Phone,
		Address:    form.Address,
		EnrolledBy: c.GetHeader(OperatorHeader),
		Flags:      models.RecordFlags{Verified: form.Verified, Suspended: form.Suspended},
		Mode:       mode,
		Image:      img,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.EnrollResponse{
		Record:       dto.NewRecordResponse(res.Record),
		FaceDetected: res.FaceDetected,
	})
}

func (h *RecordHandler) List(c *gin.Context) {
	records, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.RecordResponse, 0, len(records))
	for i := range records {
		resp = append(resp, dto.NewRecordResponse(&records[i]))
	}
	c.JSON(http.StatusOK, dto.RecordListResponse{Records: resp, Total: len(resp)})
}

func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("identity"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewRecordResponse(rec))
}

func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("identity")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *RecordHandler) Thumbnail(c *gin.Context) {
	data, err := h.svc.Thumbnail(c.Request.Context(), c.Param("identity"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=60")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Search resolves ?q= to a single record by identity or name.
func (h *RecordHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	rec, err := h.svc.FindCandidate(c.Request.Context(), q)
	if err != nil {
		respondError(c, fmt.Errorf("search %q: %w", q, err))
		return
	}
	c.JSON(http.StatusOK, dto.NewRecordResponse(rec))
}
