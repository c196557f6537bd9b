package dto

import (
	"net/url"

	"github.com/your-org/facegate/internal/models"
)

const timeLayout = "2006-01-02T15:04:05Z"

// EnrollForm is the multipart body of POST /v1/records. The image travels
// as the "image" file part.
type EnrollForm struct {
	Identity  string `form:"identity" binding:"required"`
	FullName  string `form:"full_name" binding:"required"`
	Phone     string `form:"phone"`
	Address   string `form:"address"`
	Mode      string `form:"mode"`
	Verified  bool   `form:"verified"`
	Suspended bool   `form:"suspended"`
}

type RecordResponse struct {
	Identity      string             `json:"identity"`
	FullName      string             `json:"full_name"`
	Phone         string             `json:"phone,omitempty"`
	Address       string             `json:"address,omitempty"`
	EnrolledBy    string             `json:"enrolled_by,omitempty"`
	Flags         models.RecordFlags `json:"flags"`
	HasDescriptor bool               `json:"has_descriptor"`
	ThumbnailURL  string             `json:"thumbnail_url,omitempty"`
	EnrolledAt    string             `json:"enrolled_at"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Total   int              `json:"total"`
}

type EnrollResponse struct {
	Record       RecordResponse `json:"record"`
	FaceDetected bool           `json:"face_detected"`
}

// NewRecordResponse renders rec without its descriptor.
func NewRecordResponse(rec *models.EnrollmentRecord) RecordResponse {
	resp := RecordResponse{
		Identity:      rec.Identity,
		FullName:      rec.FullName,
		Phone:         rec.Phone,
		Address:       rec.Address,
		EnrolledBy:    rec.EnrolledBy,
		Flags:         rec.Flags,
		HasDescriptor: rec.HasDescriptor(),
		EnrolledAt:    rec.EnrolledAt.UTC().Format(timeLayout),
	}
	if rec.ThumbnailKey != "" {
		resp.ThumbnailURL = "/v1/records/" + url.PathEscape(rec.Identity) + "/thumbnail"
	}
	return resp
}
