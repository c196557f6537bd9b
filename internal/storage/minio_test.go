package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/your-org/facegate/internal/config"
)

func TestPutOptions(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		contentType string
		wantType    string
		wantMeta    map[string]string
	}{
		{"thumbnail", ThumbnailKey("c-7", "v2"), "image/jpeg", "image/jpeg", map[string]string{"identity": "c-7"}},
		{"capture", CaptureKey("lobby", "f1"), "", "image/jpeg", map[string]string{"station": "lobby"}},
		{"png thumbnail", ThumbnailKey("c-7", "v3"), "image/png", "image/png", map[string]string{"identity": "c-7"}},
		{"unrooted", "misc/file.bin", "application/octet-stream", "application/octet-stream", nil},
		{"bare root", ThumbnailRoot + "orphan.jpg", "image/jpeg", "image/jpeg", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := putOptions(tt.key, tt.contentType)
			if opts.ContentType != tt.wantType {
				t.Errorf("ContentType = %q, want %q", opts.ContentType, tt.wantType)
			}
			if len(opts.UserMetadata) != len(tt.wantMeta) {
				t.Fatalf("UserMetadata = %v, want %v", opts.UserMetadata, tt.wantMeta)
			}
			for k, v := range tt.wantMeta {
				if opts.UserMetadata[k] != v {
					t.Errorf("UserMetadata[%s] = %q, want %q", k, opts.UserMetadata[k], v)
				}
			}
		})
	}
}

func TestObjectError(t *testing.T) {
	if objectError("get", "k", nil) != nil {
		t.Fatal("nil error must stay nil")
	}

	missing := objectError("get", "thumbnails/c-1/v1.jpg", minio.ErrorResponse{Code: "NoSuchKey"})
	if !errors.Is(missing, ErrObjectNotFound) {
		t.Errorf("NoSuchKey mapped to %v", missing)
	}

	denied := objectError("put", "k", minio.ErrorResponse{Code: "AccessDenied"})
	if denied == nil || errors.Is(denied, ErrObjectNotFound) {
		t.Errorf("AccessDenied mapped to %v", denied)
	}
}

func TestNewMinIOStoreRequiresBucket(t *testing.T) {
	if _, err := NewMinIOStore(config.MinIOConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected an error without a bucket")
	}
}
