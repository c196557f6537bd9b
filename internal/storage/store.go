package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrObjectNotFound = errors.New("object not found")
)

// RecordStore persists enrollment records keyed by identity. Writes are
// full overwrites and the last write wins.
type RecordStore interface {
	Get(ctx context.Context, identity string) (*models.EnrollmentRecord, error)
	Put(ctx context.Context, rec *models.EnrollmentRecord) error
	ListAll(ctx context.Context) ([]models.EnrollmentRecord, error)
	Delete(ctx context.Context, identity string) error
	Ping(ctx context.Context) error
	Close()
}

// ObjectStore holds thumbnails and captured frames.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// PrunableStore lists and bulk-deletes objects by prefix.
type PrunableStore interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

// OpenRecordStore connects the backend selected by cfg.Driver.
func OpenRecordStore(ctx context.Context, cfg config.DatabaseConfig) (RecordStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg)
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Top-level object key prefixes.
const (
	ThumbnailRoot = "thumbnails/"
	CaptureRoot   = "captures/"
)

// ThumbnailKey is the object key of one enrollment's face thumbnail.
// Re-enrolling writes a new version rather than overwriting the old one.
func ThumbnailKey(identity, version string) string {
	return ThumbnailRoot + identity + "/" + version + ".jpg"
}

// CapturePrefix is the key prefix shared by every capture of a station.
func CapturePrefix(stationID string) string {
	return CaptureRoot + stationID + "/"
}

// CaptureKey is the object key of a frame captured by a station.
func CaptureKey(stationID, id string) string {
	return CapturePrefix(stationID) + id + ".jpg"
}
