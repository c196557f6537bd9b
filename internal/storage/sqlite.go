package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
)

// SQLiteStore keeps records in a single local database file. Descriptors
// are stored as little-endian float32 blobs.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS enrollment_records (
	identity TEXT PRIMARY KEY,
	descriptor BLOB,
	full_name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	thumbnail_key TEXT NOT NULL DEFAULT '',
	enrolled_by TEXT NOT NULL DEFAULT '',
	verified INTEGER NOT NULL DEFAULT 0,
	suspended INTEGER NOT NULL DEFAULT 0,
	enrolled_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_enrolled_at ON enrollment_records(enrolled_at);`

// Fixed width so that text order matches time order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite3 serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeDescriptor(d biometric.Descriptor) []byte {
	if !d.Present() {
		return nil
	}
	buf := make([]byte, 4*len(d))
	for i, v := range d {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeDescriptor(b []byte) (biometric.Descriptor, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("descriptor blob has %d bytes", len(b))
	}
	d := make(biometric.Descriptor, len(b)/4)
	for i := range d {
		d[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*models.EnrollmentRecord, error) {
	var (
		r          models.EnrollmentRecord
		blob       []byte
		enrolledAt string
	)
	err := row.Scan(&r.Identity, &blob, &r.FullName, &r.Phone, &r.Address, &r.ThumbnailKey,
		&r.EnrolledBy, &r.Flags.Verified, &r.Flags.Suspended, &enrolledAt)
	if err != nil {
		return nil, err
	}
	if r.Descriptor, err = decodeDescriptor(blob); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.Identity, err)
	}
	if r.EnrolledAt, err = time.Parse(sqliteTimeFormat, enrolledAt); err != nil {
		return nil, fmt.Errorf("parse enrolled_at for %s: %w", r.Identity, err)
	}
	return &r, nil
}

func (s *SQLiteStore) Get(ctx context.Context, identity string) (*models.EnrollmentRecord, error) {
	r, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM enrollment_records WHERE identity = ?`, identity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *models.EnrollmentRecord) error {
	enrolledAt := rec.EnrolledAt
	if enrolledAt.IsZero() {
		enrolledAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO enrollment_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Identity, encodeDescriptor(rec.Descriptor), rec.FullName, rec.Phone, rec.Address,
		rec.ThumbnailKey, rec.EnrolledBy, rec.Flags.Verified, rec.Flags.Suspended,
		enrolledAt.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.EnrollmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM enrollment_records ORDER BY enrolled_at, identity`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []models.EnrollmentRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, identity string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrollment_records WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
