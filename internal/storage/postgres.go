package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

// NewPostgresStoreDSN connects, pings and applies pending migrations.
func NewPostgresStoreDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const recordColumns = `identity, descriptor, full_name, phone, address, thumbnail_key, enrolled_by, verified, suspended, enrolled_at`

func scanRecord(row pgx.Row) (*models.EnrollmentRecord, error) {
	var (
		r   models.EnrollmentRecord
		vec *pgvector.Vector
	)
	err := row.Scan(&r.Identity, &vec, &r.FullName, &r.Phone, &r.Address, &r.ThumbnailKey,
		&r.EnrolledBy, &r.Flags.Verified, &r.Flags.Suspended, &r.EnrolledAt)
	if err != nil {
		return nil, err
	}
	if vec != nil {
		r.Descriptor = biometric.Descriptor(vec.Slice())
	}
	return &r, nil
}

func (s *PostgresStore) Get(ctx context.Context, identity string) (*models.EnrollmentRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM enrollment_records WHERE identity = $1`, identity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// Put inserts or fully overwrites the record for rec.Identity.
func (s *PostgresStore) Put(ctx context.Context, rec *models.EnrollmentRecord) error {
	var vec *pgvector.Vector
	if rec.Descriptor.Present() {
		v := pgvector.NewVector(rec.Descriptor)
		vec = &v
	}
	enrolledAt := rec.EnrolledAt
	if enrolledAt.IsZero() {
		enrolledAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrollment_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (identity) DO UPDATE SET
		   descriptor = EXCLUDED.descriptor,
		   full_name = EXCLUDED.full_name,
		   phone = EXCLUDED.phone,
		   address = EXCLUDED.address,
		   thumbnail_key = EXCLUDED.thumbnail_key,
		   enrolled_by = EXCLUDED.enrolled_by,
		   verified = EXCLUDED.verified,
		   suspended = EXCLUDED.suspended,
		   enrolled_at = EXCLUDED.enrolled_at`,
		rec.Identity, vec, rec.FullName, rec.Phone, rec.Address, rec.ThumbnailKey,
		rec.EnrolledBy, rec.Flags.Verified, rec.Flags.Suspended, enrolledAt,
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// ListAll returns every record in a stable order: enrollment time, then identity.
func (s *PostgresStore) ListAll(ctx context.Context) ([]models.EnrollmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM enrollment_records ORDER BY enrolled_at, identity`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []models.EnrollmentRecord
	for rows.Next() {
		r, err := scanRecord(rows)
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

func (s *PostgresStore) Delete(ctx context.Context, identity string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enrollment_records WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
