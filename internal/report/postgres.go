// internal/report/postgres.go
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is the subset of pgxpool.Pool the sink uses, so tests can mock it.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateAttachments = `
        CREATE TABLE IF NOT EXISTS report_attachments (
            id           UUID PRIMARY KEY,
            scenario     TEXT NOT NULL,
            name         TEXT NOT NULL,
            content_type TEXT NOT NULL,
            body         BYTEA NOT NULL,
            created_at   TIMESTAMPTZ NOT NULL
        );`

	sqlInsertAttachment = `
        INSERT INTO report_attachments (id, scenario, name, content_type, body, created_at)
        VALUES ($1, $2, $3, $4, $5, $6);`
)

// PostgresSink stores attachments in a report_attachments table.
type PostgresSink struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresSink verifies the connection and makes sure the table exists.
func NewPostgresSink(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSink, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateAttachments); err != nil {
		return nil, fmt.Errorf("failed to create attachments table: %w", err)
	}
	return &PostgresSink{pool: pool, log: logger.Named("report_store")}, nil
}

// ConnectPostgres opens a pool for databaseURL and wraps it in a sink. The
// returned close func releases the pool.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresSink, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	sink, err := NewPostgresSink(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return sink, pool.Close, nil
}

func (s *PostgresSink) Attach(ctx context.Context, scenario, name, contentType string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	id := uuid.New()
	if _, err := s.pool.Exec(ctx, sqlInsertAttachment,
		id, scenario, name, contentType, body, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	s.log.Debug("Attachment stored.", zap.String("id", id.String()), zap.String("scenario", scenario), zap.String("name", name))
	return nil
}
