package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// ErrNotFound is returned when no status has been recorded for a key.
var ErrNotFound = errors.New("status not found")

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository stores processing statuses in PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// Set overwrites the status record for st.Key.
func (r *Repository) Set(ctx context.Context, st model.ProcessingStatus) error {
	query := `
		INSERT INTO processing_status (object_key, status, message, thumb_key, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (object_key)
		DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			thumb_key = EXCLUDED.thumb_key,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, st.Key, string(st.Status), st.Message, st.ThumbKey, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set: failed to save status: %w", err)
	}

	return nil
}

// Get retrieves the status record for key.
func (r *Repository) Get(ctx context.Context, key string) (model.ProcessingStatus, error) {
	query := `
		SELECT status, message, thumb_key, updated_at
		FROM processing_status
		WHERE object_key = $1
	`

	st := model.ProcessingStatus{Key: key}
	var status string

	err := r.db.QueryRowContext(ctx, query, key).Scan(&status, &st.Message, &st.ThumbKey, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ProcessingStatus{}, ErrNotFound
		}

		return model.ProcessingStatus{}, fmt.Errorf("get: failed to get status: %w", err)
	}

	st.Status = model.Status(status)

	return st, nil
}
