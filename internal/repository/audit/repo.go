package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository appends audit entries to PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// Append inserts the entry. Entries are never updated or deleted.
func (r *Repository) Append(ctx context.Context, e model.AuditEntry) error {
	query := `
		INSERT INTO audit_log (pk, sk, data, ts)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, e.PK, e.SK, []byte(e.Data), e.TS); err != nil {
		return fmt.Errorf("append: failed to save audit entry: %w", err)
	}

	return nil
}
