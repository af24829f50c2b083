package journal

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	insertEntry = `INSERT INTO payment_attempts
    (id, session_id, surface, operator, phone_masked, amount, status, err_code, message, created_at)
    VALUES (:id, :session_id, :surface, :operator, :phone_masked, :amount, :status, :err_code, :message, :created_at)`

	selectRecent = `SELECT id, session_id, surface, operator, phone_masked, amount, status, err_code, message, created_at
    FROM payment_attempts ORDER BY created_at DESC LIMIT ?`
)

// SQLStore persists entries through sqlx. Placeholders are rebound for the
// driver the handle was opened with.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open handle whose schema is already migrated.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Record(ctx context.Context, e Entry) error {
	if _, err := s.db.NamedExecContext(ctx, insertEntry, e); err != nil {
		return fmt.Errorf("journal: insert attempt: %w", err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(selectRecent), ClampLimit(limit)); err != nil {
		return nil, fmt.Errorf("journal: select recent: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
