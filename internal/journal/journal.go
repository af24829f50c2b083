// Package journal keeps an audit trail of resolved payment submissions.
// Session state itself is never stored; only the outcome of each submit.
package journal

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/topup/core/database"
	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/internal/payment"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations is the schema of the SQL journal.
var Migrations = database.Migrations{FS: migrationsFS, Dir: "migrations"}

// Surfaces an attempt may come from.
const (
	SurfaceWeb      = "web"
	SurfaceTelegram = "telegram"
)

// Default and upper bound for Recent.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// ErrClosed is returned by recorders after Close.
var ErrClosed = errors.New("journal: closed")

// Entry is one resolved submit. The phone number is stored masked.
type Entry struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Surface     string    `db:"surface" json:"surface"`
	Operator    string    `db:"operator" json:"operator"`
	PhoneMasked string    `db:"phone_masked" json:"phone"`
	Amount      string    `db:"amount" json:"amount"`
	Status      string    `db:"status" json:"status"`
	ErrCode     string    `db:"err_code" json:"err_code,omitempty"`
	Message     string    `db:"message" json:"message,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Recorder stores entries and lists the most recent ones, newest first.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Ping(ctx context.Context) error
}

type coder interface{ Code() string }

// FromAttempt converts a resolved submit into an entry.
func FromAttempt(a payment.Attempt, surface string) Entry {
	e := Entry{
		ID:          uuid.NewString(),
		SessionID:   a.SessionID,
		Surface:     surface,
		Operator:    a.Operator,
		PhoneMasked: logger.MaskPhone(a.Phone),
		Amount:      a.Amount,
		Status:      a.Status.Kind.String(),
		Message:     a.Status.Message(),
		CreatedAt:   a.At.UTC(),
	}
	var c coder
	if errors.As(a.Status.Err, &c) {
		e.ErrCode = c.Code()
	}
	return e
}

// ClampLimit maps a requested page size into [1, MaxLimit], defaulting to DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Hook returns a session attempt hook that records into rec. Record errors
// are logged; the session never sees them.
func Hook(rec Recorder, surface string) func(payment.Attempt) {
	return func(a payment.Attempt) {
		e := FromAttempt(a, surface)
		ctx := logger.WithSession(context.Background(), a.SessionID)
		if err := rec.Record(ctx, e); err != nil && !errors.Is(err, ErrQueueFull) {
			logger.Warn(ctx, logger.CompJournal, "record.fail",
				slog.String("surface", surface),
				slog.String("err", err.Error()),
			)
		}
	}
}
