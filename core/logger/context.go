package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyMeta
)

// Meta is the set of correlation fields carried by a context. Zero values
// are omitted from log lines.
type Meta struct {
	RID       string
	SessionID string
	Handler   string
	UpdateID  int
	UserID    int64
	ChatID    int64
}

// MetaFrom returns the correlation fields stored in ctx.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(keyMeta).(Meta)
	return m
}

func withMeta(ctx context.Context, fn func(*Meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := MetaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, keyMeta, m)
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(keyLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches a request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.RID = rid })
}

// RIDFrom returns the correlation id stored in ctx.
func RIDFrom(ctx context.Context) string { return MetaFrom(ctx).RID }

// WithSession attaches a payment session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.SessionID = sessionID })
}

// WithHandler attaches the name of the handler serving the request.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *Meta) { m.Handler = handler })
}

// WithUpdateMeta attaches Telegram update identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *Meta) {
		m.UpdateID = updateID
		m.UserID = userID
		m.ChatID = chatID
	})
}

// fields writes the non-zero correlation fields into dst without
// overriding keys already set by the record.
func (m Meta) fields(dst map[string]any) {
	put := func(k string, v any, zero bool) {
		if zero {
			return
		}
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	put("rid", m.RID, m.RID == "")
	put("session_id", m.SessionID, m.SessionID == "")
	put("handler", m.Handler, m.Handler == "")
	put("update_id", int64(m.UpdateID), m.UpdateID == 0)
	put("user_id", m.UserID, m.UserID == 0)
	put("chat_id", m.ChatID, m.ChatID == 0)
}

// BuildRID returns a correlation id for a Telegram update: updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a three-part numeric rid in base36 segments joined by
// dots. Other input is returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
