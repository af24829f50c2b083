package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/topup/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// receiptLog remembers update ids already logged so a route wrapped twice
// writes one receipt line.
type receiptLog struct {
	mu      sync.Mutex
	seen    map[int]time.Time
	keepFor time.Duration
}

var receipts = &receiptLog{seen: make(map[int]time.Time), keepFor: 10 * time.Second}

func (r *receiptLog) first(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ts := range r.seen {
		if now.Sub(ts) > r.keepFor {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[updateID]; ok {
		return false
	}
	r.seen[updateID] = now
	return true
}

// LoggerMiddleware builds the update context (rid, update/chat/user ids) and
// writes one sampled debug receipt per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		user := c.Sender()
		if user != nil {
			userID = user.ID
		}
		if _, ok := c.Get("rid").(string); !ok {
			c.Set("rid", logger.BuildRID(upd.ID, chatID, userID))
		}
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil:
				// Free text may be a phone number.
				attrs = append(attrs, slog.Int("text_len", len(c.Text())))
			}
			logger.Debug(ctx, logger.CompTG, "update.received", attrs...)
		}

		return next(c)
	}
}
