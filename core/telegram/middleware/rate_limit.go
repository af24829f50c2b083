package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/topup/core/logger"
	tghelpers "github.com/m3rciful/topup/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Update kinds accepted in RateLimitOptions.Exclude.
const (
	KindCallback    = "callback"
	KindMessage     = "message"
	KindInlineQuery = "inline_query"
	KindOther       = "other"
)

// RateLimitOptions configures the per-user token bucket.
type RateLimitOptions struct {
	// Interval is the refill period of one token.
	Interval time.Duration
	// Burst is the bucket size; values below 1 mean 1.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users not seen for this long.
	IdleTTL time.Duration
	now     func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type userLimiter struct {
	opts     RateLimitOptions
	mu       sync.Mutex
	visitors map[int64]*visitor
	lastGC   time.Time
}

func (l *userLimiter) allow(userID int64) bool {
	now := l.opts.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.opts.IdleTTL {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.opts.IdleTTL {
				delete(l.visitors, id)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.opts.Interval), l.opts.Burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// UpdateKind classifies an update for exclusion lists.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return KindCallback
	case upd.Message != nil:
		return KindMessage
	case upd.Query != nil:
		return KindInlineQuery
	}
	return KindOther
}

// RateLimitMiddleware throttles updates per sender with a token bucket.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	opts.Burst = max(opts.Burst, 1)
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	lim := &userLimiter{opts: opts, visitors: make(map[int64]*visitor)}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if lim.allow(user.ID) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "update.rate_limited",
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}

// ExcludeSet builds an exclusion set from configured update kinds.
func ExcludeSet(kinds []string) map[string]struct{} {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
