package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func testBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "test", Offline: true})
	require.NoError(t, err)
	return b
}

func messageFrom(b *tele.Bot, updateID int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Text:   "hello",
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID},
		},
	})
}

func callbackFrom(b *tele.Bot, updateID int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Callback: &tele.Callback{
			ID:     "cb",
			Data:   "\fpay|submit",
			Sender: &tele.User{ID: userID},
		},
	})
}

func TestRateLimitTokenBucket(t *testing.T) {
	b := testBot(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var passed, limited int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Burst:     2,
		Exclude:   ExcludeSet([]string{" Callback "}),
		OnLimited: func(tele.Context) error { limited++; return nil },
		now:       func() time.Time { return now },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, h(messageFrom(b, i, 1)))
	}
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, limited)

	require.NoError(t, h(messageFrom(b, 10, 2)), "buckets are per user")
	assert.Equal(t, 3, passed)

	require.NoError(t, h(callbackFrom(b, 11, 1)), "excluded kinds bypass the limiter")
	assert.Equal(t, 4, passed)

	now = now.Add(time.Second)
	require.NoError(t, h(messageFrom(b, 12, 1)))
	assert.Equal(t, 5, passed)
	assert.Equal(t, 1, limited)
}

func TestRateLimitDisabled(t *testing.T) {
	b := testBot(t)
	calls := 0
	h := RateLimitMiddleware(RateLimitOptions{})(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 5; i++ {
		require.NoError(t, h(messageFrom(b, i, 1)))
	}
	assert.Equal(t, 5, calls)
}

func TestAdminOnly(t *testing.T) {
	b := testBot(t)
	var rejected int
	reject := func(tele.Context) error { rejected++; return nil }
	ok := func(tele.Context) error { return errors.New("reached") }

	h := AdminOnlyMiddleware(AdminOptions{AdminID: 7, OnReject: reject})(ok)
	assert.EqualError(t, h(messageFrom(b, 1, 7)), "reached")
	assert.NoError(t, h(messageFrom(b, 2, 8)))

	h = AdminOnlyMiddleware(AdminOptions{OnReject: reject})(ok)
	assert.NoError(t, h(messageFrom(b, 3, 7)))
	assert.Equal(t, 2, rejected)
}

func TestRecoverMiddleware(t *testing.T) {
	b := testBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(messageFrom(b, 1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	b := testBot(t)
	c := messageFrom(b, 42, 5)
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	require.NoError(t, h(c))
	assert.Equal(t, "42:5:5", rid)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, KindMessage, UpdateKind(tele.Update{Message: &tele.Message{}}))
	assert.Equal(t, KindCallback, UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, KindInlineQuery, UpdateKind(tele.Update{Query: &tele.Query{}}))
	assert.Equal(t, KindOther, UpdateKind(tele.Update{}))
}
