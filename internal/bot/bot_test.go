package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topup/core/logger"
	tg "github.com/m3rciful/topup/core/telegram"
	"github.com/m3rciful/topup/core/telegram/format"
	"github.com/m3rciful/topup/core/telegram/state"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"
	"github.com/m3rciful/topup/internal/payment/paymenttest"

	tele "gopkg.in/telebot.v4"
)

type apiCall struct {
	Method string
	Params map[string]any
}

func (c apiCall) param(key string) string {
	s, _ := c.Params[key].(string)
	return s
}

// fakeAPI answers every Bot API method with a minimal message.
type fakeAPI struct {
	srv   *httptest.Server
	mu    sync.Mutex
	calls []apiCall
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&params)
		f.mu.Lock()
		f.calls = append(f.calls, apiCall{Method: path.Base(r.URL.Path), Params: params})
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":42},"date":0}}`)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// texts returns the text of every sent or edited message in order.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Method == "sendMessage" || c.Method == "editMessageText" {
			out = append(out, c.param("text"))
		}
	}
	return out
}

func (f *fakeAPI) last() apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return apiCall{}
	}
	return f.calls[len(f.calls)-1]
}

type harness struct {
	api      *fakeAPI
	tb       *tele.Bot
	bot      *Bot
	sched    *paymenttest.Scheduler
	sessions *payment.Registry
	journal  *journal.Memory
	nextID   int
}

const (
	chatID  = int64(42)
	adminID = int64(42)
)

func newHarness(t *testing.T, outcomes ...payment.Outcome) *harness {
	t.Helper()
	api := newFakeAPI(t)
	tb, err := tele.NewBot(tele.Settings{
		URL:         api.srv.URL,
		Token:       "test",
		Offline:     true,
		Synchronous: true,
	})
	require.NoError(t, err)

	sched := paymenttest.NewScheduler()
	sessions := payment.NewRegistry(
		payment.WithScheduler(sched),
		payment.WithSimulator(paymenttest.NewOutcomes(outcomes...)),
		payment.WithClock(sched.Now),
	)
	mem := journal.NewMemory(10)
	b := New(Options{Catalog: catalog.MustDefault(), Sessions: sessions, Journal: mem, AdminID: adminID})

	reg := tg.NewRegistry()
	require.NoError(t, b.Register(reg))
	for _, r := range b.Routes(tg.Runtime{Bot: tb, Registry: reg}) {
		tb.Handle(r.Endpoint, r.Handler)
	}
	return &harness{api: api, tb: tb, bot: b, sched: sched, sessions: sessions, journal: mem}
}

func (h *harness) message(from int64, text string) {
	h.nextID++
	h.tb.ProcessUpdate(tele.Update{
		ID: h.nextID,
		Message: &tele.Message{
			ID:     h.nextID,
			Text:   text,
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: from},
		},
	})
}

func (h *harness) callback(data string) {
	h.nextID++
	h.tb.ProcessUpdate(tele.Update{
		ID: h.nextID,
		Callback: &tele.Callback{
			ID:     "cb",
			Data:   data,
			Sender: &tele.User{ID: chatID},
			Message: &tele.Message{
				ID:   10,
				Chat: &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			},
		},
	})
}

// fill walks the conversation from the operator list to the confirm step.
func (h *harness) fill(phone, amount string) {
	h.callback("\fop|mts")
	h.message(chatID, phone)
	h.message(chatID, amount)
}

func TestStartSendsCatalogKeyboard(t *testing.T) {
	h := newHarness(t)

	h.message(chatID, "/start")
	call := h.api.last()
	require.Equal(t, "sendMessage", call.Method)
	assert.Equal(t, textCatalog, call.param("text"))
	assert.Equal(t, "MarkdownV2", call.param("parse_mode"))
	markup := call.param("reply_markup")
	for _, op := range catalog.Defaults() {
		assert.Contains(t, markup, "op|"+op.ID)
	}

	h.api.reset()
	h.message(chatID, "/operators")
	assert.Equal(t, []string{textCatalog}, h.api.texts())
}

func TestOperatorCallbackStartsConversation(t *testing.T) {
	h := newHarness(t)

	h.callback("\fop|beeline")
	assert.Len(t, h.api.byMethod("answerCallbackQuery"), 1)
	edits := h.api.byMethod("editMessageText")
	require.Len(t, edits, 1)
	assert.Equal(t, phonePrompt("Билайн"), edits[0].param("text"))
	assert.Equal(t, StatePhone, h.bot.fsm.GetState(chatID))

	sess, err := h.sessions.Get(chatKey(chatID))
	require.NoError(t, err)
	assert.Equal(t, "yellow", sess.Operator().Color)

	h.message(chatID, "+7 (912) 345-67-89")
	assert.Equal(t, "79123456789", sess.Snapshot().Phone)
	assert.Equal(t, StateAmount, h.bot.fsm.GetState(chatID))

	h.api.reset()
	h.message(chatID, "1x00")
	assert.Equal(t, "100", sess.Snapshot().Amount)
	assert.Equal(t, state.StateIdle, h.bot.fsm.GetState(chatID))
	call := h.api.last()
	assert.Equal(t, summaryText(sess.Snapshot()), call.param("text"))
	assert.Contains(t, call.param("reply_markup"), "pay|submit")
}

func TestUnknownOperatorCallback(t *testing.T) {
	h := newHarness(t)

	h.callback("\fop|tele2")
	resp := h.api.byMethod("answerCallbackQuery")
	require.Len(t, resp, 1)
	assert.Equal(t, "Unknown operator", resp[0].param("text"))
	assert.Zero(t, h.sessions.Len())
}

func TestPaySuccessPushesAndReturnsToCatalog(t *testing.T) {
	h := newHarness(t, payment.OutcomeSuccess)
	h.fill("79123456789", "100")
	h.api.reset()

	h.callback("\fpay|submit")
	assert.Equal(t, []string{textLoading}, h.api.texts())

	h.callback("\fpay|submit")
	resp := h.api.byMethod("answerCallbackQuery")
	require.Len(t, resp, 2)
	assert.Equal(t, "Payment is already processing", resp[1].param("text"))

	h.sched.Advance(payment.DefaultCallDelay)
	assert.Equal(t, []string{textLoading, textSucceeded}, h.api.texts())

	h.sched.Advance(payment.DefaultRedirectDelay)
	assert.Equal(t, []string{textLoading, textSucceeded, textCatalog}, h.api.texts())
	assert.Zero(t, h.sessions.Len())

	entries, err := h.journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.SurfaceTelegram, entries[0].Surface)
	assert.Equal(t, "succeeded", entries[0].Status)
}

func TestPayValidationFailurePushesMessage(t *testing.T) {
	h := newHarness(t)
	h.fill("123", "5000")
	h.api.reset()

	h.callback("\fpay|submit")
	texts := h.api.texts()
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], format.V2("❌ "+payment.MsgInvalidInput)))
	assert.Zero(t, h.sched.Pending())

	h.api.reset()
	h.callback("\fpay|phone")
	assert.Equal(t, StatePhone, h.bot.fsm.GetState(chatID))
	h.message(chatID, "no digits")
	assert.Equal(t, state.StateIdle, h.bot.fsm.GetState(chatID))

	h.api.reset()
	h.callback("\fpay|submit")
	texts = h.api.texts()
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], format.V2("❌ "+payment.MsgMissingFields)))
}

func TestRemoteFailureKeepsFields(t *testing.T) {
	h := newHarness(t, payment.OutcomeFailure)
	h.fill("79123456789", "100")
	h.callback("\fpay|submit")
	h.api.reset()

	h.sched.Advance(payment.DefaultCallDelay)
	texts := h.api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], format.V2("❌ "+payment.MsgRemoteFailure))
	assert.Contains(t, texts[0], "79123456789")

	sess, err := h.sessions.Get(chatKey(chatID))
	require.NoError(t, err)
	assert.Equal(t, "100", sess.Snapshot().Amount)
}

func TestCancelClosesSession(t *testing.T) {
	h := newHarness(t)
	h.fill("79123456789", "100")

	h.api.reset()
	h.callback("\fpay|cancel")
	assert.Zero(t, h.sessions.Len())
	assert.Equal(t, []string{textCatalog}, h.api.texts())

	h.api.reset()
	h.callback("\fpay|submit")
	assert.Equal(t, []string{textNoSession}, h.api.texts())

	h.fill("79123456789", "100")
	h.api.reset()
	h.message(chatID, "/cancel")
	assert.Equal(t, []string{textCancelled}, h.api.texts())
	assert.Zero(t, h.sessions.Len())
}

func TestCancelDuringCallSkipsRedirect(t *testing.T) {
	h := newHarness(t, payment.OutcomeSuccess)
	h.fill("79123456789", "100")
	h.callback("\fpay|submit")
	h.message(chatID, "/cancel")
	h.api.reset()

	h.sched.Advance(payment.DefaultCallDelay + payment.DefaultRedirectDelay)
	assert.Equal(t, []string{textSucceeded}, h.api.texts())
}

func TestAttemptsIsAdminOnly(t *testing.T) {
	h := newHarness(t, payment.OutcomeSuccess)

	h.message(chatID, "/attempts")
	assert.Equal(t, []string{textNoAttempts}, h.api.texts())

	h.fill("79123456789", "100")
	h.callback("\fpay|submit")
	h.sched.Advance(payment.DefaultCallDelay)
	h.api.reset()

	h.message(adminID, "/attempts")
	texts := h.api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], format.V2(logger.MaskPhone("79123456789")))

	h.api.reset()
	h.message(7, "/attempts")
	call := h.api.last()
	assert.Equal(t, textAdminOnly, call.param("text"))
	assert.Empty(t, call.param("parse_mode"))
}

func TestUnknownTextFallback(t *testing.T) {
	h := newHarness(t)

	h.message(chatID, "hello")
	assert.Equal(t, []string{textUnknown}, h.api.texts())
}

func TestStopClosesSessions(t *testing.T) {
	h := newHarness(t)
	h.fill("79123456789", "100")
	require.Equal(t, 1, h.sessions.Len())

	require.NoError(t, h.bot.Stop(context.Background(), tg.Runtime{}))
	assert.Zero(t, h.sessions.Len())
}
