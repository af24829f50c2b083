package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topup/core/buildinfo"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"
	"github.com/m3rciful/topup/internal/payment/paymenttest"
)

type fixture struct {
	srv      *Server
	handler  http.Handler
	sched    *paymenttest.Scheduler
	sessions *payment.Registry
	journal  *journal.Memory
}

func newFixture(t *testing.T, outcomes *paymenttest.Outcomes, opts Options) *fixture {
	t.Helper()
	sched := paymenttest.NewScheduler()
	reg := payment.NewRegistry(
		payment.WithScheduler(sched),
		payment.WithSimulator(outcomes),
		payment.WithClock(sched.Now),
	)
	mem := journal.NewMemory(10)
	n := 0
	opts.NewID = func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
	opts.Now = sched.Now
	srv := New(catalog.MustDefault(), reg, mem, opts)
	return &fixture{srv: srv, handler: srv.Handler(), sched: sched, sessions: reg, journal: mem}
}

func (f *fixture) do(t *testing.T, method, target string, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func form(values url.Values) (string, http.Header) {
	return values.Encode(), http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
}

var jsonHeader = http.Header{"Content-Type": {"application/json"}}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) payment.Snapshot {
	t.Helper()
	var snap payment.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func TestIndexListsOperators(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	rec := f.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	for _, op := range catalog.Defaults() {
		assert.Contains(t, body, op.Name)
	}
	assert.Contains(t, body, "/payment?")
}

func TestOpenPageRedirectsAndReplacesSession(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	rec := f.do(t, http.MethodGet, "/payment?operator=MTS&color=red", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/payment/s1", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "s1", cookies[0].Value)

	sess, err := f.sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "MTS", sess.Operator().Name)
	assert.Equal(t, "red", sess.Operator().Color)

	rec = f.do(t, http.MethodGet, "/payment?operator=Beeline&color=yellow", "", http.Header{"Cookie": {CookieName + "=s1"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/payment/s2", rec.Header().Get("Location"))
	assert.Equal(t, 1, f.sessions.Len())
	_, err = f.sessions.Get("s1")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestOpenPageAcceptsMissingParams(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	rec := f.do(t, http.MethodGet, "/payment", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = f.do(t, http.MethodGet, "/payment/s1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `placeholder="From 1 to 1000 RUB"`)
}

func TestPaymentPageRendersColorAsGiven(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	colors := []string{"red", "#ff0000", "rgb(255, 0, 0)", "hsl(120 100% 25%)"}
	for i, color := range colors {
		rec := f.do(t, http.MethodGet, "/payment?operator=MTS&color="+url.QueryEscape(color), "", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		rec = f.do(t, http.MethodGet, fmt.Sprintf("/payment/s%d", i+1), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `style="color: `+color+`"`, color)
		assert.NotContains(t, body, "ZgotmplZ")
	}

	// quotes cannot leave the attribute
	rec := f.do(t, http.MethodGet, "/payment?operator=MTS&color="+url.QueryEscape(`red" onclick="x`), "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/payment/s%d", len(colors)+1), "", nil)
	assert.NotContains(t, rec.Body.String(), `onclick="x"`)
}

func TestUnknownPaymentPageRedirectsHome(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	rec := f.do(t, http.MethodGet, "/payment/missing", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestFormValidationMessages(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})
	f.do(t, http.MethodGet, "/payment?operator=MTS&color=red", "", nil)

	body, hdr := form(url.Values{"phone": {""}, "amount": {"5"}, "action": {"submit"}})
	rec := f.do(t, http.MethodPost, "/payment/s1", body, hdr)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := f.do(t, http.MethodGet, "/payment/s1", "", nil).Body.String()
	assert.Contains(t, page, payment.MsgMissingFields)

	body, hdr = form(url.Values{"phone": {"123"}, "amount": {"5000"}, "action": {"submit"}})
	f.do(t, http.MethodPost, "/payment/s1", body, hdr)
	page = f.do(t, http.MethodGet, "/payment/s1", "", nil).Body.String()
	assert.Contains(t, page, payment.MsgInvalidInput)
	assert.Contains(t, page, `value="123"`)
	assert.Zero(t, f.sched.Pending())
}

func TestFormSuccessFlowReturnsHome(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(payment.OutcomeSuccess), Options{})
	f.do(t, http.MethodGet, "/payment?operator=MTS&color=red", "", nil)

	body, hdr := form(url.Values{"phone": {"+7 (912) 345-67-89"}, "amount": {"100"}, "action": {"submit"}})
	rec := f.do(t, http.MethodPost, "/payment/s1", body, hdr)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := f.do(t, http.MethodGet, "/payment/s1", "", nil).Body.String()
	assert.Contains(t, page, `class="loader"`)
	assert.Contains(t, page, `http-equiv="refresh"`)
	assert.NotContains(t, page, `name="action"`)

	f.sched.Advance(payment.DefaultCallDelay)
	page = f.do(t, http.MethodGet, "/payment/s1", "", nil).Body.String()
	assert.Contains(t, page, payment.MsgSucceeded)
	assert.Contains(t, page, `value=""`)

	f.sched.Advance(payment.DefaultRedirectDelay)
	rec = f.do(t, http.MethodGet, "/payment/s1", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Zero(t, f.sessions.Len())

	entries, err := f.journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "succeeded", entries[0].Status)
	assert.Equal(t, journal.SurfaceWeb, entries[0].Surface)
	assert.Equal(t, "100", entries[0].Amount)
}

func TestAPISessionLifecycle(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(payment.OutcomeFailure), Options{})

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", `{"operator":"Megafon","color":"green"}`, jsonHeader)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/v1/sessions/s1", rec.Header().Get("Location"))
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, "Megafon", snap.OperatorName)
	assert.Equal(t, payment.StatusIdle, snap.Status)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/phone", `{"value":"8-912-345-67-89-00"}`, jsonHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "89123456789", decodeSnapshot(t, rec).Phone)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/amount", `{"value":"5a0"}`, jsonHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50", decodeSnapshot(t, rec).Amount)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/submit", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	snap = decodeSnapshot(t, rec)
	assert.True(t, snap.Loading)
	assert.True(t, snap.SubmitDisabled)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/submit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	f.sched.Advance(payment.DefaultCallDelay)
	rec = f.do(t, http.MethodGet, "/api/v1/sessions/s1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decodeSnapshot(t, rec)
	assert.Equal(t, payment.StatusFailed, snap.Status)
	assert.Equal(t, payment.MsgRemoteFailure, snap.Message)
	assert.Equal(t, "89123456789", snap.Phone)

	rec = f.do(t, http.MethodGet, "/api/v1/attempts?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var attempts attemptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempts))
	require.Len(t, attempts.Attempts, 1)
	assert.Equal(t, "remote_failure", attempts.Attempts[0].ErrCode)
	assert.Equal(t, "89*******89", attempts.Attempts[0].PhoneMasked)

	rec = f.do(t, http.MethodDelete, "/api/v1/sessions/s1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/s1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), payment.ErrSessionNotFound.Error())
}

func TestAPIRejectsBadInput(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", `{"operator":`, jsonHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.do(t, http.MethodPost, "/api/v1/sessions", `{}`, jsonHeader)
	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/phone", `{"phone":"1"}`, jsonHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/attempts?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/nope/submit", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIListOperators(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})

	rec := f.do(t, http.MethodGet, "/api/v1/operators", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var ops []operatorView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	require.Len(t, ops, 3)
	assert.Equal(t, "mts", ops[0].ID)
	assert.Equal(t, catalog.NavigationTarget(ops[0].Operator).String(), ops[0].Href)
}

func TestSubmitRateLimited(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{SubmitRPS: 0.5, SubmitBurst: 1})
	f.do(t, http.MethodPost, "/api/v1/sessions", `{}`, jsonHeader)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/s1/submit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/submit", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	f.sched.Advance(2 * time.Second)
	rec = f.do(t, http.MethodPost, "/api/v1/sessions/s1/submit", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterCleanup(t *testing.T) {
	sched := paymenttest.NewScheduler()
	l := newIPLimiter(1, 1, sched.Now)
	ok, _ := l.allow("10.0.0.1")
	require.True(t, ok)
	sched.Advance(time.Minute)
	l.allow("10.0.0.2")

	l.cleanup(30 * time.Second)
	assert.Equal(t, 1, l.size())
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, journal.Entry) error { return errors.New("db down") }

func (failingRecorder) Recent(context.Context, int) ([]journal.Entry, error) {
	return nil, errors.New("db down")
}

func (failingRecorder) Ping(context.Context) error { return errors.New("db down") }

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, paymenttest.NewOutcomes(), Options{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/-/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/-/ready", "", nil).Code)
	assert.Contains(t, f.do(t, http.MethodGet, "/-/version", "", nil).Body.String(), buildinfo.Version)

	srv := New(catalog.MustDefault(), payment.NewRegistry(), failingRecorder{}, Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/attempts", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
