// Package payment implements the payment screen state machine: field input
// policies, validation, the simulated payment call and the post-success
// navigation back to the operator list.
package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/topup/core/logger"
)

// Default delays of the simulated call and of the post-success redirect.
const (
	DefaultCallDelay     = 2 * time.Second
	DefaultRedirectDelay = 2 * time.Second
)

// OperatorContext is the operator identity the session was opened for.
type OperatorContext struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Snapshot is the read-only view handed to presentation layers.
type Snapshot struct {
	SessionID      string     `json:"session_id"`
	Version        uint64     `json:"version"`
	Phone          string     `json:"phone"`
	Amount         string     `json:"amount"`
	Status         StatusKind `json:"status"`
	Message        string     `json:"message,omitempty"`
	OperatorName   string     `json:"operator"`
	Color          string     `json:"color"`
	SubmitDisabled bool       `json:"submit_disabled"`
	Loading        bool       `json:"loading"`
	Closed         bool       `json:"closed"`
}

// Attempt describes how one submit ended.
type Attempt struct {
	SessionID string
	Operator  string
	Phone     string
	Amount    string
	Status    Status
	At        time.Time
}

type options struct {
	id            string
	simulator     Simulator
	scheduler     Scheduler
	navigator     Navigator
	callDelay     time.Duration
	redirectDelay time.Duration
	now           func() time.Time
	onAttempt     []func(Attempt)
}

// Option customises a Session.
type Option func(*options)

// WithID sets the session identifier used in snapshots and logs.
func WithID(id string) Option { return func(o *options) { o.id = id } }

// WithSimulator replaces the random outcome source.
func WithSimulator(s Simulator) Option {
	return func(o *options) {
		if s != nil {
			o.simulator = s
		}
	}
}

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithNavigator sets the target of the post-success navigation.
func WithNavigator(n Navigator) Option { return func(o *options) { o.navigator = n } }

// WithCallDelay sets the simulated call duration.
func WithCallDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.callDelay = d
		}
	}
}

// WithRedirectDelay sets the delay between success and navigation.
func WithRedirectDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.redirectDelay = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAttemptHook registers a callback invoked after each submit resolves,
// either by validation failure or by the simulated call.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(o *options) {
		if fn != nil {
			o.onAttempt = append(o.onAttempt, fn)
		}
	}
}

// Session owns the mutable state of one payment screen instance.
// All handlers are serialized by the session mutex.
type Session struct {
	opts     options
	operator OperatorContext

	mu       sync.Mutex
	phone    string
	amount   string
	status   Status
	inFlight bool
	closed   bool
	redirect Task
	touched  time.Time
	version  uint64
	subs     []func(Snapshot)
	onClose  []func()
}

// NewSession starts an idle session for the operator passed in the entry
// parameters. Empty values are accepted.
func NewSession(operatorName, color string, opts ...Option) *Session {
	o := options{
		simulator:     NewRandomSimulator(DefaultSuccessThreshold),
		scheduler:     SystemScheduler{},
		callDelay:     DefaultCallDelay,
		redirectDelay: DefaultRedirectDelay,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		opts:     o,
		operator: OperatorContext{Name: operatorName, Color: color},
		status:   idle(),
		touched:  o.now(),
	}
	logger.Debug(context.Background(), logger.CompPayment, "session.open",
		slog.String("session_id", o.id),
		slog.String("operator", operatorName),
	)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.opts.id }

// Operator returns the operator context.
func (s *Session) Operator() OperatorContext { return s.operator }

// Subscribe registers fn to receive a snapshot after every state change.
func (s *Session) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// OnClose registers fn to run once when the session is discarded.
func (s *Session) OnClose(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Snapshot returns the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActivity reports when a handler last touched the session.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// PhoneInput applies the phone input policy to raw.
func (s *Session) PhoneInput(raw string) {
	s.edit(func() bool {
		next := NormalizePhone(raw)
		changed := next != s.phone
		s.phone = next
		return changed
	})
}

// AmountInput applies the amount input policy to raw.
func (s *Session) AmountInput(raw string) {
	s.edit(func() bool {
		next := NormalizeAmount(raw)
		changed := next != s.amount
		s.amount = next
		return changed
	})
}

// edit runs fn under the lock. Edits after success or teardown are dropped.
// A Failed message is left as is.
func (s *Session) edit(fn func() bool) {
	s.mu.Lock()
	if s.closed || s.status.Kind == StatusSucceeded {
		s.mu.Unlock()
		return
	}
	s.touched = s.opts.now()
	if !fn() {
		s.mu.Unlock()
		return
	}
	snap, subs := s.changedLocked()
	s.mu.Unlock()
	publish(subs, snap)
}

// Submit validates the fields and starts the simulated call. It reports
// whether a call was started. While a call is in flight it does nothing.
func (s *Session) Submit() bool {
	s.mu.Lock()
	if s.closed || s.inFlight || s.status.Kind == StatusSubmitting || s.status.Kind == StatusSucceeded {
		kind := s.status.Kind
		s.mu.Unlock()
		logger.Debug(context.Background(), logger.CompPayment, "submit.ignored",
			slog.String("session_id", s.opts.id),
			slog.String("state", kind.String()),
		)
		return false
	}
	s.touched = s.opts.now()

	if verr := s.validateLocked(); verr != nil {
		s.status = failed(verr)
		attempt := s.attemptLocked()
		snap, subs := s.changedLocked()
		s.mu.Unlock()

		logger.Info(context.Background(), logger.CompPayment, "submit.rejected",
			slog.String("status", "fail"),
			slog.String("session_id", s.opts.id),
			slog.String("err", verr.Error()),
			slog.String("err_code", verr.Code()),
		)
		publish(subs, snap)
		s.record(attempt)
		return false
	}

	s.status = submitting()
	s.inFlight = true
	s.opts.scheduler.AfterFunc(s.opts.callDelay, s.resolveCall)
	snap, subs := s.changedLocked()
	s.mu.Unlock()

	logger.Info(context.Background(), logger.CompPayment, "submit.accepted",
		slog.String("status", "ok"),
		slog.String("session_id", s.opts.id),
		slog.String("operator", s.operator.Name),
		slog.Duration("call_delay", s.opts.callDelay),
	)
	publish(subs, snap)
	return true
}

// validateLocked checks validity first and emptiness second; the emptiness
// result replaces the message when it applies.
func (s *Session) validateLocked() *ValidationError {
	var verr *ValidationError
	if !ValidPhone(s.phone) || !ValidAmount(s.amount) {
		verr = &ValidationError{Reason: ReasonInvalidInput}
	}
	if s.phone == "" || s.amount == "" {
		verr = &ValidationError{Reason: ReasonMissingFields}
	}
	return verr
}

func (s *Session) resolveCall() {
	s.complete(s.opts.simulator.Draw())
}

// complete applies the outcome of the simulated call. The call always
// resolves, even after teardown; only the redirect is skipped then.
func (s *Session) complete(outcome Outcome) {
	s.mu.Lock()
	if !s.inFlight {
		s.mu.Unlock()
		return
	}
	phone, amount := s.phone, s.amount
	switch outcome {
	case OutcomeSuccess:
		s.status = succeeded()
		s.phone = ""
		s.amount = ""
		if !s.closed {
			s.redirect = s.opts.scheduler.AfterFunc(s.opts.redirectDelay, s.navigateAway)
		}
	default:
		s.status = failed(&RemoteFailure{})
	}
	s.inFlight = false
	attempt := s.attemptLocked()
	attempt.Phone, attempt.Amount = phone, amount
	snap, subs := s.changedLocked()
	s.mu.Unlock()

	logger.Info(context.Background(), logger.CompPayment, "call.complete",
		slog.String("status", "ok"),
		slog.String("session_id", s.opts.id),
		slog.String("outcome", outcomeLabel(outcome)),
	)
	publish(subs, snap)
	s.record(attempt)
}

func (s *Session) navigateAway() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	hooks := s.closeLocked()
	snap, subs := s.changedLocked()
	nav := s.opts.navigator
	s.mu.Unlock()

	logger.Info(context.Background(), logger.CompPayment, "session.navigate",
		slog.String("session_id", s.opts.id),
		slog.String("path", RootPath),
	)
	publish(subs, snap)
	if nav != nil {
		nav.Navigate(RootPath)
	}
	runHooks(hooks)
}

// Close discards the session. A pending redirect is cancelled; if it fires
// anyway it finds the session closed and does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	hooks := s.closeLocked()
	s.mu.Unlock()

	logger.Debug(context.Background(), logger.CompPayment, "session.close",
		slog.String("session_id", s.opts.id),
	)
	runHooks(hooks)
}

func (s *Session) closeLocked() []func() {
	s.closed = true
	if s.redirect != nil {
		s.redirect.Stop()
		s.redirect = nil
	}
	hooks := s.onClose
	s.onClose = nil
	return hooks
}

func (s *Session) changedLocked() (Snapshot, []func(Snapshot)) {
	s.version++
	subs := make([]func(Snapshot), len(s.subs))
	copy(subs, s.subs)
	return s.snapshotLocked(), subs
}

func (s *Session) snapshotLocked() Snapshot {
	submitting := s.status.Kind == StatusSubmitting
	return Snapshot{
		SessionID:      s.opts.id,
		Version:        s.version,
		Phone:          s.phone,
		Amount:         s.amount,
		Status:         s.status.Kind,
		Message:        s.status.Message(),
		OperatorName:   s.operator.Name,
		Color:          s.operator.Color,
		SubmitDisabled: submitting || s.closed,
		Loading:        submitting,
		Closed:         s.closed,
	}
}

func (s *Session) attemptLocked() Attempt {
	return Attempt{
		SessionID: s.opts.id,
		Operator:  s.operator.Name,
		Phone:     s.phone,
		Amount:    s.amount,
		Status:    s.status,
		At:        s.opts.now(),
	}
}

func (s *Session) record(a Attempt) {
	for _, fn := range s.opts.onAttempt {
		fn(a)
	}
}

func publish(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}

func outcomeLabel(o Outcome) string {
	if o == OutcomeSuccess {
		return "ok"
	}
	return "fail"
}
