package payment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topup/internal/payment"
	"github.com/m3rciful/topup/internal/payment/paymenttest"
)

func newRegistry(seq ...payment.Outcome) (*payment.Registry, *paymenttest.Scheduler) {
	sched := paymenttest.NewScheduler()
	reg := payment.NewRegistry(
		payment.WithScheduler(sched),
		payment.WithClock(sched.Now),
		payment.WithSimulator(paymenttest.NewOutcomes(seq...)),
	)
	return reg, sched
}

func TestRegistryOpenGetClose(t *testing.T) {
	reg, _ := newRegistry()

	s := reg.Open("k1", "МТС", "red")
	assert.Equal(t, "k1", s.ID())
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get("k1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.True(t, reg.Close("k1"))
	assert.False(t, reg.Close("k1"))
	_, err = reg.Get("k1")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
	assert.True(t, s.Snapshot().Closed)
}

func TestRegistryOpenReplacesExisting(t *testing.T) {
	reg, _ := newRegistry()

	first := reg.Open("chat", "МТС", "red")
	second := reg.Open("chat", "Билайн", "yellow")

	assert.True(t, first.Snapshot().Closed)
	assert.False(t, second.Snapshot().Closed)
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get("chat")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRegistryDropsNavigatedSession(t *testing.T) {
	reg, sched := newRegistry(payment.OutcomeSuccess)
	s := reg.Open("k", "Мегафон", "green")
	s.PhoneInput("89991234567")
	s.AmountInput("10")
	require.True(t, s.Submit())

	sched.Advance(payment.DefaultCallDelay)
	assert.Equal(t, 1, reg.Len())
	sched.Advance(payment.DefaultRedirectDelay)
	assert.Zero(t, reg.Len())
}

func TestRegistrySweep(t *testing.T) {
	reg, sched := newRegistry(payment.OutcomeFailure)
	stale := reg.Open("stale", "МТС", "red")

	sched.Advance(10 * time.Minute)
	fresh := reg.Open("fresh", "МТС", "red")
	busy := reg.Open("busy", "МТС", "red")
	busy.PhoneInput("89991234567")
	busy.AmountInput("500")
	require.True(t, busy.Submit())

	assert.Zero(t, reg.Sweep(0))
	assert.Equal(t, 1, reg.Sweep(5*time.Minute))
	assert.True(t, stale.Snapshot().Closed)
	assert.False(t, fresh.Snapshot().Closed)
	assert.Equal(t, 2, reg.Len())

	// busy failed two seconds after submit and is idle from then on
	sched.Advance(10 * time.Minute)
	assert.Equal(t, 2, reg.Sweep(5*time.Minute))
	assert.Zero(t, reg.Len())
}

func TestRegistrySweepKeepsPendingRedirect(t *testing.T) {
	reg, sched := newRegistry(payment.OutcomeSuccess)
	var navs []string
	s := reg.Open("k", "МТС", "red",
		payment.WithCallDelay(2*time.Minute),
		payment.WithRedirectDelay(2*time.Minute),
		payment.WithNavigator(payment.NavigatorFunc(func(path string) {
			navs = append(navs, path)
		})),
	)
	s.PhoneInput("89991234567")
	s.AmountInput("10")
	require.True(t, s.Submit())

	sched.Advance(2 * time.Minute)
	require.Equal(t, payment.StatusSucceeded, s.Status().Kind)
	assert.Zero(t, reg.Sweep(time.Minute))
	assert.Equal(t, 1, reg.Len())

	sched.Advance(2 * time.Minute)
	assert.Equal(t, []string{payment.RootPath}, navs)
	assert.Zero(t, reg.Len())
}

func TestRegistryCloseAll(t *testing.T) {
	reg, _ := newRegistry()
	a := reg.Open("a", "", "")
	b := reg.Open("b", "", "")

	reg.CloseAll()
	assert.Zero(t, reg.Len())
	assert.True(t, a.Snapshot().Closed)
	assert.True(t, b.Snapshot().Closed)
}
