package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topup/core/bootstrap"
	coreconfig "github.com/m3rciful/topup/core/config"
	"github.com/m3rciful/topup/core/database"
	"github.com/m3rciful/topup/internal/payment"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, coreconfig.DefaultHTTPListen, cfg.HTTP.Listen)
	assert.Equal(t, database.DriverNone, cfg.Journal.Driver)
	assert.Equal(t, payment.DefaultCallDelay, cfg.Payment.CallDelay())
	assert.Equal(t, payment.DefaultRedirectDelay, cfg.Payment.RedirectDelay())
	assert.InDelta(t, payment.DefaultSuccessThreshold, cfg.Payment.SuccessThreshold, 1e-9)
	assert.False(t, cfg.Telegram.Enabled())

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Len())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
http:
  listen: ":9090"
payment:
  call_delay_ms: 500
  success_threshold: 0
journal:
  driver: sqlite
  dsn: /tmp/topup-test.db
operators:
  - id: tele2
    name: Tele2
    color: black
`)
	t.Setenv("PAYMENT_REDIRECT_DELAY_MS", "750")
	t.Setenv("HTTP_LISTEN", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.Payment.CallDelay())
	assert.Equal(t, 750*time.Millisecond, cfg.Payment.RedirectDelay())
	assert.Zero(t, cfg.Payment.SuccessThreshold)
	assert.Equal(t, database.DriverSQLite, cfg.Journal.Driver)
	assert.Equal(t, 1, cfg.Journal.MaxConnections)

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	op, ok := cat.Lookup("tele2")
	require.True(t, ok)
	assert.Equal(t, "Tele2", op.Name)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"threshold": "payment:\n  success_threshold: 1.5\n",
		"delay":     "payment:\n  call_delay_ms: -1\n",
		"driver":    "journal:\n  driver: mysql\n",
		"operators": "operators:\n  - id: a\n    name: A\n  - id: a\n    name: B\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func testBootstrap(t *testing.T, cfg *Config) *App {
	t.Helper()
	require.NoError(t, cfg.Normalize())
	a, err := BootstrapWith(context.Background(), cfg, BootstrapOptions{
		Bootstrap: bootstrap.Options{LoggerInit: func(*coreconfig.Config) error { return nil }},
	})
	require.NoError(t, err)
	return a
}

func TestBootstrapWithoutTelegram(t *testing.T) {
	a := testBootstrap(t, &Config{Payment: PaymentConfig{SuccessThreshold: -1}})

	names := serviceNames(a)
	assert.Equal(t, []string{"http", "janitor"}, names)
	assert.Nil(t, a.async)
	assert.Len(t, a.registries, 1)
	require.NoError(t, a.Close())
}

func TestBootstrapWithTelegram(t *testing.T) {
	cfg := &Config{Payment: PaymentConfig{SuccessThreshold: -1}}
	cfg.Telegram.Token = "123:abc"
	a := testBootstrap(t, cfg)

	assert.Equal(t, []string{"http", "janitor", "telegram"}, serviceNames(a))
	assert.Len(t, a.registries, 2)
	_, _, ok := a.botReg.LookupCommand("/start")
	assert.True(t, ok)
	require.NoError(t, a.Close())
}

func TestJanitorSweepsAndStops(t *testing.T) {
	a := testBootstrap(t, &Config{Payment: PaymentConfig{SuccessThreshold: -1}})
	defer func() { _ = a.Close() }()

	reg := a.registries[0]
	reg.Open("idle", "MTS", "red")
	assert.Zero(t, a.sweep())
	assert.Equal(t, 1, reg.Len())

	a.ttl = time.Nanosecond
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, a.sweep())
	assert.Zero(t, reg.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.runJanitor(ctx))
}

func TestCloseDiscardsSessions(t *testing.T) {
	a := testBootstrap(t, &Config{Payment: PaymentConfig{SuccessThreshold: -1}})
	sess := a.registries[0].Open("k", "MTS", "red")

	require.NoError(t, a.Close())
	assert.True(t, sess.Snapshot().Closed)
}

func serviceNames(a *App) []string {
	var names []string
	for _, s := range a.Services() {
		names = append(names, s.Name)
	}
	return names
}
