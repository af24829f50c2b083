// Package web serves the operator list and the payment screen over HTTP, as
// server-rendered pages and as a JSON API over the same sessions.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/m3rciful/topup/core/buildinfo"
	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"
)

//go:embed templates/*.html
var templatesFS embed.FS

// CookieName holds the id of the browser's current payment session.
const CookieName = "topup_session"

// Options tunes the HTTP surface.
type Options struct {
	Listen          string
	SubmitRPS       float64
	SubmitBurst     int
	ShutdownTimeout time.Duration
	// RefreshSeconds is the page auto-refresh period while a call or the
	// redirect is pending.
	RefreshSeconds int
	Now            func() time.Time
	NewID          func() string
}

// Server is the HTTP presentation layer.
type Server struct {
	catalog  *catalog.Catalog
	sessions *payment.Registry
	journal  journal.Recorder
	opts     Options
	limiter  *ipLimiter
	pages    *template.Template
}

// New builds a server over the given catalog, session registry and journal.
func New(cat *catalog.Catalog, sessions *payment.Registry, rec journal.Recorder, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.RefreshSeconds <= 0 {
		opts.RefreshSeconds = 1
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if rec == nil {
		rec = journal.NewMemory(journal.MaxLimit)
	}
	return &Server{
		catalog:  cat,
		sessions: sessions,
		journal:  rec,
		opts:     opts,
		limiter:  newIPLimiter(opts.SubmitRPS, opts.SubmitBurst, opts.Now),
		pages:    template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

// Handler returns the routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/-/live", s.live)
	r.Get("/-/ready", s.ready)
	r.Get("/-/version", s.version)

	r.Get("/", s.index)
	r.Get(catalog.PaymentPath, s.openPage)
	r.Route(catalog.PaymentPath+"/{id}", func(r chi.Router) {
		r.Get("/", s.paymentPage)
		r.With(s.limiter.Middleware).Post("/", s.paymentForm)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/operators", s.listOperators)
		r.Get("/attempts", s.listAttempts)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/phone", s.editField(fieldPhone))
			r.Post("/amount", s.editField(fieldAmount))
			r.With(s.limiter.Middleware).Post("/submit", s.submit)
		})
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompHTTP, "server.listen", slog.String("addr", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			s.limiter.cleanup(3 * time.Minute)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			logger.Info(ctx, logger.CompHTTP, "server.shutdown", slog.Bool("clean", err == nil))
			return err
		}
	}
}

func (s *Server) live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) version(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(buildinfo.String() + "\n"))
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.journal.Ping(ctx); err != nil {
		logger.Warn(ctx, logger.CompHTTP, "ready.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("journal unavailable\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

// open starts a session for the entry parameters; attempts go to the journal.
func (s *Server) open(name, color string) *payment.Session {
	id := s.opts.NewID()
	return s.sessions.Open(id, name, color, payment.WithAttemptHook(journal.Hook(s.journal, journal.SurfaceWeb)))
}

func (s *Server) lookup(r *http.Request) (*payment.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	return sess, err == nil
}
