package web

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/payment"
)

type operatorView struct {
	catalog.Operator
	Href string `json:"href"`
}

type indexView struct {
	Title     string
	Refresh   int
	Operators []operatorView
}

type paymentView struct {
	Title    string
	Refresh  int
	Action   string
	Snapshot payment.Snapshot
	// Color is the operator colour from the entry link, rendered as given.
	Color template.CSS
}

func (s *Server) operatorViews() []operatorView {
	ops := s.catalog.List()
	out := make([]operatorView, 0, len(ops))
	for _, op := range ops {
		out = append(out, operatorView{Operator: op, Href: catalog.NavigationTarget(op).String()})
	}
	return out
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index", indexView{Title: "Mobile top-up", Operators: s.operatorViews()})
}

// openPage replaces the browser's current session with a new one for the
// entry parameters and redirects to it.
func (s *Server) openPage(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		s.sessions.Close(c.Value)
	}
	name, color := catalog.EntryParams(r.URL.Query())
	sess := s.open(name, color)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, sessionPath(sess.ID()), http.StatusSeeOther)
}

// paymentPage renders the form. Unknown or closed sessions go back to the
// operator list, which is also where a finished payment ends up.
func (s *Server) paymentPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		http.Redirect(w, r, payment.RootPath, http.StatusSeeOther)
		return
	}
	snap := sess.Snapshot()
	view := paymentView{
		Title:    snap.OperatorName,
		Action:   sessionPath(sess.ID()),
		Snapshot: snap,
		Color:    template.CSS(snap.Color),
	}
	if snap.Status == payment.StatusSubmitting || snap.Status == payment.StatusSucceeded {
		view.Refresh = s.opts.RefreshSeconds
	}
	s.render(w, r, "payment", view)
}

// paymentForm applies both fields through the input policies and submits
// when the pay button was used.
func (s *Server) paymentForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		http.Redirect(w, r, payment.RootPath, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if _, ok := r.PostForm["phone"]; ok {
		sess.PhoneInput(r.PostForm.Get("phone"))
	}
	if _, ok := r.PostForm["amount"]; ok {
		sess.AmountInput(r.PostForm.Get("amount"))
	}
	if r.PostForm.Get("action") == "submit" {
		sess.Submit()
	}
	http.Redirect(w, r, sessionPath(sess.ID()), http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "render.fail",
			slog.String("template", name),
			slog.String("err", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func sessionPath(id string) string {
	return catalog.PaymentPath + "/" + id
}
