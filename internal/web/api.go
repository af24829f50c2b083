package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"
)

const maxBodyBytes = 4 << 10

type createSessionRequest struct {
	Operator string `json:"operator"`
	Color    string `json:"color"`
}

type fieldRequest struct {
	Value string `json:"value"`
}

type attemptsResponse struct {
	Attempts []journal.Entry `json:"attempts"`
}

type field int

const (
	fieldPhone field = iota
	fieldAmount
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(r.Context(), logger.CompHTTP, "encode.fail", slog.String("err", err.Error()))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) listOperators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.operatorViews())
}

func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	limit := journal.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "attempts.fail", slog.String("err", err.Error()))
		writeError(w, r, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, r, http.StatusOK, attemptsResponse{Attempts: entries})
}

// createSession opens a session with the entry parameters used verbatim;
// empty values are accepted.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess := s.open(req.Operator, req.Color)
	w.Header().Set("Location", "/api/v1/sessions/"+sess.ID())
	writeJSON(w, r, http.StatusCreated, sess.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		writeError(w, r, http.StatusNotFound, payment.ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		writeError(w, r, http.StatusNotFound, payment.ErrSessionNotFound.Error())
		return
	}
	s.sessions.Close(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) editField(f field) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookup(r)
		if !ok {
			writeError(w, r, http.StatusNotFound, payment.ErrSessionNotFound.Error())
			return
		}
		var req fieldRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
		switch f {
		case fieldPhone:
			sess.PhoneInput(req.Value)
		case fieldAmount:
			sess.AmountInput(req.Value)
		}
		writeJSON(w, r, http.StatusOK, sess.Snapshot())
	}
}

// submit answers 202 when a call was started and 200 otherwise; the snapshot
// tells which state the session is in.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		writeError(w, r, http.StatusNotFound, payment.ErrSessionNotFound.Error())
		return
	}
	status := http.StatusOK
	if sess.Submit() {
		status = http.StatusAccepted
	}
	writeJSON(w, r, status, sess.Snapshot())
}
