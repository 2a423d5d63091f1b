// Package httpapi exposes the reminder engine to an external scheduler and operators.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"compliance_notifier/internal/app"
	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/infra/database"
)

// Handler serves the HTTP API.
type Handler struct {
	notifService app.NotificationService
	catalog      *catalog.Catalog
	token        string
	logger       *logrus.Entry
	now          func() time.Time
}

func NewHandler(ns app.NotificationService, cat *catalog.Catalog, token string, logger *logrus.Entry) *Handler {
	return &Handler{notifService: ns, catalog: cat, token: token, logger: logger, now: time.Now}
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/catalog", h.listCatalog)
		r.Post("/cycles", h.runCycle)
		r.Get("/subjects/{id}/upcoming", h.upcoming)
		r.Post("/subjects/{id}/test-notification", h.testNotification)
	})
	return r
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ruleDTO struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Recurrence  string   `json:"recurrence"`
	SubjectType string   `json:"subject_type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, _ *http.Request) {
	rules := h.catalog.ListAll()
	out := make([]ruleDTO, 0, len(rules))
	for _, r := range rules {
		out = append(out, ruleDTO{
			ID:          r.ID,
			Category:    string(r.Category),
			Title:       r.Title,
			Recurrence:  r.Recurrence.String(),
			SubjectType: r.SubjectType,
			Tags:        r.Tags,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// runCycle triggers one evaluation cycle. ?at=RFC3339 evaluates as of another
// instant and ?ignore_hour_gate=true fires regardless of the hour (backfills).
func (h *Handler) runCycle(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be RFC3339")
			return
		}
		at = t
	}
	opts := app.CycleOptions{}
	if v := r.URL.Query().Get("ignore_hour_gate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ignore_hour_gate must be a boolean")
			return
		}
		opts.IgnoreHourGate = b
	}

	summary, err := h.notifService.RunEvaluationCycle(r.Context(), at, opts)
	switch {
	case errors.Is(err, app.ErrCycleLocked):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.WithError(err).Error("Evaluation cycle failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "summary": summary})
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

type upcomingDTO struct {
	RuleID    string `json:"rule_id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Date      string `json:"date,omitempty"`
	DaysUntil *int   `json:"days_until,omitempty"`
	Lag       string `json:"lag,omitempty"`
	Disabled  bool   `json:"disabled"`
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	items, err := h.notifService.Upcoming(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		h.subjectError(w, err)
		return
	}
	out := make([]upcomingDTO, 0, len(items))
	for _, it := range items {
		dto := upcomingDTO{
			RuleID:   it.Rule.ID,
			Title:    it.Rule.Title,
			Category: string(it.Rule.Category),
			Disabled: it.Disabled,
		}
		if it.Resolved {
			days := it.DaysUntil
			dto.Date = it.Date.String()
			dto.DaysUntil = &days
		} else {
			dto.Lag = it.Rule.Recurrence.Lag
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

type testNotificationRequest struct {
	LeadDays int `json:"lead_days"`
}

func (h *Handler) testNotification(w http.ResponseWriter, r *http.Request) {
	req := testNotificationRequest{LeadDays: app.LeadDays30}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	err := h.notifService.SendTestNotification(r.Context(), chi.URLParam(r, "id"), req.LeadDays, h.now())
	if err != nil {
		h.subjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) subjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrSubjectNotFound):
		writeError(w, http.StatusNotFound, "subject not found")
	case errors.Is(err, app.ErrInvalidLeadDays), errors.Is(err, app.ErrNoEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
