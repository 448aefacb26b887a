package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medremind/callsched/internal/cache"
	"github.com/medremind/callsched/internal/model"
	"github.com/medremind/callsched/internal/repo"
	"github.com/medremind/callsched/internal/scheduler"
)

// RunTrigger is the idempotent single-pass entry point exposed to operators
// and external cron.
type RunTrigger interface {
	RunOnce(ctx context.Context, now time.Time) (model.RunReport, error)
}

type Handler struct {
	sched   *scheduler.Scheduler
	runner  RunTrigger
	repo    repo.MedicationRepository
	journal cache.CallJournal
}

// NewHandler wires the HTTP surface. journal may be nil when no call journal
// is configured; confirmations are then acknowledged but not applied.
func NewHandler(s *scheduler.Scheduler, runner RunTrigger, r repo.MedicationRepository, journal cache.CallJournal) *Handler {
	return &Handler{sched: s, runner: runner, repo: r, journal: journal}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// RunNow executes one scheduler pass immediately and returns its report.
// Per-user failures ride inside the report; only an unreachable store turns
// into an HTTP error.
func (h *Handler) RunNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunOnce(r.Context(), time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type createMedicationRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
	Time   string `json:"time"`
}

func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var req createMedicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Name == "" {
		http.Error(w, "userId and name are required", http.StatusBadRequest)
		return
	}
	if err := model.ValidateClock(req.Time); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	m := &model.MedicationReminder{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Name:      req.Name,
		Dosage:    req.Dosage,
		Time:      req.Time,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.Create(r.Context(), m); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	items, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ProviderCallback receives the call provider's form-encoded status report.
// A confirmed outcome marks every medication covered by the call as taken.
// Unknown or expired call references are acknowledged, not failed, so the
// provider does not keep retrying a callback we can never apply.
func (h *Handler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	callRef := r.PostFormValue("callRef")
	outcome := r.PostFormValue("outcome")
	if callRef == "" || outcome == "" {
		http.Error(w, "callRef and outcome are required", http.StatusBadRequest)
		return
	}

	if outcome != "confirmed" {
		slog.Info("call finished without confirmation", "callRef", callRef, "outcome", outcome)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
		return
	}

	if h.journal == nil {
		slog.Warn("confirmation received but no call journal is configured", "callRef", callRef)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
		return
	}

	rec, err := h.journal.LookupCall(r.Context(), callRef)
	if errors.Is(err, cache.ErrCallNotFound) {
		slog.Warn("confirmation for unknown call reference", "callRef", callRef)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.repo.MarkTaken(r.Context(), rec.MedicationIDs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("medications marked taken",
		"callRef", callRef,
		"userId", rec.UserID,
		"count", len(rec.MedicationIDs))

	writeJSON(w, http.StatusOK, map[string]any{
		"acknowledged":      true,
		"medicationsMarked": len(rec.MedicationIDs),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
