package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/observability/metrics"
)

// SessionHandler exposes the stateful wizard surface. Each session is a
// server-side draft driven through the step machine by next/back/submit
// events.
type SessionHandler struct {
	sessions *intake.SessionManager
	wizard   *intake.Wizard
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSessionHandler creates a new handler. metrics may be nil.
func NewSessionHandler(sessions *intake.SessionManager, wizard *intake.Wizard, m *metrics.Metrics, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, wizard: wizard, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/next", h.Next)
	r.Post("/{id}/back", h.Back)
	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/care-plan", h.CarePlan)
	r.Post("/{id}/restart", h.Restart)
	return r
}

// SessionView is the rendered session state
type SessionView struct {
	ID          string             `json:"id"`
	Step        int                `json:"step"`
	StepName    string             `json:"stepName"`
	Submitted   bool               `json:"submitted"`
	Draft       intake.Draft       `json:"draft"`
	FieldErrors intake.FieldErrors `json:"fieldErrors,omitempty"`
	StepError   string             `json:"stepError,omitempty"`
	OrderID     string             `json:"orderId,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	CarePlan    string             `json:"carePlan,omitempty"`
}

func renderSession(s *intake.Session) SessionView {
	snap := s.Snapshot()
	return SessionView{
		ID:          snap.ID,
		Step:        int(snap.Step),
		StepName:    snap.Step.String(),
		Submitted:   snap.Submitted,
		Draft:       snap.Draft,
		FieldErrors: snap.FieldErrors,
		StepError:   snap.StepError,
		OrderID:     snap.OrderID,
		Warnings:    snap.Warnings,
		CarePlan:    snap.PlanContent,
	}
}

// draftPatch is the optional draft update carried by transition requests.
// Only the sections present are replaced.
type draftPatch struct {
	Provider *intake.ProviderDraft `json:"provider,omitempty"`
	Patient  *intake.PatientDraft  `json:"patient,omitempty"`
	Order    *intake.OrderDraft    `json:"order,omitempty"`
}

// Create handles POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	if h.metrics != nil {
		h.metrics.ActiveSessions.Inc()
	}
	h.logger.Info("session created", zap.String("session_id", s.ID))
	writeJSON(w, http.StatusCreated, renderSession(s))
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(s))
}

// Delete handles DELETE /sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.sessions.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}
	h.sessions.Delete(id)
	if h.metrics != nil {
		h.metrics.ActiveSessions.Dec()
	}
	w.WriteHeader(http.StatusNoContent)
}

// Next handles POST /sessions/{id}/next. The body may carry a draft patch,
// which is applied before the transition is attempted.
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.applyPatch(s, r); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.wizard.Next(r.Context(), s); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(s))
}

// Back handles POST /sessions/{id}/back
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.wizard.Back(s); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(s))
}

// Submit handles POST /sessions/{id}/submit
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.applyPatch(s, r); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.wizard.Submit(r.Context(), s); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IntakesSubmitted.Inc()
	}
	writeJSON(w, http.StatusOK, renderSession(s))
}

// CarePlan handles POST /sessions/{id}/care-plan. The call is synchronous;
// the rotating progress labels are for streaming surfaces and are not
// rendered here.
func (h *SessionHandler) CarePlan(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.wizard.GenerateCarePlan(r.Context(), s, nil); err != nil {
		if h.metrics != nil {
			h.metrics.CarePlanFailures.Inc()
		}
		writeDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.CarePlansGenerated.Inc()
	}
	writeJSON(w, http.StatusOK, renderSession(s))
}

// RestartRequest is the request body for restarting a session
type RestartRequest struct {
	KeepProvider bool `json:"keepProvider"`
}

// Restart handles POST /sessions/{id}/restart
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req RestartRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	h.wizard.Restart(s, req.KeepProvider)
	writeJSON(w, http.StatusOK, renderSession(s))
}

func (h *SessionHandler) applyPatch(s *intake.Session, r *http.Request) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	var patch draftPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		return err
	}
	s.UpdateDraft(patch.Provider, patch.Patient, patch.Order)
	return nil
}
