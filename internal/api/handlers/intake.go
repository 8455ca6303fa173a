package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/api/middleware"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/observability/metrics"
)

// IntakeHandler exposes the stateless intake operations: standalone record
// validation for the provider and patient steps, and the terminal
// submission.
type IntakeHandler struct {
	fields    *intake.FieldValidator
	registry  intake.RecordValidator
	submitter intake.Submitter
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewIntakeHandler creates a new handler. metrics may be nil.
func NewIntakeHandler(fields *intake.FieldValidator, registry intake.RecordValidator, submitter intake.Submitter, m *metrics.Metrics, logger *zap.Logger) *IntakeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeHandler{
		fields:    fields,
		registry:  registry,
		submitter: submitter,
		metrics:   m,
		logger:    logger,
	}
}

// Routes returns the handler routes
func (h *IntakeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/provider/validate", h.ValidateProvider)
	r.Post("/patient/validate", h.ValidatePatient)
	r.Post("/intake/submit", h.Submit)
	return r
}

// ValidateProvider handles POST /provider/validate. Local field validation
// runs first; the record check is only reached on clean fields.
func (h *IntakeHandler) ValidateProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("intake-handler")
	ctx, span := tracer.Start(ctx, "validate_provider")
	defer span.End()

	var req intake.ProviderDraft
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if ve := h.fields.Provider(req); ve != nil {
		h.countValidationFailure("provider")
		writeDomainError(w, ve)
		return
	}

	if err := h.registry.ValidateProvider(ctx, req.NPI, req.Name); err != nil {
		h.countValidationFailure("provider")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "valid": true})
}

// ValidatePatient handles POST /patient/validate
func (h *IntakeHandler) ValidatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("intake-handler")
	ctx, span := tracer.Start(ctx, "validate_patient")
	defer span.End()

	var req intake.PatientDraft
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if ve := h.fields.PatientIdentity(req); ve != nil {
		h.countValidationFailure("patient")
		writeDomainError(w, ve)
		return
	}

	err := h.registry.ValidatePatient(ctx, intake.PatientCredentials{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		MRN:       req.MRN,
		DOB:       req.DOB,
		Sex:       req.Sex,
	})
	if err != nil {
		h.countValidationFailure("patient")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "valid": true})
}

// SubmitResponse is the response for a successful submission
type SubmitResponse struct {
	Success  bool          `json:"success"`
	Warnings []string      `json:"warnings,omitempty"`
	Data     SubmitPayload `json:"data"`
}

// SubmitPayload carries the created order reference
type SubmitPayload struct {
	OrderID string `json:"orderId"`
}

// Submit handles POST /intake/submit. The full draft is validated and the
// submission protocol runs; record conflicts abort with 409 and leave no
// order behind.
func (h *IntakeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("intake-handler")
	ctx, span := tracer.Start(ctx, "submit_intake")
	defer span.End()

	var draft intake.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if entityErrs := h.fields.Review(&draft); entityErrs != nil {
		h.countValidationFailure("intake")
		writeDomainError(w, &intake.SubmitValidationError{Entities: entityErrs})
		return
	}

	in, err := draft.Submission()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.submitter.Submit(ctx, in)
	if err != nil {
		h.countConflict(err)
		writeDomainError(w, err)
		return
	}

	span.SetAttributes(attribute.String("order_id", result.OrderID))
	if h.metrics != nil {
		h.metrics.IntakesSubmitted.Inc()
	}
	h.logger.Info("intake submitted",
		zap.String("order_id", result.OrderID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.Int("warnings", len(result.Warnings)))

	writeJSON(w, http.StatusCreated, SubmitResponse{
		Success:  true,
		Warnings: result.Warnings,
		Data:     SubmitPayload{OrderID: result.OrderID},
	})
}

func (h *IntakeHandler) countValidationFailure(entity string) {
	if h.metrics != nil {
		h.metrics.ValidationFailures.WithLabelValues(entity).Inc()
	}
}

func (h *IntakeHandler) countConflict(err error) {
	if h.metrics == nil {
		return
	}
	var dupOrder *intake.DuplicateOrderError
	var dupKey *intake.DuplicateKeyError
	switch {
	case errors.As(err, &dupOrder):
		h.metrics.IntakeConflicts.WithLabelValues("duplicate_order").Inc()
	case errors.As(err, &dupKey):
		h.metrics.IntakeConflicts.WithLabelValues("duplicate_" + dupKey.Entity).Inc()
	}
}
