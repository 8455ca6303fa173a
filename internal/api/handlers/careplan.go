package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/observability/metrics"
)

// CarePlanHandler exposes care plan generation for submitted orders.
type CarePlanHandler struct {
	plans   intake.PlanGenerator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCarePlanHandler creates a new handler. metrics may be nil.
func NewCarePlanHandler(plans intake.PlanGenerator, m *metrics.Metrics, logger *zap.Logger) *CarePlanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CarePlanHandler{plans: plans, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *CarePlanHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate", h.Generate)
	return r
}

// GenerateRequest is the request body for generating a care plan
type GenerateRequest struct {
	OrderID string `json:"orderId"`
}

// GenerateResponse is the response for a generated care plan
type GenerateResponse struct {
	Success  bool            `json:"success"`
	CarePlan CarePlanPayload `json:"carePlan"`
}

// CarePlanPayload carries the generated plan text
type CarePlanPayload struct {
	OrderID string `json:"orderId"`
	Content string `json:"content"`
}

// Generate handles POST /care-plan/generate. A failed generation returns an
// error and no partial text; the order itself is unaffected and the call can
// be retried.
func (h *CarePlanHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("careplan-handler")
	ctx, span := tracer.Start(ctx, "generate_care_plan")
	defer span.End()

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		jsonError(w, http.StatusBadRequest, "orderId is required")
		return
	}
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	start := time.Now()
	content, err := h.plans.Generate(ctx, req.OrderID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.CarePlanFailures.Inc()
		}
		h.logger.Warn("care plan generation failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.CarePlansGenerated.Inc()
		h.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:  true,
		CarePlan: CarePlanPayload{OrderID: req.OrderID, Content: content},
	})
}
