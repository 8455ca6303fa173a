package handlers

import (
	"encoding/csv"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/records"
)

// ExportHandler streams the intake report as CSV.
type ExportHandler struct {
	store  records.Store
	logger *zap.Logger
}

// NewExportHandler creates a new handler
func NewExportHandler(store records.Store, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{store: store, logger: logger}
}

// Routes returns the handler routes
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Export)
	return r
}

var exportHeaders = []string{
	"orderID", "orderDate", "patientMRN", "patientFirstName", "patientLastName",
	"patientDOB", "patientSex", "providerNPI", "providerName", "medication",
	"primaryDiagnosis", "additionalDiagnoses", "medicationHistory",
}

// Export handles GET /export. One row per order, newest first; list fields
// are joined with "; " so each row stays a flat record.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListExportRows(r.Context())
	if err != nil {
		h.logger.Error("export query failed", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="pharma-report.csv"`)

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		h.logger.Error("export write failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		record := []string{
			row.OrderID,
			row.OrderDate.Format(time.RFC3339),
			row.PatientMRN,
			row.PatientFirstName,
			row.PatientLastName,
			row.PatientDOB.Format("2006-01-02"),
			row.PatientSex,
			row.ProviderNPI,
			row.ProviderName,
			row.Medication,
			row.PrimaryDiagnosis,
			strings.Join(row.AdditionalDiagnoses, "; "),
			strings.Join(row.MedicationHistory, "; "),
		}
		if err := cw.Write(record); err != nil {
			h.logger.Error("export write failed", zap.Error(err))
			return
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("export flush failed", zap.Error(err))
	}
}
