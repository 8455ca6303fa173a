// Package handlers provides HTTP handlers for the intake API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/records"
)

const retryMessage = "Unable to complete the check at this time. Please try again."

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeDomainError maps workflow errors onto the HTTP surface. Field errors
// are 400: per-step checks carry the entity and its field map plus the first
// field message as the primary one, submission checks carry one group per
// failing entity. Record conflicts are 409; transient failures are 503 with
// a retry message that never echoes internals.
func writeDomainError(w http.ResponseWriter, err error) {
	var sve *intake.SubmitValidationError
	if errors.As(err, &sve) {
		payload := map[string]interface{}{"success": false}
		for entity, fields := range sve.Entities {
			payload[entity] = fields
		}
		writeJSON(w, http.StatusBadRequest, payload)
		return
	}

	var ve *intake.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   ve.First(),
			"entity":  ve.Entity,
			"errors":  ve.Fields,
		})
		return
	}

	var mismatch *intake.MismatchError
	if errors.As(err, &mismatch) {
		jsonError(w, http.StatusConflict, mismatch.Message)
		return
	}

	var dupKey *intake.DuplicateKeyError
	if errors.As(err, &dupKey) {
		jsonError(w, http.StatusConflict, dupKey.Message)
		return
	}

	var dupOrder *intake.DuplicateOrderError
	if errors.As(err, &dupOrder) {
		jsonError(w, http.StatusConflict, dupOrder.Error())
		return
	}

	var unavailable *intake.UnavailableError
	if errors.As(err, &unavailable) {
		jsonError(w, http.StatusServiceUnavailable, retryMessage)
		return
	}

	var genErr *intake.GenerationError
	if errors.As(err, &genErr) {
		jsonError(w, http.StatusBadGateway, "Care plan generation failed. Please try again.")
		return
	}

	switch {
	case errors.Is(err, intake.ErrSessionNotFound), errors.Is(err, records.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, intake.ErrAlreadySubmitted),
		errors.Is(err, intake.ErrNotSubmitted),
		errors.Is(err, intake.ErrNotAtReview),
		errors.Is(err, intake.ErrAtFirstStep),
		errors.Is(err, intake.ErrAtLastStep),
		errors.Is(err, intake.ErrPlanAlreadyExists):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		jsonError(w, http.StatusInternalServerError, "internal server error")
	}
}
