// Package intake implements the intake workflow: per-step field validation,
// record cross-checks, the step-gated wizard, and the submission protocol.
package intake

import "fmt"

// FieldErrors maps a field name to a human-readable message.
type FieldErrors map[string]string

// ValidationError carries per-field messages for one entity of the draft.
// It blocks a forward transition; no remote call is made while it stands.
type ValidationError struct {
	Entity string // "provider", "patient" or "order"
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %d field error(s)", e.Entity, len(e.Fields))
}

// First returns one of the field messages, for surfaces that show a single
// primary message.
func (e *ValidationError) First() string {
	for _, msg := range e.Fields {
		return msg
	}
	return ""
}

// EntityErrors groups per-field messages by draft entity: "provider",
// "patient" and "order". Only entities with failures appear.
type EntityErrors map[string]FieldErrors

// Flatten merges all entity groups into one field map for surfaces that
// render a single step's errors. Field names do not collide across
// entities.
func (e EntityErrors) Flatten() FieldErrors {
	merged := FieldErrors{}
	for _, fields := range e {
		for name, msg := range fields {
			merged[name] = msg
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// SubmitValidationError carries the full-draft validation result of the
// terminal submission: failures grouped by entity and, within each entity,
// by field.
type SubmitValidationError struct {
	Entities EntityErrors
}

func (e *SubmitValidationError) Error() string {
	return fmt.Sprintf("submission validation failed: %d entity group(s)", len(e.Entities))
}

// MismatchError means the supplied identity conflicts with an existing
// authoritative record. The input is known-bad; retrying without correcting
// it will not help.
type MismatchError struct {
	Entity  string
	Message string
}

func (e *MismatchError) Error() string { return e.Message }

// UnavailableError means a record check or generation call could not be
// completed. It says nothing about the data; the caller should retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable, please retry: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// DuplicateKeyError is an identity conflict found during submission: a
// patient already stored under the MRN, or provider credentials colliding
// with an existing record.
type DuplicateKeyError struct {
	Entity  string
	Message string
}

func (e *DuplicateKeyError) Error() string { return e.Message }

// DuplicateOrderError means an order for the same patient with the same
// medication (case-insensitive) was created within the trailing 24 hours.
type DuplicateOrderError struct {
	Medication string
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("duplicate order: %s was ordered for this patient within the last 24 hours", e.Medication)
}

// GenerationError means the care-plan generation call failed. The submitted
// order is unaffected and generation can be retried.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("care plan generation failed: %v", e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }
