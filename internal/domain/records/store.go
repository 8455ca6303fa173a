package records

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateKey is returned by creates that violate a uniqueness
// constraint (provider NPI, patient MRN). Enforced by the constraint
// itself, not by a prior read, so concurrent creators race safely.
var ErrDuplicateKey = errors.New("duplicate key")

// Store is the persistence contract for the intake engine. Implementations:
// the pgx-backed store in internal/infrastructure/postgres and the
// in-memory store in this package.
type Store interface {
	FindProviderByNPI(ctx context.Context, npi string) (*Provider, error)
	// FindProviderByName matches case-insensitively on the full name.
	FindProviderByName(ctx context.Context, name string) (*Provider, error)
	CreateProvider(ctx context.Context, p *Provider) error

	FindPatientByMRN(ctx context.Context, mrn string) (*Patient, error)
	// FindPatientByName matches case-insensitively on first and last name.
	FindPatientByName(ctx context.Context, firstName, lastName string) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error

	// FindRecentDuplicateOrder reports an order for the patient with a
	// case-insensitively equal medication created at or after since.
	// This is a pre-check, not a storage constraint: two concurrent
	// submissions of the same patient+medication can both pass it. That
	// race is an accepted relaxation of the duplicate-order window.
	FindRecentDuplicateOrder(ctx context.Context, patientID, medication string, since time.Time) (*Order, error)
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)

	GetPatient(ctx context.Context, id string) (*Patient, error)

	SaveCarePlan(ctx context.Context, cp *CarePlan) error

	// ListExportRows returns all orders joined with patient and provider,
	// newest first.
	ListExportRows(ctx context.Context) ([]ExportRow, error)
}
