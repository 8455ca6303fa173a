package intake

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/records"
	"github.com/drfirst/go-intake/pkg/circuitbreaker"
)

// PatientCredentials are the identity fields checked against the
// authoritative patient record.
type PatientCredentials struct {
	FirstName string
	LastName  string
	MRN       string
	DOB       string
	Sex       string
}

// RecordValidator confirms a supplied identity against existing
// authoritative records. A new identity (no record yet) is acceptable.
type RecordValidator interface {
	ValidateProvider(ctx context.Context, npi, name string) error
	ValidatePatient(ctx context.Context, cred PatientCredentials) error
}

// Registry validates identities against the record store. Store access runs
// through a circuit breaker so a struggling database surfaces as
// "unavailable, retry" instead of hanging every forward transition.
type Registry struct {
	store   records.Store
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewRegistry creates a Registry. breaker may be nil.
func NewRegistry(store records.Store, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, breaker: breaker, logger: logger}
}

// ValidateProvider succeeds when the NPI is unused, or when the stored
// record under that NPI carries a consistent name. A name registered under
// a different NPI, or an NPI registered to a different name, is a mismatch.
func (r *Registry) ValidateProvider(ctx context.Context, npi, name string) error {
	return r.guarded(ctx, "provider check", func() error {
		byName, err := r.store.FindProviderByName(ctx, name)
		if err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}
		if byName != nil && byName.NPI != npi {
			return &MismatchError{
				Entity:  "provider",
				Message: "Provider is already registered with different credentials. Please verify the correct NPI for this provider.",
			}
		}

		byNPI, err := r.store.FindProviderByNPI(ctx, npi)
		if err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}
		if byNPI != nil && !strings.EqualFold(byNPI.Name, name) {
			return &MismatchError{
				Entity:  "provider",
				Message: "This NPI is registered to a different provider. Please use matching provider credentials.",
			}
		}
		return nil
	})
}

// ValidatePatient succeeds when the MRN is unused, or when the stored record
// is consistent with the supplied demographics. Name collisions with
// different DOB/sex or a different MRN, and MRN collisions with a different
// name, are mismatches.
func (r *Registry) ValidatePatient(ctx context.Context, cred PatientCredentials) error {
	return r.guarded(ctx, "patient check", func() error {
		byName, err := r.store.FindPatientByName(ctx, cred.FirstName, cred.LastName)
		if err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}
		if byName != nil {
			if byName.DOB.Format(dobLayout) != cred.DOB || !strings.EqualFold(byName.Sex, cred.Sex) {
				return &MismatchError{
					Entity:  "patient",
					Message: "Patient is already registered with different credentials. Please verify DOB and sex.",
				}
			}
			if byName.MRN != cred.MRN {
				return &MismatchError{
					Entity:  "patient",
					Message: "Patient is already registered with different credentials. Please verify MRN.",
				}
			}
		}

		byMRN, err := r.store.FindPatientByMRN(ctx, cred.MRN)
		if err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}
		if byMRN != nil && (!strings.EqualFold(byMRN.FirstName, cred.FirstName) || !strings.EqualFold(byMRN.LastName, cred.LastName)) {
			return &MismatchError{
				Entity:  "patient",
				Message: "This MRN is registered to a different patient. Please verify patient credentials.",
			}
		}
		return nil
	})
}

// guarded runs fn through the breaker and folds transport-level failures
// into UnavailableError. Mismatches pass through untouched: they are
// authoritative answers, not service failures, and must not trip the
// breaker.
func (r *Registry) guarded(ctx context.Context, op string, fn func() error) error {
	run := func() (interface{}, error) { return nil, fn() }

	var err error
	if r.breaker != nil {
		_, err = r.breaker.Execute(ctx, run)
	} else {
		_, err = run()
	}
	if err == nil {
		return nil
	}

	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		return mismatch
	}

	r.logger.Warn("record check failed", zap.String("op", op), zap.Error(err))
	return &UnavailableError{Op: op, Err: err}
}
