package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/records"
)

// duplicateOrderWindow is the trailing window in which a repeat order for
// the same patient and medication is rejected.
const duplicateOrderWindow = 24 * time.Hour

// SubmitIntake is the fully validated input to the submission protocol.
// Free-text diagnosis and medication-history fields have already been
// transformed into ordered sequences at this boundary.
type SubmitIntake struct {
	Provider ProviderInput
	Patient  PatientInput
	Order    OrderInput
}

// ProviderInput carries the submitting provider's identity.
type ProviderInput struct {
	NPI  string
	Name string
}

// PatientInput carries the full patient snapshot to persist.
type PatientInput struct {
	FirstName           string
	LastName            string
	MRN                 string
	DOB                 time.Time
	Sex                 string
	Weight              *float64
	PrimaryDiagnosis    string
	AdditionalDiagnoses []string
	Allergies           string
	MedicationHistory   []string
}

// OrderInput carries the order to create.
type OrderInput struct {
	Medication string
	Notes      string
}

// SubmitResult is returned on successful submission.
type SubmitResult struct {
	OrderID  string
	Warnings []string
}

// Submitter runs the terminal submission protocol.
type Submitter interface {
	Submit(ctx context.Context, in SubmitIntake) (*SubmitResult, error)
}

// SplitLines turns a free-text block into an ordered sequence of lines,
// dropping blank lines. Idempotent: re-splitting a single already-split
// line returns it unchanged.
func SplitLines(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Submission converts the draft into submission input. DOB must already
// have passed local validation; a parse failure here is reported as a
// field error rather than a panic.
func (d *Draft) Submission() (SubmitIntake, error) {
	dob, err := time.Parse(dobLayout, d.Patient.DOB)
	if err != nil {
		return SubmitIntake{}, &ValidationError{Entity: "patient", Fields: FieldErrors{"dob": "Invalid date format"}}
	}
	return SubmitIntake{
		Provider: ProviderInput{NPI: d.Provider.NPI, Name: d.Provider.Name},
		Patient: PatientInput{
			FirstName:           d.Patient.FirstName,
			LastName:            d.Patient.LastName,
			MRN:                 d.Patient.MRN,
			DOB:                 dob,
			Sex:                 d.Patient.Sex,
			Weight:              d.Patient.Weight,
			PrimaryDiagnosis:    d.Patient.PrimaryDiagnosis,
			AdditionalDiagnoses: SplitLines(d.Patient.AdditionalDiagnoses),
			Allergies:           d.Patient.Allergies,
			MedicationHistory:   SplitLines(d.Patient.MedicationHistory),
		},
		Order: OrderInput{Medication: d.Order.Medication, Notes: d.Order.Notes},
	}, nil
}

// SubmissionService persists one intake as provider + patient + order.
// Provider and patient commits are independent: a duplicate-order rejection
// at the final step leaves them in place.
type SubmissionService struct {
	store  records.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewSubmissionService creates the service.
func NewSubmissionService(store records.Store, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the submission clock. Test hook.
func (s *SubmissionService) WithClock(now func() time.Time) *SubmissionService {
	s.now = now
	return s
}

// Submit runs the submission protocol:
//  1. resolve the provider (reuse consistent record, else create)
//  2. create the patient; an existing MRN is a conflict, never reused
//  3. duplicate-order pre-check over the trailing 24 hours
//  4. create the order
//  5. return the order ID plus advisory warnings
func (s *SubmissionService) Submit(ctx context.Context, in SubmitIntake) (*SubmitResult, error) {
	provider, err := s.resolveProvider(ctx, in.Provider)
	if err != nil {
		return nil, err
	}

	patient, err := s.createPatient(ctx, in.Patient)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-duplicateOrderWindow)
	dup, err := s.store.FindRecentDuplicateOrder(ctx, patient.ID, in.Order.Medication, since)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, &UnavailableError{Op: "duplicate order check", Err: err}
	}
	if dup != nil {
		return nil, &DuplicateOrderError{Medication: in.Order.Medication}
	}

	order := &records.Order{
		PatientID:  patient.ID,
		ProviderID: provider.ID,
		Medication: in.Order.Medication,
		Notes:      in.Order.Notes,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, &UnavailableError{Op: "order creation", Err: err}
	}

	s.logger.Info("intake submitted",
		zap.String("order_id", order.ID),
		zap.String("mrn", patient.MRN),
		zap.String("npi", provider.NPI),
		zap.String("medication", order.Medication))

	return &SubmitResult{
		OrderID:  order.ID,
		Warnings: clinicalAdvisories(in.Patient, in.Order),
	}, nil
}

// resolveProvider reuses the stored provider when the identity matches and
// creates it otherwise. Conflicting identities abort the submission.
func (s *SubmissionService) resolveProvider(ctx context.Context, in ProviderInput) (*records.Provider, error) {
	byName, err := s.store.FindProviderByName(ctx, in.Name)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, &UnavailableError{Op: "provider lookup", Err: err}
	}
	if byName != nil && byName.NPI != in.NPI {
		return nil, &DuplicateKeyError{
			Entity:  "provider",
			Message: "Provider is already registered with different credentials. Please verify the correct NPI for this provider.",
		}
	}

	byNPI, err := s.store.FindProviderByNPI(ctx, in.NPI)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, &UnavailableError{Op: "provider lookup", Err: err}
	}
	if byNPI != nil {
		if !strings.EqualFold(byNPI.Name, in.Name) {
			return nil, &DuplicateKeyError{
				Entity:  "provider",
				Message: "This NPI is registered to a different provider. Please use matching provider credentials.",
			}
		}
		return byNPI, nil
	}

	provider := &records.Provider{NPI: in.NPI, Name: in.Name, CreatedAt: s.now()}
	err = s.store.CreateProvider(ctx, provider)
	if errors.Is(err, records.ErrDuplicateKey) {
		// Lost a race to a concurrent submission; the constraint decided.
		byNPI, ferr := s.store.FindProviderByNPI(ctx, in.NPI)
		if ferr != nil {
			return nil, &UnavailableError{Op: "provider lookup", Err: ferr}
		}
		if !strings.EqualFold(byNPI.Name, in.Name) {
			return nil, &DuplicateKeyError{
				Entity:  "provider",
				Message: "This NPI is registered to a different provider. Please use matching provider credentials.",
			}
		}
		return byNPI, nil
	}
	if err != nil {
		return nil, &UnavailableError{Op: "provider creation", Err: err}
	}
	return provider, nil
}

// createPatient persists the patient. An existing record under the MRN, or
// a name collision with inconsistent demographics, aborts: this workflow
// never silently reuses or overwrites a patient record.
func (s *SubmissionService) createPatient(ctx context.Context, in PatientInput) (*records.Patient, error) {
	byName, err := s.store.FindPatientByName(ctx, in.FirstName, in.LastName)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, &UnavailableError{Op: "patient lookup", Err: err}
	}
	if byName != nil {
		if !byName.DOB.Equal(in.DOB) || !strings.EqualFold(byName.Sex, in.Sex) {
			return nil, &DuplicateKeyError{
				Entity:  "patient",
				Message: "Patient is already registered with different DOB/sex. Please verify patient credentials.",
			}
		}
		if byName.MRN != in.MRN {
			return nil, &DuplicateKeyError{
				Entity:  "patient",
				Message: "Patient is already registered with different credentials. Please verify the MRN for this patient.",
			}
		}
	}

	byMRN, err := s.store.FindPatientByMRN(ctx, in.MRN)
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return nil, &UnavailableError{Op: "patient lookup", Err: err}
	}
	if byMRN != nil {
		return nil, &DuplicateKeyError{
			Entity:  "patient",
			Message: "Patient with this MRN already exists. Cannot create duplicate patient record.",
		}
	}

	patient := &records.Patient{
		MRN:                 in.MRN,
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		DOB:                 in.DOB,
		Sex:                 in.Sex,
		Weight:              in.Weight,
		PrimaryDiagnosis:    in.PrimaryDiagnosis,
		AdditionalDiagnoses: in.AdditionalDiagnoses,
		Allergies:           in.Allergies,
		MedicationHistory:   in.MedicationHistory,
		CreatedAt:           s.now(),
	}
	err = s.store.CreatePatient(ctx, patient)
	if errors.Is(err, records.ErrDuplicateKey) {
		return nil, &DuplicateKeyError{
			Entity:  "patient",
			Message: "Patient with this MRN already exists. Cannot create duplicate patient record.",
		}
	}
	if err != nil {
		return nil, &UnavailableError{Op: "patient creation", Err: err}
	}
	return patient, nil
}

// clinicalAdvisories computes the non-blocking flags returned alongside a
// successful submission. Advisory only: nothing here rejects an order.
func clinicalAdvisories(p PatientInput, o OrderInput) []string {
	var warnings []string
	med := strings.ToLower(strings.TrimSpace(o.Medication))

	for _, home := range p.MedicationHistory {
		if strings.EqualFold(strings.TrimSpace(home), o.Medication) {
			warnings = append(warnings, fmt.Sprintf(
				"%s already appears in the patient's home medication list. Verify this is not a duplicate therapy.", o.Medication))
			break
		}
	}

	if med != "" && strings.Contains(strings.ToLower(p.Allergies), med) {
		warnings = append(warnings, fmt.Sprintf(
			"Documented allergies mention %s. Review allergy history before dispensing.", o.Medication))
	}

	if p.Weight == nil {
		warnings = append(warnings, "Patient weight not recorded. Obtain weight before any weight-based dosing.")
	}

	return warnings
}
