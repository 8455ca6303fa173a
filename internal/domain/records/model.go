// Package records defines the persistent entities of the intake engine and
// the store contract they are written through.
package records

import "time"

// Provider is a prescriber identified by NPI. Created once per unique NPI
// and immutable within the intake workflow.
type Provider struct {
	ID        string
	NPI       string
	Name      string
	CreatedAt time.Time
}

// Patient is identified by a 6-digit MRN, unique across the store.
type Patient struct {
	ID                  string
	MRN                 string
	FirstName           string
	LastName            string
	DOB                 time.Time
	Sex                 string
	Weight              *float64
	PrimaryDiagnosis    string
	AdditionalDiagnoses []string
	Allergies           string
	MedicationHistory   []string
	CreatedAt           time.Time
}

// Order belongs to exactly one patient and references the submitting
// provider. CreatedAt drives the 24-hour duplicate-order window.
type Order struct {
	ID         string
	PatientID  string
	ProviderID string
	Medication string
	Notes      string
	CreatedAt  time.Time
}

// CarePlan is a generated artifact keyed by order. Plans may be regenerated,
// so there is no uniqueness constraint on OrderID.
type CarePlan struct {
	ID        string
	PatientID string
	OrderID   string
	Content   string
	CreatedAt time.Time
}

// ExportRow is one line of the order report: an order joined with its
// patient and provider.
type ExportRow struct {
	OrderID             string
	OrderDate           time.Time
	PatientMRN          string
	PatientFirstName    string
	PatientLastName     string
	PatientDOB          time.Time
	PatientSex          string
	ProviderNPI         string
	ProviderName        string
	Medication          string
	PrimaryDiagnosis    string
	AdditionalDiagnoses []string
	MedicationHistory   []string
}
