package intake

// Draft is the in-memory working copy of one intake session: everything the
// operator has typed, before any of it is persisted. Diagnosis and
// medication-history fields stay free text until submission.
type Draft struct {
	Provider ProviderDraft `json:"provider"`
	Patient  PatientDraft  `json:"patient"`
	Order    OrderDraft    `json:"order"`
}

// ProviderDraft holds the step-0 fields.
type ProviderDraft struct {
	NPI  string `json:"npi"`
	Name string `json:"name"`
}

// PatientDraft holds the step-1 identity fields and the step-2 clinical
// fields. DOB is the raw yyyy-mm-dd string as entered.
type PatientDraft struct {
	FirstName           string   `json:"firstName"`
	LastName            string   `json:"lastName"`
	MRN                 string   `json:"mrn"`
	DOB                 string   `json:"dob"`
	Sex                 string   `json:"sex"`
	Weight              *float64 `json:"weight,omitempty"`
	PrimaryDiagnosis    string   `json:"primaryDiagnosis"`
	AdditionalDiagnoses string   `json:"additionalDiagnoses"`
	Allergies           string   `json:"allergies"`
	MedicationHistory   string   `json:"medicationHistory"`
}

// OrderDraft holds the step-2 order fields.
type OrderDraft struct {
	Medication string `json:"medication"`
	Notes      string `json:"notes"`
}
