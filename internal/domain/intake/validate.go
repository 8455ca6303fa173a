package intake

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dobLayout = "2006-01-02"

// FieldValidator performs the local, synchronous per-step schema checks.
// Pure: no I/O, no store access.
type FieldValidator struct {
	v *validator.Validate
}

// NewFieldValidator builds the validator with the intake-specific rules
// registered.
func NewFieldValidator() *FieldValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Names may not contain digits.
	_ = v.RegisterValidation("nodigits", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "0123456789")
	})

	// DOB must be a parseable yyyy-mm-dd calendar date.
	_ = v.RegisterValidation("calendardate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dobLayout, fl.Field().String())
		return err == nil
	})

	return &FieldValidator{v: v}
}

type providerFields struct {
	NPI  string `validate:"required,numeric,len=10"`
	Name string `validate:"required,nodigits"`
}

type patientIdentityFields struct {
	FirstName string   `validate:"required,nodigits"`
	LastName  string   `validate:"required,nodigits"`
	MRN       string   `validate:"required,numeric,len=6"`
	DOB       string   `validate:"required,calendardate"`
	Sex       string   `validate:"required,oneof=Male Female Other"`
	Weight    *float64 `validate:"omitempty,gt=0"`
}

type clinicalFields struct {
	PrimaryDiagnosis string `validate:"required"`
}

type orderFields struct {
	Medication string `validate:"required"`
}

// fieldMessages maps struct field + failing tag to the operator-facing
// message. Unlisted combinations fall back to a generic message.
var fieldMessages = map[string]map[string]string{
	"NPI": {
		"required": "NPI is required",
		"numeric":  "NPI must contain only numbers",
		"len":      "NPI must be exactly 10 digits",
	},
	"Name": {
		"required": "Provider name is required",
		"nodigits": "Provider name cannot contain numbers",
	},
	"FirstName": {
		"required": "First name is required",
		"nodigits": "First name cannot contain numbers",
	},
	"LastName": {
		"required": "Last name is required",
		"nodigits": "Last name cannot contain numbers",
	},
	"MRN": {
		"required": "MRN is required",
		"numeric":  "MRN must contain only numbers",
		"len":      "MRN must be exactly 6 digits",
	},
	"DOB": {
		"required":     "Date of birth is required",
		"calendardate": "Invalid date format",
	},
	"Sex": {
		"required": "Sex is required",
		"oneof":    "Sex must be Male, Female or Other",
	},
	"Weight": {
		"gt": "Weight must be positive",
	},
	"PrimaryDiagnosis": {
		"required": "Primary diagnosis is required",
	},
	"Medication": {
		"required": "Medication name is required",
	},
}

// jsonNames maps struct fields to the field names surfaced to callers.
var jsonNames = map[string]string{
	"NPI":              "npi",
	"Name":             "name",
	"FirstName":        "firstName",
	"LastName":         "lastName",
	"MRN":              "mrn",
	"DOB":              "dob",
	"Sex":              "sex",
	"Weight":           "weight",
	"PrimaryDiagnosis": "primaryDiagnosis",
	"Medication":       "medication",
}

// Provider checks the step-0 fields.
func (f *FieldValidator) Provider(d ProviderDraft) *ValidationError {
	return f.check("provider", providerFields{NPI: d.NPI, Name: d.Name})
}

// PatientIdentity checks the step-1 fields.
func (f *FieldValidator) PatientIdentity(d PatientDraft) *ValidationError {
	return f.check("patient", patientIdentityFields{
		FirstName: d.FirstName,
		LastName:  d.LastName,
		MRN:       d.MRN,
		DOB:       d.DOB,
		Sex:       d.Sex,
		Weight:    d.Weight,
	})
}

// Clinical checks the patient-side step-2 fields.
func (f *FieldValidator) Clinical(d PatientDraft) *ValidationError {
	return f.check("patient", clinicalFields{PrimaryDiagnosis: d.PrimaryDiagnosis})
}

// Order checks the order-side step-2 fields.
func (f *FieldValidator) Order(d OrderDraft) *ValidationError {
	return f.check("order", orderFields{Medication: d.Medication})
}

// Review validates the whole draft for the terminal submission, keeping
// failures grouped by entity. The patient group carries both the identity
// and the clinical fields.
func (f *FieldValidator) Review(d *Draft) EntityErrors {
	out := EntityErrors{}

	if ve := f.Provider(d.Provider); ve != nil {
		out["provider"] = ve.Fields
	}

	patient := FieldErrors{}
	for _, ve := range []*ValidationError{f.PatientIdentity(d.Patient), f.Clinical(d.Patient)} {
		if ve == nil {
			continue
		}
		for field, msg := range ve.Fields {
			patient[field] = msg
		}
	}
	if len(patient) > 0 {
		out["patient"] = patient
	}

	if ve := f.Order(d.Order); ve != nil {
		out["order"] = ve.Fields
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Step runs the checks gating a forward transition out of the given step.
// Returns nil when the step's data is valid.
func (f *FieldValidator) Step(step Step, d *Draft) FieldErrors {
	var errs []*ValidationError
	switch step {
	case StepProvider:
		errs = append(errs, f.Provider(d.Provider))
	case StepPatient:
		errs = append(errs, f.PatientIdentity(d.Patient))
	case StepClinicalOrder:
		errs = append(errs, f.Clinical(d.Patient), f.Order(d.Order))
	case StepReview:
		return f.Review(d).Flatten()
	}

	merged := FieldErrors{}
	for _, ve := range errs {
		if ve == nil {
			continue
		}
		for field, msg := range ve.Fields {
			merged[field] = msg
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func (f *FieldValidator) check(entity string, s interface{}) *ValidationError {
	err := f.v.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Entity: entity, Fields: FieldErrors{"_": err.Error()}}
	}

	fields := FieldErrors{}
	for _, fe := range verrs {
		name := jsonNames[fe.StructField()]
		if name == "" {
			name = fe.StructField()
		}
		msg := fieldMessages[fe.StructField()][fe.Tag()]
		if msg == "" {
			msg = name + " is invalid"
		}
		if _, seen := fields[name]; !seen {
			fields[name] = msg
		}
	}
	return &ValidationError{Entity: entity, Fields: fields}
}
