package careplan

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-intake/internal/domain/records"
)

func TestAge(t *testing.T) {
	dob := time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 40, Age(dob, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 39, Age(dob, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)), "day before the birthday")
	assert.Equal(t, 40, Age(dob, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)), "on the birthday")
}

func promptPatient() *records.Patient {
	w := 72.5
	return &records.Patient{
		ID:                  "pat-1",
		MRN:                 "123456",
		FirstName:           "John",
		LastName:            "Smith",
		DOB:                 time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC),
		Sex:                 "Male",
		Weight:              &w,
		Allergies:           "Penicillin",
		PrimaryDiagnosis:    "Rheumatoid arthritis",
		AdditionalDiagnoses: []string{"Hypertension", "GERD"},
		MedicationHistory:   []string{"Lisinopril 10mg daily"},
	}
}

func TestBuildPrompt(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	order := &records.Order{ID: "ord-1", PatientID: "pat-1", Medication: "Infliximab", Notes: "Standard dosing"}

	prompt := BuildPrompt(promptPatient(), order, now)

	assert.Contains(t, prompt, "Age: 40 years\n")
	assert.Contains(t, prompt, "DOB: 03/12/1985\n")
	assert.Contains(t, prompt, "Generation Date: 06/01/2025\n")
	assert.Contains(t, prompt, "Generation Time: 14:30\n")

	assert.Contains(t, prompt, "Name: John Smith\n")
	assert.Contains(t, prompt, "Weight: 72.5 kg\n")
	assert.Contains(t, prompt, "Additional Diagnoses: Hypertension, GERD\n")
	assert.Contains(t, prompt, "Medication: Infliximab\n")

	for _, header := range []string{
		"Problem list / Drug therapy problems (DTPs)",
		"Goals (SMART)",
		"Pharmacist interventions / plan",
		"Monitoring plan & lab schedule",
	} {
		assert.Contains(t, prompt, header)
	}

	// Deterministic for fixed inputs.
	require.Equal(t, prompt, BuildPrompt(promptPatient(), order, now))
}

func TestBuildPromptDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	p := promptPatient()
	p.Weight = nil
	p.Allergies = "  "
	p.AdditionalDiagnoses = nil
	p.MedicationHistory = nil
	order := &records.Order{ID: "ord-1", PatientID: "pat-1", Medication: "Infliximab"}

	prompt := BuildPrompt(p, order, now)

	assert.Contains(t, prompt, "Weight: Not provided\n")
	assert.Contains(t, prompt, "Allergies: Not documented\n")
	assert.Contains(t, prompt, "Additional Diagnoses: None documented\n")
	assert.Contains(t, prompt, "Current Home Medications: None documented\n")
	assert.Contains(t, prompt, "Notes: None\n")
}

func TestMockPlan(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	plan := MockPlan(promptPatient(), now)

	assert.True(t, strings.HasPrefix(plan, "MOCK CARE PLAN for John Smith\n"))
	assert.Contains(t, plan, "Age: 40 years\n")
	assert.Contains(t, plan, "Goals (SMART)")
	assert.Contains(t, plan, "Monitoring plan & lab schedule")
}
