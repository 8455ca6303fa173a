// Package careplan builds pharmacist care plans for submitted orders: a
// structured prompt sent to a text-generation service, with a deterministic
// offline plan when no credential is configured.
package careplan

import (
	"fmt"
	"strings"
	"time"

	"github.com/drfirst/go-intake/internal/domain/records"
)

const systemPrompt = "You are an expert clinical pharmacist. Generate a comprehensive Pharmacist Care Plan based on the patient data provided."

// Age returns the patient's age in whole years as of now.
func Age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// BuildPrompt renders the deterministic generation prompt: the identity
// header, the patient snapshot, the order, and the required four-section
// output structure. Same inputs, same prompt.
func BuildPrompt(p *records.Patient, o *records.Order, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "IMPORTANT: Start the care plan with this exact header format:\n")
	fmt.Fprintf(&b, "Age: %d years\n", Age(p.DOB, now))
	fmt.Fprintf(&b, "DOB: %s\n", p.DOB.Format("01/02/2006"))
	fmt.Fprintf(&b, "Generation Date: %s\n", now.Format("01/02/2006"))
	fmt.Fprintf(&b, "Generation Time: %s\n\n", now.Format("15:04"))

	fmt.Fprintf(&b, "PATIENT DEMOGRAPHICS:\n")
	fmt.Fprintf(&b, "Name: %s %s\n", p.FirstName, p.LastName)
	fmt.Fprintf(&b, "MRN: %s\n", p.MRN)
	fmt.Fprintf(&b, "DOB: %s\n", p.DOB.Format("2006-01-02"))
	fmt.Fprintf(&b, "Sex: %s\n", p.Sex)
	fmt.Fprintf(&b, "Weight: %s\n", weightLine(p.Weight))
	fmt.Fprintf(&b, "Allergies: %s\n", orDefault(p.Allergies, "Not documented"))
	fmt.Fprintf(&b, "Primary Diagnosis: %s\n", p.PrimaryDiagnosis)
	fmt.Fprintf(&b, "Additional Diagnoses: %s\n", joinOrDefault(p.AdditionalDiagnoses, "None documented"))
	fmt.Fprintf(&b, "Current Home Medications: %s\n\n", joinOrDefault(p.MedicationHistory, "None documented"))

	fmt.Fprintf(&b, "CURRENT ORDER:\n")
	fmt.Fprintf(&b, "Medication: %s\n", o.Medication)
	fmt.Fprintf(&b, "Notes: %s\n\n", orDefault(o.Notes, "None"))

	fmt.Fprintf(&b, "CRITICAL: You MUST use this EXACT structure with these EXACT headers. Do not skip any section:\n\n")
	fmt.Fprintf(&b, "Problem list / Drug therapy problems (DTPs)\n")
	fmt.Fprintf(&b, "[Indication for therapy, safety concerns, drug-drug interactions with home medications, contraindications based on allergies, patient-specific risk factors]\n\n")
	fmt.Fprintf(&b, "Goals (SMART)\n")
	fmt.Fprintf(&b, "- Primary: [clinical efficacy goal with timeline]\n")
	fmt.Fprintf(&b, "- Safety: [adverse event prevention targets]\n")
	fmt.Fprintf(&b, "- Process: [completion and monitoring documentation goals]\n\n")
	fmt.Fprintf(&b, "Pharmacist interventions / plan\n")
	fmt.Fprintf(&b, "[Dosing & administration (weight-based if applicable; if weight is missing, recommend obtaining it), premedication, infusion rates & titration, concomitant medications, adverse event management]\n\n")
	fmt.Fprintf(&b, "Monitoring plan & lab schedule\n")
	fmt.Fprintf(&b, "[Labs and vitals before, during and after treatment, with timing, plus clinical follow-up]\n\n")
	fmt.Fprintf(&b, "Be clinically accurate, specific to %s, consider all patient factors provided, and maintain a professional tone.", o.Medication)

	return b.String()
}

// MockPlan is the degraded-mode plan returned when no generation credential
// is configured. Deterministic, clearly labeled as non-clinical mock
// content, and traceable to the patient by name.
func MockPlan(p *records.Patient, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "MOCK CARE PLAN for %s %s\n\n", p.FirstName, p.LastName)
	fmt.Fprintf(&b, "Age: %d years\n", Age(p.DOB, now))
	fmt.Fprintf(&b, "DOB: %s\n", p.DOB.Format("01/02/2006"))
	fmt.Fprintf(&b, "Generation Date: %s\n", now.Format("01/02/2006"))
	fmt.Fprintf(&b, "Generation Time: %s\n\n", now.Format("15:04"))
	fmt.Fprintf(&b, "Problem list / Drug therapy problems (DTPs)\n")
	fmt.Fprintf(&b, "- Sample problem 1\n- Sample problem 2\n\n")
	fmt.Fprintf(&b, "Goals (SMART)\n")
	fmt.Fprintf(&b, "- Primary: Sample goal\n- Safety: Sample safety goal\n- Process: Sample process goal\n\n")
	fmt.Fprintf(&b, "Pharmacist interventions / plan\n")
	fmt.Fprintf(&b, "Dosing & Administration\n- Sample dosing recommendation\n\n")
	fmt.Fprintf(&b, "Monitoring plan & lab schedule\n")
	fmt.Fprintf(&b, "- Sample monitoring plan\n")

	return b.String()
}

func weightLine(w *float64) string {
	if w == nil {
		return "Not provided"
	}
	return fmt.Sprintf("%g kg", *w)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func joinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}
