package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/records"
)

func newIntakeServer(t *testing.T, store *records.MemStore) *httptest.Server {
	t.Helper()
	h := NewIntakeHandler(
		intake.NewFieldValidator(),
		intake.NewRegistry(store, nil, nil),
		intake.NewSubmissionService(store, nil),
		nil, nil,
	)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func fullDraft() intake.Draft {
	w := 72.5
	return intake.Draft{
		Provider: intake.ProviderDraft{NPI: "1234567890", Name: "Dr. Jane Smith"},
		Patient: intake.PatientDraft{
			FirstName:        "John",
			LastName:         "Smith",
			MRN:              "123456",
			DOB:              "1985-03-12",
			Sex:              "Male",
			Weight:           &w,
			PrimaryDiagnosis: "Rheumatoid arthritis",
		},
		Order: intake.OrderDraft{Medication: "Infliximab"},
	}
}

func TestValidateProviderEndpoint(t *testing.T) {
	t.Run("clean identity", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		resp := postJSON(t, srv.URL+"/provider/validate", intake.ProviderDraft{NPI: "1234567890", Name: "Dr. Jane Smith"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, true, body["valid"])
	})

	t.Run("field errors return 400 before any record check", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		resp := postJSON(t, srv.URL+"/provider/validate", intake.ProviderDraft{NPI: "123", Name: "Dr. Jane Smith"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		errs := body["errors"].(map[string]interface{})
		assert.Equal(t, "NPI must be exactly 10 digits", errs["npi"])
		assert.Equal(t, "NPI must be exactly 10 digits", body["error"], "first field message doubles as the primary one")
	})

	t.Run("record mismatch returns 409", func(t *testing.T) {
		store := records.NewMemStore()
		require.NoError(t, store.CreateProvider(context.Background(), &records.Provider{NPI: "1234567890", Name: "Dr. Jane Smith"}))
		srv := newIntakeServer(t, store)

		resp := postJSON(t, srv.URL+"/provider/validate", intake.ProviderDraft{NPI: "1234567890", Name: "Dr. John Doe"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Contains(t, body["error"], "registered to a different provider")
	})

	t.Run("store outage returns 503 with retry message", func(t *testing.T) {
		store := records.NewMemStore()
		store.FailAll = assert.AnError
		srv := newIntakeServer(t, store)

		resp := postJSON(t, srv.URL+"/provider/validate", intake.ProviderDraft{NPI: "1234567890", Name: "Dr. Jane Smith"})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Unable to complete the check at this time. Please try again.", body["error"])
	})
}

func TestValidatePatientEndpoint(t *testing.T) {
	t.Run("clean identity", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		resp := postJSON(t, srv.URL+"/patient/validate", fullDraft().Patient)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("demographic mismatch returns 409", func(t *testing.T) {
		store := records.NewMemStore()
		draft := fullDraft()
		in, err := draft.Submission()
		require.NoError(t, err)
		require.NoError(t, store.CreatePatient(context.Background(), &records.Patient{
			MRN: in.Patient.MRN, FirstName: in.Patient.FirstName, LastName: in.Patient.LastName,
			DOB: in.Patient.DOB, Sex: in.Patient.Sex,
		}))
		srv := newIntakeServer(t, store)

		p := draft.Patient
		p.DOB = "1990-01-01"
		resp := postJSON(t, srv.URL+"/patient/validate", p)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Contains(t, body["error"], "verify DOB and sex")
	})
}

func TestSubmitEndpoint(t *testing.T) {
	t.Run("creates the order", func(t *testing.T) {
		store := records.NewMemStore()
		srv := newIntakeServer(t, store)

		resp := postJSON(t, srv.URL+"/intake/submit", fullDraft())
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		body := decodeBody(t, resp)
		data := body["data"].(map[string]interface{})
		orderID := data["orderId"].(string)
		require.NotEmpty(t, orderID)

		order, err := store.GetOrder(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, "Infliximab", order.Medication)
	})

	t.Run("missing weight surfaces as a warning", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		d := fullDraft()
		d.Patient.Weight = nil

		resp := postJSON(t, srv.URL+"/intake/submit", d)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		body := decodeBody(t, resp)
		warnings := body["warnings"].([]interface{})
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "weight")
	})

	t.Run("existing MRN aborts with 409", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		resp := postJSON(t, srv.URL+"/intake/submit", fullDraft())
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		d := fullDraft()
		d.Patient.FirstName = "Mary"
		d.Patient.LastName = "Jones"
		resp = postJSON(t, srv.URL+"/intake/submit", d)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Patient with this MRN already exists. Cannot create duplicate patient record.", body["error"])
	})

	t.Run("invalid fields return 400 grouped by entity", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		resp := postJSON(t, srv.URL+"/intake/submit", intake.Draft{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)

		provider := body["provider"].(map[string]interface{})
		assert.Contains(t, provider, "npi")
		patient := body["patient"].(map[string]interface{})
		assert.Contains(t, patient, "mrn")
		assert.Contains(t, patient, "primaryDiagnosis")
		order := body["order"].(map[string]interface{})
		assert.Contains(t, order, "medication")
		assert.NotContains(t, body, "errors", "no flattened map on the submit surface")
	})

	t.Run("only failing entities get a group", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		d := fullDraft()
		d.Provider.NPI = "123"
		d.Patient.MRN = "12"

		resp := postJSON(t, srv.URL+"/intake/submit", d)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)

		provider := body["provider"].(map[string]interface{})
		assert.Equal(t, "NPI must be exactly 10 digits", provider["npi"])
		patient := body["patient"].(map[string]interface{})
		assert.Equal(t, "MRN must be exactly 6 digits", patient["mrn"])
		assert.NotContains(t, body, "order")
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		srv := newIntakeServer(t, records.NewMemStore())
		resp, err := http.Post(srv.URL+"/intake/submit", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
