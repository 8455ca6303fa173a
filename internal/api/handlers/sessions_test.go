package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-intake/internal/careplan"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/records"
)

func newSessionServer(t *testing.T, store *records.MemStore) *httptest.Server {
	t.Helper()
	wizard := intake.NewWizard(
		intake.NewFieldValidator(),
		intake.NewRegistry(store, nil, nil),
		intake.NewSubmissionService(store, nil),
		careplan.NewGenerator(store, nil, nil, nil, nil),
		nil,
	)
	h := NewSessionHandler(intake.NewSessionManager(), wizard, nil, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func createSession(t *testing.T, srv *httptest.Server) SessionView {
	t.Helper()
	resp, err := http.Post(srv.URL+"/", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSession(t, resp)
}

func decodeSession(t *testing.T, resp *http.Response) SessionView {
	t.Helper()
	defer resp.Body.Close()
	var view SessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func TestSessionLifecycle(t *testing.T) {
	store := records.NewMemStore()
	srv := newSessionServer(t, store)
	s := createSession(t, srv)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, 0, s.Step)

	base := srv.URL + "/" + s.ID
	draft := fullDraft()

	// Step 1: provider.
	resp := postJSON(t, base+"/next", draftPatch{Provider: &draft.Provider})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decodeSession(t, resp)
	assert.Equal(t, 1, s.Step)

	// Step 2: patient identity.
	resp = postJSON(t, base+"/next", draftPatch{Patient: &draft.Patient})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decodeSession(t, resp)
	assert.Equal(t, 2, s.Step)

	// Step 3: clinical order.
	resp = postJSON(t, base+"/next", draftPatch{Order: &draft.Order})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decodeSession(t, resp)
	assert.Equal(t, 3, s.Step)

	// Submit at review.
	resp = postJSON(t, base+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decodeSession(t, resp)
	assert.True(t, s.Submitted)
	require.NotEmpty(t, s.OrderID)

	// A second submission is rejected.
	resp = postJSON(t, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Care plan generation runs in degraded mode with no client configured.
	resp = postJSON(t, base+"/care-plan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decodeSession(t, resp)
	assert.Contains(t, s.CarePlan, "MOCK CARE PLAN for John Smith")
	assert.Equal(t, 1, store.CarePlanCount())

	// Delete and confirm the session is gone.
	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionNextValidationFailure(t *testing.T) {
	srv := newSessionServer(t, records.NewMemStore())
	s := createSession(t, srv)

	bad := intake.ProviderDraft{NPI: "123", Name: "Dr. Jane Smith"}
	resp := postJSON(t, srv.URL+"/"+s.ID+"/next", draftPatch{Provider: &bad})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The session stays on the provider step with the field errors recorded.
	getResp, err := http.Get(srv.URL + "/" + s.ID)
	require.NoError(t, err)
	view := decodeSession(t, getResp)
	assert.Equal(t, 0, view.Step)
	resp.Body.Close()
}

func TestSessionGateMismatch(t *testing.T) {
	store := records.NewMemStore()
	require.NoError(t, store.CreateProvider(context.Background(), &records.Provider{NPI: "1234567890", Name: "Dr. Jane Smith"}))
	srv := newSessionServer(t, store)
	s := createSession(t, srv)

	conflicting := intake.ProviderDraft{NPI: "1234567890", Name: "Dr. John Doe"}
	resp := postJSON(t, srv.URL+"/"+s.ID+"/next", draftPatch{Provider: &conflicting})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/" + s.ID)
	require.NoError(t, err)
	view := decodeSession(t, getResp)
	assert.Equal(t, 0, view.Step)
	assert.Contains(t, view.StepError, "registered to a different provider")
}

func TestSessionBackAndRestart(t *testing.T) {
	srv := newSessionServer(t, records.NewMemStore())
	s := createSession(t, srv)
	base := srv.URL + "/" + s.ID
	draft := fullDraft()

	resp := postJSON(t, base+"/next", draftPatch{Provider: &draft.Provider})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/back", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeSession(t, resp)
	assert.Equal(t, 0, view.Step)

	// Back off the first step is rejected.
	resp = postJSON(t, base+"/back", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Restart keeping the provider lands on the patient step.
	resp = postJSON(t, base+"/restart", RestartRequest{KeepProvider: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decodeSession(t, resp)
	assert.Equal(t, 1, view.Step)

	resp = postJSON(t, base+"/restart", RestartRequest{KeepProvider: false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decodeSession(t, resp)
	assert.Equal(t, 0, view.Step)
}

func TestSessionUnknownID(t *testing.T) {
	srv := newSessionServer(t, records.NewMemStore())
	resp, err := http.Get(srv.URL + "/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
