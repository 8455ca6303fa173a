package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-intake/internal/careplan"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/records"
)

func seedSubmittedOrder(t *testing.T, store *records.MemStore) string {
	t.Helper()
	d := fullDraft()
	in, err := d.Submission()
	require.NoError(t, err)
	result, err := intake.NewSubmissionService(store, nil).Submit(context.Background(), in)
	require.NoError(t, err)
	return result.OrderID
}

func TestGenerateEndpoint(t *testing.T) {
	t.Run("degraded mode returns the mock plan", func(t *testing.T) {
		store := records.NewMemStore()
		orderID := seedSubmittedOrder(t, store)
		gen := careplan.NewGenerator(store, nil, nil, nil, nil)
		srv := httptest.NewServer(NewCarePlanHandler(gen, nil, nil).Routes())
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/generate", GenerateRequest{OrderID: orderID})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		plan := body["carePlan"].(map[string]interface{})
		assert.Equal(t, orderID, plan["orderId"])
		assert.Contains(t, plan["content"], "MOCK CARE PLAN for John Smith")
		assert.Equal(t, 1, store.CarePlanCount())
	})

	t.Run("missing orderId returns 400", func(t *testing.T) {
		gen := careplan.NewGenerator(records.NewMemStore(), nil, nil, nil, nil)
		srv := httptest.NewServer(NewCarePlanHandler(gen, nil, nil).Routes())
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/generate", GenerateRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		gen := careplan.NewGenerator(records.NewMemStore(), nil, nil, nil, nil)
		srv := httptest.NewServer(NewCarePlanHandler(gen, nil, nil).Routes())
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/generate", GenerateRequest{OrderID: "missing"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("generation failure returns 502", func(t *testing.T) {
		store := records.NewMemStore()
		orderID := seedSubmittedOrder(t, store)
		srv := httptest.NewServer(NewCarePlanHandler(failingGenerator{}, nil, nil).Routes())
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/generate", GenerateRequest{OrderID: orderID})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Care plan generation failed. Please try again.", body["error"])
	})
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", &intake.GenerationError{Err: errors.New("upstream 500")}
}
