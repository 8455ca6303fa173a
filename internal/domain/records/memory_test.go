package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.CreateProvider(ctx, &Provider{NPI: "1234567890", Name: "Dr. Jane Smith"}))

	err := s.CreateProvider(ctx, &Provider{NPI: "1234567890", Name: "Dr. John Doe"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	p, err := s.FindProviderByNPI(ctx, "1234567890")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Jane Smith", p.Name)

	byName, err := s.FindProviderByName(ctx, "DR. JANE SMITH")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	_, err = s.FindProviderByNPI(ctx, "0000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatientUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	dob := time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreatePatient(ctx, &Patient{MRN: "123456", FirstName: "John", LastName: "Smith", DOB: dob, Sex: "Male"}))

	err := s.CreatePatient(ctx, &Patient{MRN: "123456", FirstName: "Mary", LastName: "Jones", DOB: dob, Sex: "Female"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	byName, err := s.FindPatientByName(ctx, "JOHN", "smith")
	require.NoError(t, err)
	assert.Equal(t, "123456", byName.MRN)
}

func TestFindRecentDuplicateOrderWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	patient := &Patient{MRN: "123456", FirstName: "John", LastName: "Smith", Sex: "Male"}
	require.NoError(t, s.CreatePatient(ctx, patient))
	provider := &Provider{NPI: "1234567890", Name: "Dr. Jane Smith"}
	require.NoError(t, s.CreateProvider(ctx, provider))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := &Order{PatientID: patient.ID, ProviderID: provider.ID, Medication: "Infliximab", CreatedAt: base}
	require.NoError(t, s.CreateOrder(ctx, order))

	t.Run("matches case-insensitively inside the window", func(t *testing.T) {
		dup, err := s.FindRecentDuplicateOrder(ctx, patient.ID, "INFLIXIMAB", base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, order.ID, dup.ID)
	})

	t.Run("boundary instant still matches", func(t *testing.T) {
		_, err := s.FindRecentDuplicateOrder(ctx, patient.ID, "infliximab", base)
		assert.NoError(t, err)
	})

	t.Run("older than the window does not match", func(t *testing.T) {
		_, err := s.FindRecentDuplicateOrder(ctx, patient.ID, "infliximab", base.Add(time.Second))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("different medication does not match", func(t *testing.T) {
		_, err := s.FindRecentDuplicateOrder(ctx, patient.ID, "Adalimumab", base.Add(-time.Hour))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("different patient does not match", func(t *testing.T) {
		_, err := s.FindRecentDuplicateOrder(ctx, "someone-else", "Infliximab", base.Add(-time.Hour))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCreateOrderRequiresPatient(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	err := s.CreateOrder(ctx, &Order{PatientID: "missing", Medication: "Infliximab"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListExportRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	provider := &Provider{NPI: "1234567890", Name: "Dr. Jane Smith"}
	require.NoError(t, s.CreateProvider(ctx, provider))
	patient := &Patient{
		MRN: "123456", FirstName: "John", LastName: "Smith", Sex: "Male",
		DOB:                 time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC),
		PrimaryDiagnosis:    "Rheumatoid arthritis",
		AdditionalDiagnoses: []string{"Hypertension", "GERD"},
	}
	require.NoError(t, s.CreatePatient(ctx, patient))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	older := &Order{PatientID: patient.ID, ProviderID: provider.ID, Medication: "Infliximab", CreatedAt: base}
	newer := &Order{PatientID: patient.ID, ProviderID: provider.ID, Medication: "Adalimumab", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, s.CreateOrder(ctx, older))
	require.NoError(t, s.CreateOrder(ctx, newer))

	rows, err := s.ListExportRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, newer.ID, rows[0].OrderID, "newest order first")
	assert.Equal(t, older.ID, rows[1].OrderID)
	assert.Equal(t, "123456", rows[0].PatientMRN)
	assert.Equal(t, "1234567890", rows[0].ProviderNPI)
	assert.Equal(t, []string{"Hypertension", "GERD"}, rows[0].AdditionalDiagnoses)
}
