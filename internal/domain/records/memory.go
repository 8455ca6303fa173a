package records

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests. It mirrors the relational
// constraints of the Postgres store: unique NPI, unique MRN, orders
// foreign-keyed to patients.
type MemStore struct {
	mu        sync.Mutex
	providers map[string]*Provider // keyed by ID
	patients  map[string]*Patient
	orders    map[string]*Order
	plans     map[string]*CarePlan

	// FailAll makes every call return the given error. Lets tests
	// exercise the unavailable path of the record validators.
	FailAll error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		providers: make(map[string]*Provider),
		patients:  make(map[string]*Patient),
		orders:    make(map[string]*Order),
		plans:     make(map[string]*CarePlan),
	}
}

func (s *MemStore) FindProviderByNPI(_ context.Context, npi string) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	for _, p := range s.providers {
		if p.NPI == npi {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) FindProviderByName(_ context.Context, name string) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	for _, p := range s.providers {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) CreateProvider(_ context.Context, p *Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return s.FailAll
	}
	for _, existing := range s.providers {
		if existing.NPI == p.NPI {
			return ErrDuplicateKey
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.providers[p.ID] = &cp
	return nil
}

func (s *MemStore) FindPatientByMRN(_ context.Context, mrn string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	for _, p := range s.patients {
		if p.MRN == mrn {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) FindPatientByName(_ context.Context, firstName, lastName string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	for _, p := range s.patients {
		if strings.EqualFold(p.FirstName, firstName) && strings.EqualFold(p.LastName, lastName) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) CreatePatient(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return s.FailAll
	}
	for _, existing := range s.patients {
		if existing.MRN == p.MRN {
			return ErrDuplicateKey
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *MemStore) FindRecentDuplicateOrder(_ context.Context, patientID, medication string, since time.Time) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	for _, o := range s.orders {
		if o.PatientID == patientID && strings.EqualFold(o.Medication, medication) && !o.CreatedAt.Before(since) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) CreateOrder(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return s.FailAll
	}
	if _, ok := s.patients[o.PatientID]; !ok {
		return ErrNotFound
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemStore) GetOrder(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemStore) GetPatient(_ context.Context, id string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) SaveCarePlan(_ context.Context, cp *CarePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return s.FailAll
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	c := *cp
	s.plans[cp.ID] = &c
	return nil
}

func (s *MemStore) ListExportRows(_ context.Context) ([]ExportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll != nil {
		return nil, s.FailAll
	}
	rows := make([]ExportRow, 0, len(s.orders))
	for _, o := range s.orders {
		p := s.patients[o.PatientID]
		pr := s.providers[o.ProviderID]
		if p == nil || pr == nil {
			continue
		}
		rows = append(rows, ExportRow{
			OrderID:             o.ID,
			OrderDate:           o.CreatedAt,
			PatientMRN:          p.MRN,
			PatientFirstName:    p.FirstName,
			PatientLastName:     p.LastName,
			PatientDOB:          p.DOB,
			PatientSex:          p.Sex,
			ProviderNPI:         pr.NPI,
			ProviderName:        pr.Name,
			Medication:          o.Medication,
			PrimaryDiagnosis:    p.PrimaryDiagnosis,
			AdditionalDiagnoses: p.AdditionalDiagnoses,
			MedicationHistory:   p.MedicationHistory,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderDate.After(rows[j].OrderDate) })
	return rows, nil
}

// CarePlanCount reports how many plans have been saved. Test helper.
func (s *MemStore) CarePlanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plans)
}
