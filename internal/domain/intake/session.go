package intake

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Session is the owned state of one intake: the draft, the step index, the
// submitted flag and the transient error/result fields. One actor drives a
// session at a time; the mutex is held for the full duration of every
// transition, including awaited remote calls, so transitions are strictly
// sequential.
type Session struct {
	ID          string
	Step        Step
	Submitted   bool
	Draft       Draft
	FieldErrors FieldErrors
	StepError   string
	OrderID     string
	Warnings    []string
	PlanContent string

	mu sync.Mutex
}

// clearTransient drops the per-transition error state. Callers hold s.mu.
func (s *Session) clearTransient() {
	s.FieldErrors = nil
	s.StepError = ""
}

// UpdateDraft merges typed field values into the draft. Only the sections
// present in the patch are replaced.
func (s *Session) UpdateDraft(provider *ProviderDraft, patient *PatientDraft, order *OrderDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if provider != nil {
		s.Draft.Provider = *provider
	}
	if patient != nil {
		s.Draft.Patient = *patient
	}
	if order != nil {
		s.Draft.Order = *order
	}
}

// Snapshot returns a copy of the session's visible state for rendering.
func (s *Session) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := Session{
		ID:          s.ID,
		Step:        s.Step,
		Submitted:   s.Submitted,
		Draft:       s.Draft,
		StepError:   s.StepError,
		OrderID:     s.OrderID,
		PlanContent: s.PlanContent,
	}
	if s.FieldErrors != nil {
		cp.FieldErrors = FieldErrors{}
		for k, v := range s.FieldErrors {
			cp.FieldErrors[k] = v
		}
	}
	cp.Warnings = append(cp.Warnings, s.Warnings...)
	return cp
}

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionManager tracks live sessions for the HTTP surface.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create starts a fresh session at the provider step.
func (m *SessionManager) Create() *Session {
	s := &Session{ID: uuid.New().String(), Step: StepProvider}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session or ErrSessionNotFound.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a finished session.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
