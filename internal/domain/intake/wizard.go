package intake

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Step is the wizard's position in the intake sequence.
type Step int

const (
	StepProvider Step = iota
	StepPatient
	StepClinicalOrder
	StepReview
)

// String returns the operator-facing step name.
func (s Step) String() string {
	switch s {
	case StepProvider:
		return "Provider Details"
	case StepPatient:
		return "Patient Demographics"
	case StepClinicalOrder:
		return "Clinical & Order"
	case StepReview:
		return "Review & Submit"
	default:
		return "Unknown"
	}
}

// Transition errors. These reject the event; the session stays where it is.
var (
	ErrAlreadySubmitted  = errors.New("session already submitted")
	ErrNotSubmitted      = errors.New("order has not been submitted")
	ErrNotAtReview       = errors.New("submit is only valid at the review step")
	ErrAtFirstStep       = errors.New("already at the first step")
	ErrAtLastStep        = errors.New("already at the review step")
	ErrPlanAlreadyExists = errors.New("care plan already generated for this order")
)

// generationLabels is the cosmetic progress stream shown while a care plan
// is being generated. Non-authoritative; it carries no state.
var generationLabels = []string{
	"Analyzing patient demographics...",
	"Reviewing clinical history and medications...",
	"Identifying drug therapy problems...",
	"Formulating care plan goals...",
	"Finalizing recommendations...",
	"Generating document...",
}

// PlanGenerator produces care-plan text for a submitted order.
type PlanGenerator interface {
	Generate(ctx context.Context, orderID string) (string, error)
}

// Wizard drives an intake session through its steps. Forward transitions
// out of the provider and patient steps are gated on a record check; the
// gate table keys the check off the step so the contract lives in one
// place.
type Wizard struct {
	fields    *FieldValidator
	submitter Submitter
	plans     PlanGenerator
	gates     map[Step]func(ctx context.Context, d *Draft) error

	progressLabels   []string
	progressInterval time.Duration
	logger           *zap.Logger
}

// NewWizard wires the wizard's collaborators.
func NewWizard(fields *FieldValidator, registry RecordValidator, submitter Submitter, plans PlanGenerator, logger *zap.Logger) *Wizard {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Wizard{
		fields:           fields,
		submitter:        submitter,
		plans:            plans,
		progressLabels:   generationLabels,
		progressInterval: 2500 * time.Millisecond,
		logger:           logger,
	}
	w.gates = map[Step]func(ctx context.Context, d *Draft) error{
		StepProvider: func(ctx context.Context, d *Draft) error {
			return registry.ValidateProvider(ctx, d.Provider.NPI, d.Provider.Name)
		},
		StepPatient: func(ctx context.Context, d *Draft) error {
			return registry.ValidatePatient(ctx, PatientCredentials{
				FirstName: d.Patient.FirstName,
				LastName:  d.Patient.LastName,
				MRN:       d.Patient.MRN,
				DOB:       d.Patient.DOB,
				Sex:       d.Patient.Sex,
			})
		},
	}
	return w
}

// WithProgress overrides the generation progress labels and tick interval.
func (w *Wizard) WithProgress(labels []string, interval time.Duration) *Wizard {
	w.progressLabels = labels
	w.progressInterval = interval
	return w
}

// Next attempts the forward transition out of the session's current step:
// local field validation first, then the step's record check if it has one.
// Either failure keeps the session on its step; a local failure makes no
// remote call at all.
func (w *Wizard) Next(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Step >= StepReview {
		return ErrAtLastStep
	}
	s.clearTransient()

	if fieldErrs := w.fields.Step(s.Step, &s.Draft); fieldErrs != nil {
		s.FieldErrors = fieldErrs
		return &ValidationError{Entity: stepEntity(s.Step), Fields: fieldErrs}
	}

	if gate, ok := w.gates[s.Step]; ok {
		if err := gate(ctx, &s.Draft); err != nil {
			s.StepError = stepMessage(err)
			return err
		}
	}

	s.Step++
	return nil
}

// Back moves one step backward. Rejected once the session is submitted.
func (w *Wizard) Back(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Submitted {
		return ErrAlreadySubmitted
	}
	if s.Step == StepProvider {
		return ErrAtFirstStep
	}
	s.clearTransient()
	s.Step--
	return nil
}

// Submit runs the terminal submission. Only valid at the review step and
// only once. The free-text diagnosis and medication-history fields are
// split into sequences here, not earlier.
func (w *Wizard) Submit(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Submitted {
		return ErrAlreadySubmitted
	}
	if s.Step != StepReview {
		return ErrNotAtReview
	}
	s.clearTransient()

	if entityErrs := w.fields.Review(&s.Draft); entityErrs != nil {
		s.FieldErrors = entityErrs.Flatten()
		return &SubmitValidationError{Entities: entityErrs}
	}

	in, err := s.Draft.Submission()
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.FieldErrors = ve.Fields
		}
		return err
	}

	result, err := w.submitter.Submit(ctx, in)
	if err != nil {
		s.StepError = stepMessage(err)
		return err
	}

	s.Submitted = true
	s.OrderID = result.OrderID
	s.Warnings = result.Warnings
	w.logger.Info("session submitted",
		zap.String("session_id", s.ID),
		zap.String("order_id", s.OrderID),
		zap.Int("warnings", len(s.Warnings)))
	return nil
}

// GenerateCarePlan obtains the care plan for the submitted order. While the
// call is in flight, onProgress receives a rotating label; the rotation
// stops within one tick of the call settling, success or failure. onProgress
// may be nil.
func (w *Wizard) GenerateCarePlan(ctx context.Context, s *Session, onProgress func(string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Submitted || s.OrderID == "" {
		return ErrNotSubmitted
	}
	if s.PlanContent != "" {
		return ErrPlanAlreadyExists
	}
	s.clearTransient()

	rotator := startProgress(w.progressLabels, w.progressInterval, onProgress)
	content, err := w.plans.Generate(ctx, s.OrderID)
	rotator.Stop()

	if err != nil {
		s.StepError = stepMessage(err)
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return genErr
		}
		return &GenerationError{Err: err}
	}

	s.PlanContent = content
	return nil
}

// Restart clears the session for a new intake. With keepProvider the
// provider fields survive and the session lands on the patient step;
// otherwise everything resets to the provider step. The submitted flag,
// order ID, plan, warnings and errors always clear.
func (w *Wizard) Restart(s *Session, keepProvider bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	provider := s.Draft.Provider
	s.Draft = Draft{}
	s.Submitted = false
	s.OrderID = ""
	s.PlanContent = ""
	s.Warnings = nil
	s.clearTransient()

	if keepProvider {
		s.Draft.Provider = provider
		s.Step = StepPatient
	} else {
		s.Step = StepProvider
	}
}

// stepEntity names the entity whose fields gate the given step.
func stepEntity(s Step) string {
	switch s {
	case StepProvider:
		return "provider"
	case StepPatient:
		return "patient"
	default:
		return "order"
	}
}

// stepMessage renders a transition error as the single step-scoped message
// shown to the operator.
func stepMessage(err error) string {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return "Unable to complete the check at this time. Please try again."
	}
	return err.Error()
}
