package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/records"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL implementation of records.Store. Uniqueness of
// provider NPI and patient MRN is enforced by database constraints, so
// concurrent creates collapse to one row and the loser sees ErrDuplicateKey.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a new store
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

func (s *Store) FindProviderByNPI(ctx context.Context, npi string) (*records.Provider, error) {
	return s.scanProvider(ctx, `
		SELECT id, npi, name, created_at FROM providers WHERE npi = $1
	`, npi)
}

func (s *Store) FindProviderByName(ctx context.Context, name string) (*records.Provider, error) {
	return s.scanProvider(ctx, `
		SELECT id, npi, name, created_at FROM providers WHERE lower(name) = lower($1)
	`, name)
}

func (s *Store) scanProvider(ctx context.Context, query string, arg any) (*records.Provider, error) {
	p := &records.Provider{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(&p.ID, &p.NPI, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query provider: %w", err)
	}
	return p, nil
}

func (s *Store) CreateProvider(ctx context.Context, p *records.Provider) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO providers (id, npi, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.NPI, p.Name, p.CreatedAt)
	if isUniqueViolation(err) {
		return records.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

const patientColumns = `
	id, mrn, first_name, last_name, dob, sex, weight,
	primary_diagnosis, additional_diagnoses, allergies, medication_history, created_at
`

func (s *Store) FindPatientByMRN(ctx context.Context, mrn string) (*records.Patient, error) {
	return s.scanPatient(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE mrn = $1`, mrn)
}

func (s *Store) FindPatientByName(ctx context.Context, firstName, lastName string) (*records.Patient, error) {
	return s.scanPatient(ctx,
		`SELECT `+patientColumns+` FROM patients
		 WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2)`,
		firstName, lastName)
}

func (s *Store) GetPatient(ctx context.Context, id string) (*records.Patient, error) {
	return s.scanPatient(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
}

func (s *Store) scanPatient(ctx context.Context, query string, args ...any) (*records.Patient, error) {
	p := &records.Patient{}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Weight,
		&p.PrimaryDiagnosis, &p.AdditionalDiagnoses, &p.Allergies, &p.MedicationHistory, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query patient: %w", err)
	}
	return p, nil
}

func (s *Store) CreatePatient(ctx context.Context, p *records.Patient) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.MRN, p.FirstName, p.LastName, p.DOB, p.Sex, p.Weight,
		p.PrimaryDiagnosis, p.AdditionalDiagnoses, p.Allergies, p.MedicationHistory, p.CreatedAt)
	if isUniqueViolation(err) {
		return records.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *Store) FindRecentDuplicateOrder(ctx context.Context, patientID, medication string, since time.Time) (*records.Order, error) {
	o := &records.Order{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, provider_id, medication, notes, created_at
		FROM orders
		WHERE patient_id = $1 AND lower(medication) = lower($2) AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, patientID, medication, since).Scan(
		&o.ID, &o.PatientID, &o.ProviderID, &o.Medication, &o.Notes, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	return o, nil
}

// CreateOrder inserts the order and its outbox entry in one transaction, so
// the intake event is published if and only if the order row exists.
func (s *Store) CreateOrder(ctx context.Context, o *records.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, patient_id, provider_id, medication, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.PatientID, o.ProviderID, o.Medication, o.Notes, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"orderId":    o.ID,
		"patientId":  o.PatientID,
		"providerId": o.ProviderID,
		"medication": o.Medication,
		"createdAt":  o.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	entry := &OutboxEntry{
		AggregateID:   o.ID,
		AggregateType: "order",
		EventType:     "intake.order.submitted",
		Payload:       payload,
		KafkaTopic:    "intake.events",
		KafkaKey:      o.PatientID,
	}
	if err := WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*records.Order, error) {
	o := &records.Order{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, provider_id, medication, notes, created_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.PatientID, &o.ProviderID, &o.Medication, &o.Notes, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

// SaveCarePlan inserts the plan row and its outbox entry in one transaction.
func (s *Store) SaveCarePlan(ctx context.Context, cp *records.CarePlan) error {
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO care_plans (id, patient_id, order_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, cp.ID, cp.PatientID, cp.OrderID, cp.Content, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert care plan: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"carePlanId": cp.ID,
		"orderId":    cp.OrderID,
		"patientId":  cp.PatientID,
		"createdAt":  cp.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal care plan event: %w", err)
	}

	entry := &OutboxEntry{
		AggregateID:   cp.ID,
		AggregateType: "care_plan",
		EventType:     "careplan.generated",
		Payload:       payload,
		KafkaTopic:    "careplan.events",
		KafkaKey:      cp.PatientID,
	}
	if err := WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListExportRows returns the flattened intake report, newest orders first.
// Each row joins the order with its patient and provider, matching the CSV
// export columns.
func (s *Store) ListExportRows(ctx context.Context) ([]records.ExportRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.created_at, pt.mrn, pt.first_name, pt.last_name, pt.dob, pt.sex,
		       pr.npi, pr.name, o.medication,
		       pt.primary_diagnosis, pt.additional_diagnoses, pt.medication_history
		FROM orders o
		JOIN patients pt ON pt.id = o.patient_id
		JOIN providers pr ON pr.id = o.provider_id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query export rows: %w", err)
	}
	defer rows.Close()

	var out []records.ExportRow
	for rows.Next() {
		var r records.ExportRow
		err := rows.Scan(
			&r.OrderID, &r.OrderDate, &r.PatientMRN, &r.PatientFirstName, &r.PatientLastName,
			&r.PatientDOB, &r.PatientSex, &r.ProviderNPI, &r.ProviderName,
			&r.Medication, &r.PrimaryDiagnosis, &r.AdditionalDiagnoses, &r.MedicationHistory,
		)
		if err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping verifies database connectivity for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
