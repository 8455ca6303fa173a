package careplan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/records"
	"github.com/drfirst/go-intake/pkg/circuitbreaker"
	"github.com/drfirst/go-intake/pkg/workerpool"
)

// Generator produces care plans for submitted orders. With no client
// configured it runs in degraded mode and returns the deterministic mock
// plan instead of failing; that mode is documented behavior, not an error.
type Generator struct {
	store   records.Store
	client  Client
	breaker *circuitbreaker.Breaker
	pool    *workerpool.Pool
	logger  *zap.Logger
	now     func() time.Time
}

// NewGenerator wires the generator. client, breaker and pool may each be
// nil: a nil client selects degraded mode, a nil breaker or pool skips that
// layer.
func NewGenerator(store records.Store, client Client, breaker *circuitbreaker.Breaker, pool *workerpool.Pool, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:   store,
		client:  client,
		breaker: breaker,
		pool:    pool,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the generation clock. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the prompt for the order's patient snapshot, obtains the
// plan text, persists it, and returns it. Repeated invocation for the same
// order simply re-queries the service; each run inserts a fresh plan row.
// A failed call returns GenerationError and never partial text.
func (g *Generator) Generate(ctx context.Context, orderID string) (string, error) {
	order, err := g.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("load order %s: %w", orderID, err)
	}
	patient, err := g.store.GetPatient(ctx, order.PatientID)
	if err != nil {
		return "", fmt.Errorf("load patient for order %s: %w", orderID, err)
	}

	now := g.now()

	if g.client == nil {
		g.logger.Warn("no generation credential configured, returning mock care plan",
			zap.String("order_id", orderID))
		content := MockPlan(patient, now)
		g.save(ctx, order, content)
		return content, nil
	}

	prompt := BuildPrompt(patient, order, now)
	content, err := g.complete(ctx, orderID, prompt)
	if err != nil {
		g.logger.Error("care plan generation failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return "", &intake.GenerationError{Err: err}
	}

	g.save(ctx, order, content)
	g.logger.Info("care plan generated",
		zap.String("order_id", orderID),
		zap.Int("content_bytes", len(content)))
	return content, nil
}

// complete runs the generation call through the worker pool (bounding
// concurrent calls across sessions) and the circuit breaker.
func (g *Generator) complete(ctx context.Context, orderID, prompt string) (string, error) {
	run := func(ctx context.Context) (interface{}, error) {
		call := func() (interface{}, error) { return g.client.Complete(ctx, prompt) }
		if g.breaker != nil {
			return g.breaker.Execute(ctx, call)
		}
		return call()
	}

	var result interface{}
	var err error
	if g.pool != nil {
		result, err = g.pool.Do(ctx, orderID, run)
	} else {
		result, err = run(ctx)
	}
	if err != nil {
		return "", err
	}

	content, ok := result.(string)
	if !ok || content == "" {
		return "", fmt.Errorf("empty generation result")
	}
	return content, nil
}

// save persists the plan row. Persistence is bookkeeping on top of an
// already-successful generation, so a failure here is logged and the
// content still returned.
func (g *Generator) save(ctx context.Context, order *records.Order, content string) {
	plan := &records.CarePlan{
		PatientID: order.PatientID,
		OrderID:   order.ID,
		Content:   content,
		CreatedAt: g.now(),
	}
	if err := g.store.SaveCarePlan(ctx, plan); err != nil {
		g.logger.Warn("failed to persist care plan",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}
