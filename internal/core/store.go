// Package core implements the entity repositories of cabincore on top of the
// shared document. Every mutation runs as a transaction: fetch the whole
// document, apply guards and the mutation to a copy, evaluate rules and
// replace the document conditionally on the revision that was read.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cabincore/internal/blob"
	"cabincore/internal/docstore"
	"cabincore/pkg/domain"
)

// DefaultMaxAttempts bounds the fetch-mutate-replace cycles of one transaction.
const DefaultMaxAttempts = 5

// Store runs transactions against the shared document.
type Store struct {
	client      *docstore.Client
	engine      *domain.RulesEngine
	catalog     domain.Catalog
	nowFn       func() time.Time
	newID       func() string
	maxAttempts int
	backoff     func(attempt int) time.Duration
	logger      *slog.Logger
	metrics     MetricsRecorder
}

// Option customises a Store.
type Option func(*Store)

// WithRulesEngine replaces the default rules engine. A nil engine disables
// rule evaluation.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Store) { s.engine = engine }
}

// WithCatalog overrides the static catalog.
func WithCatalog(catalog domain.Catalog) Option {
	return func(s *Store) { s.catalog = catalog }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithMaxAttempts sets how many times a transaction is retried after losing
// a revision race.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the pause before retry attempt n (1-based).
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(s *Store) {
		if fn != nil {
			s.backoff = fn
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder used by the store and services built
// on it.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Store) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewStore constructs a store over client using the default rules engine and
// catalog.
func NewStore(client *docstore.Client, opts ...Option) *Store {
	s := &Store{
		client:      client,
		engine:      NewDefaultRulesEngine(),
		catalog:     domain.DefaultCatalog(),
		nowFn:       func() time.Time { return time.Now().UTC().Round(0) },
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
		maxAttempts: DefaultMaxAttempts,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * 5 * time.Millisecond },
		logger:      slog.Default(),
		metrics:     NoopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the static catalog used for validation.
func (s *Store) Catalog() domain.Catalog { return s.catalog }

// Client returns the underlying document client.
func (s *Store) Client() *docstore.Client { return s.client }

// Transaction holds a private copy of the document being mutated.
type Transaction struct {
	doc     domain.Document
	catalog domain.Catalog
	now     time.Time
	newID   func() string
	changes []domain.Change
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// View exposes the transaction's current state for reads.
func (tx *Transaction) View() TransactionView {
	return newTransactionView(&tx.doc, tx.catalog)
}

// Now returns the timestamp assigned to records created in this attempt.
func (tx *Transaction) Now() time.Time { return tx.now }

// RunInTransaction executes fn against a fresh copy of the shared document and
// writes the result back if it changed. A lost revision race restarts the
// whole cycle, so fn must derive everything from the transaction it is given.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) (domain.Result, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, s.backoff(attempt-1)); err != nil {
				return domain.Result{}, err
			}
		}
		snap, err := s.client.FetchStrict(ctx)
		if err != nil {
			return domain.Result{}, err
		}
		tx := &Transaction{
			doc:     snap.Document.Clone(),
			catalog: s.catalog,
			now:     s.nowFn(),
			newID:   s.newID,
		}
		if err := fn(tx); err != nil {
			return domain.Result{}, err
		}
		if len(tx.changes) == 0 {
			return domain.Result{}, nil
		}

		var result domain.Result
		if s.engine != nil {
			res, err := s.engine.Evaluate(ctx, tx.View(), tx.changes)
			if err != nil {
				return domain.Result{}, err
			}
			result = res
			if res.HasBlocking() {
				return res, domain.RuleViolationError{Result: res}
			}
		}

		_, err = s.client.ReplaceDocument(ctx, tx.doc, snap.Revision)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, blob.ErrRevisionMismatch) {
			return domain.Result{}, err
		}
		s.metrics.ObserveConflict(ctx)
		s.logger.WarnContext(ctx, "document revision conflict", "attempt", attempt, "max_attempts", s.maxAttempts, "revision", snap.Revision)
	}
	return domain.Result{}, fmt.Errorf("%w: gave up after %d attempts", domain.ErrConcurrentUpdate, s.maxAttempts)
}

// View executes fn against the current document. Reads use the fallback
// policy of the document client, so a degraded snapshot may be served.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	snap, err := s.client.FetchDocument(ctx)
	if err != nil {
		return err
	}
	return fn(newTransactionView(&snap.Document, s.catalog))
}

// Snapshot returns the current document with its revision.
func (s *Store) Snapshot(ctx context.Context) (docstore.Snapshot, error) {
	return s.client.FetchDocument(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
