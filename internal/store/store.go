// Package store provides storage backends for the flow outcome journal.
//
// It includes an in-memory store and persistent SQLite and PostgreSQL stores.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/MoodMatch/internal/models"
)

// DefaultHistoryLimit is the number of outcomes listed when no limit is given.
const DefaultHistoryLimit = 20

// MemoryDSN selects the in-memory store.
const MemoryDSN = "memory"

// ErrDuplicateOutcome is returned when a flow id was already recorded.
var ErrDuplicateOutcome = errors.New("outcome already recorded")

// Store records terminal flow outcomes.
type Store interface {
	RecordOutcome(ctx context.Context, rec models.OutcomeRecord) error
	// ListOutcomes returns up to limit outcomes, most recent first.
	ListOutcomes(ctx context.Context, limit int) ([]models.OutcomeRecord, error)
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and key/value connection strings,
// otherwise "sqlite3".
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open picks a backend for dsn: MemoryDSN is the in-memory store, PostgreSQL strings
// open a PostgresStore and anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(dsn), MemoryDSN):
		slog.Debug("store.Open using in-memory store")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		slog.Debug("store.Open detected PostgreSQL DSN", "dsn_type", "postgresql")
		s, err := NewPostgresStore(ctx, WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		slog.Debug("store.Open detected SQLite DSN", "dsn_type", "sqlite", "db_path", dsn)
		s, err := NewSQLiteStore(ctx, WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}

// InMemoryStore keeps outcomes for the lifetime of the process.
type InMemoryStore struct {
	mu       sync.Mutex
	outcomes []models.OutcomeRecord
	seen     map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]struct{})}
}

func (s *InMemoryStore) RecordOutcome(_ context.Context, rec models.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[rec.FlowID]; dup {
		return fmt.Errorf("record outcome %s: %w", rec.FlowID, ErrDuplicateOutcome)
	}
	s.seen[rec.FlowID] = struct{}{}
	s.outcomes = append(s.outcomes, rec)
	return nil
}

func (s *InMemoryStore) ListOutcomes(_ context.Context, limit int) ([]models.OutcomeRecord, error) {
	s.mu.Lock()
	out := make([]models.OutcomeRecord, len(s.outcomes))
	copy(out, s.outcomes)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
