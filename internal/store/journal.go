package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

const outcomesTable = "flow_outcomes"

var outcomeColumns = []string{
	"flow_id", "user_id", "destination", "error_kind", "primary_emotion",
	"urgency_level", "match_found", "match_score", "started_at", "finished_at",
}

// sqlJournal implements the outcome journal on top of database/sql. The SQLite and
// PostgreSQL stores only differ in driver, placeholders and migrations.
type sqlJournal struct {
	db      *sql.DB
	name    string
	builder squirrel.StatementBuilderType
}

func newSQLJournal(db *sql.DB, name string, placeholders squirrel.PlaceholderFormat) sqlJournal {
	return sqlJournal{
		db:      db,
		name:    name,
		builder: squirrel.StatementBuilder.PlaceholderFormat(placeholders),
	}
}

// migrate applies the embedded migrations under dir.
func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", dir, err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	slog.Debug("store migrations applied", "dir", dir, "applied", len(results))
	return nil
}

func (s *sqlJournal) RecordOutcome(ctx context.Context, rec models.OutcomeRecord) error {
	query, args, err := s.builder.
		Insert(outcomesTable).
		Columns(outcomeColumns...).
		Values(
			rec.FlowID, rec.UserID, string(rec.Destination), string(rec.ErrorKind), rec.PrimaryEmotion,
			rec.UrgencyLevel, rec.MatchFound, rec.MatchScore, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		slog.Error(s.name+" RecordOutcome failed", "error", err, "flow_id", rec.FlowID)
		if isUniqueViolation(err) {
			return fmt.Errorf("record outcome %s: %w", rec.FlowID, ErrDuplicateOutcome)
		}
		return fmt.Errorf("failed to insert outcome %s: %w", rec.FlowID, err)
	}
	slog.Debug(s.name+" RecordOutcome succeeded", "flow_id", rec.FlowID, "destination", rec.Destination)
	return nil
}

func (s *sqlJournal) ListOutcomes(ctx context.Context, limit int) ([]models.OutcomeRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query, args, err := s.builder.
		Select(outcomeColumns...).
		From(outcomesTable).
		OrderBy("finished_at DESC", "flow_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error(s.name+" ListOutcomes query failed", "error", err)
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.OutcomeRecord
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcome rows: %w", err)
	}
	slog.Debug(s.name+" ListOutcomes succeeded", "count", len(out))
	return out, nil
}

func (s *sqlJournal) Close() error {
	slog.Debug(s.name + " closing database")
	return s.db.Close()
}

func scanOutcome(rows *sql.Rows) (models.OutcomeRecord, error) {
	var (
		rec                 models.OutcomeRecord
		destination, kind   string
		startedAt, finished time.Time
	)
	err := rows.Scan(
		&rec.FlowID, &rec.UserID, &destination, &kind, &rec.PrimaryEmotion,
		&rec.UrgencyLevel, &rec.MatchFound, &rec.MatchScore, &startedAt, &finished,
	)
	if err != nil {
		return rec, fmt.Errorf("scan outcome failed: %w", err)
	}
	rec.Destination = models.Destination(destination)
	rec.ErrorKind = models.ErrorKind(kind)
	rec.StartedAt = startedAt.UTC()
	rec.FinishedAt = finished.UTC()
	return rec, nil
}

// isUniqueViolation matches the primary key errors of both drivers without importing
// their error types.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
