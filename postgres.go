package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	entryColumns    = []string{"id", "user_id", "term", "definition", "category", "translation", "created_at"}
	practiceColumns = []string{"id", "user_id", "scenario_type", "target_language", "score", "feedback", "created_at"}
)

// NewPool creates a PostgreSQL connection pool from cfg and pings it.
func NewPool(ctx context.Context, cfg DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.Info().Int64("version", r.Source.Version).Dur("duration", r.Duration).Msg("migration applied")
	}
	return nil
}

// PGRepository is the PostgreSQL-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository wraps pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListEntries(ctx context.Context, userID uuid.UUID) ([]GlossaryEntry, error) {
	query, args, err := psql.Select(entryColumns...).
		From("glossary_entries").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "glossary of user", userID)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, mapError(err, "glossary of user", userID)
	}
	return entries, nil
}

func (r *PGRepository) AddEntry(ctx context.Context, e GlossaryEntry) (GlossaryEntry, error) {
	query, args, err := psql.Insert("glossary_entries").
		Columns("user_id", "term", "definition", "category", "translation").
		Values(e.UserID, e.Term, e.Definition, e.Category, e.Translation).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return GlossaryEntry{}, fmt.Errorf("build query: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&e.ID, &e.CreatedAt); err != nil {
		return GlossaryEntry{}, mapError(err, "glossary entry for user", e.UserID)
	}
	return e, nil
}

func (r *PGRepository) SetTranslation(ctx context.Context, userID, id uuid.UUID, translation string) (GlossaryEntry, error) {
	query, args, err := psql.Update("glossary_entries").
		Set("translation", translation).
		Where(sq.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING " + strings.Join(entryColumns, ", ")).
		ToSql()
	if err != nil {
		return GlossaryEntry{}, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return GlossaryEntry{}, mapError(err, "glossary entry", id)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		return GlossaryEntry{}, mapError(err, "glossary entry", id)
	}
	return e, nil
}

func (r *PGRepository) DeleteEntry(ctx context.Context, userID, id uuid.UUID) error {
	query, args, err := psql.Delete("glossary_entries").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, "glossary entry", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("glossary entry %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PGRepository) SavePractice(ctx context.Context, p PracticeSession) (PracticeSession, error) {
	query, args, err := psql.Insert("practice_sessions").
		Columns("user_id", "scenario_type", "target_language", "score", "feedback").
		Values(p.UserID, p.ScenarioType, p.TargetLanguage, p.Score, p.Feedback).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return PracticeSession{}, fmt.Errorf("build query: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.CreatedAt); err != nil {
		return PracticeSession{}, mapError(err, "practice session for user", p.UserID)
	}
	return p, nil
}

func (r *PGRepository) ListPractice(ctx context.Context, userID uuid.UUID) ([]PracticeSession, error) {
	query, args, err := psql.Select(practiceColumns...).
		From("practice_sessions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "practice sessions of user", userID)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PracticeSession, error) {
		var p PracticeSession
		err := row.Scan(&p.ID, &p.UserID, &p.ScenarioType, &p.TargetLanguage, &p.Score, &p.Feedback, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, mapError(err, "practice sessions of user", userID)
	}
	return sessions, nil
}

func scanEntry(row pgx.CollectableRow) (GlossaryEntry, error) {
	var e GlossaryEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Term, &e.Definition, &e.Category, &e.Translation, &e.CreatedAt)
	return e, err
}

// mapError converts pgx errors to package errors. Context errors pass
// through wrapped.
func mapError(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" { // check_violation
		return fmt.Errorf("%s %s: %w: %s", entity, id, ErrInvalidInput, pgErr.Message)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}
