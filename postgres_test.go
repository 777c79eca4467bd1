package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	dbOnce    sync.Once
	sharedDSN string
	dbErr     error
)

// setupTestDB returns a migrated pool. It uses TEST_DATABASE_DSN when set and
// otherwise starts one PostgreSQL container for the whole test run.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	dbOnce.Do(func() {
		sharedDSN = os.Getenv("TEST_DATABASE_DSN")
		if sharedDSN == "" {
			sharedDSN, dbErr = startPostgres()
		}
	})
	if dbErr != nil {
		t.Skipf("no test database available: %v", dbErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, DatabaseConfig{DSN: sharedDSN, MaxConns: 4, MinConns: 1, MaxConnLifetime: time.Hour, MaxConnIdleTime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func startPostgres() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "medterm",
				"POSTGRES_PASSWORD": "medterm",
				"POSTGRES_DB":       "medterm",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}
	return fmt.Sprintf("postgres://medterm:medterm@%s:%s/medterm?sslmode=disable", host, port.Port()), nil
}

func TestPGRepositoryGlossary(t *testing.T) {
	repo := NewPGRepository(setupTestDB(t))
	ctx := context.Background()
	user := uuid.New()

	fever, err := repo.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "Fever", Definition: "Raised temperature.", Category: "general"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, fever.ID)
	assert.False(t, fever.CreatedAt.IsZero())

	_, err = repo.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "Rash", Definition: "Skin eruption.", Category: "general"})
	require.NoError(t, err)

	list, err := repo.ListEntries(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Rash", list[0].Term)

	updated, err := repo.SetTranslation(ctx, user, fever.ID, "Fiebre")
	require.NoError(t, err)
	assert.Equal(t, "Fiebre", updated.Translation)
	assert.Equal(t, "Fever", updated.Term)

	_, err = repo.SetTranslation(ctx, uuid.New(), fever.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.DeleteEntry(ctx, user, fever.ID))
	assert.ErrorIs(t, repo.DeleteEntry(ctx, user, fever.ID), ErrNotFound)

	_, err = repo.AddEntry(ctx, GlossaryEntry{UserID: user, Term: "", Definition: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPGRepositoryPractice(t *testing.T) {
	repo := NewPGRepository(setupTestDB(t))
	ctx := context.Background()
	user := uuid.New()

	saved, err := repo.SavePractice(ctx, PracticeSession{UserID: user, ScenarioType: "emergency", TargetLanguage: "Spanish", Score: 82, Feedback: "Score: 82"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, saved.ID)

	list, err := repo.ListPractice(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 82, list[0].Score)

	empty, err := repo.ListPractice(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMapError(t *testing.T) {
	id := uuid.New()

	assert.ErrorIs(t, mapError(context.Canceled, "entry", id), context.Canceled)
	assert.ErrorIs(t, mapError(pgx.ErrNoRows, "entry", id), ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23514", Message: "check"}, "entry", id), ErrInvalidInput)

	other := errors.New("boom")
	assert.ErrorIs(t, mapError(other, "entry", id), other)
}
