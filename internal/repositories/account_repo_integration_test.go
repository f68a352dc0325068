//go:build integration

package repositories

import (
	"context"
	"io"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/prok/internal/database"
	"github.com/BradenHooton/prok/internal/models"
	"github.com/BradenHooton/prok/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupAccountDB starts a disposable Postgres, migrates it and returns a repository
func setupAccountDB(t *testing.T) *AccountRepository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("prok"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	goose.SetLogger(log.New(io.Discard, "", 0))
	db := database.New(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	return NewAccountRepository(db)
}

func TestAccountRepository_CreateAndFind(t *testing.T) {
	repo := setupAccountDB(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Account{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Name:         "Alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	byUsername, err := repo.GetByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	byEmail, err := repo.GetByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Name)
	assert.Equal(t, created.PasswordHash, byID.PasswordHash)
}

func TestAccountRepository_Conflicts(t *testing.T) {
	repo := setupAccountDB(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.Account{Username: "bob", Email: "bob@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.Account{Username: "bob", Email: "other@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = repo.Create(ctx, &models.Account{Username: "bobby", Email: "bob@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountRepository_UsernameAndEmailShareNamespace(t *testing.T) {
	repo := setupAccountDB(t)
	ctx := context.Background()

	squatter, err := repo.Create(ctx, &models.Account{Username: "victim@example.com", Email: "mallory@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	// An email already claimed as a username
	_, err = repo.Create(ctx, &models.Account{Username: "victim", Email: "victim@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, models.ErrConflict)

	// A username already claimed as an email
	_, err = repo.Create(ctx, &models.Account{Username: "mallory@example.com", Email: "other@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, models.ErrConflict)

	// The rejected signups left no partial rows behind
	_, err = repo.GetByIdentifier(ctx, "victim")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.GetByIdentifier(ctx, "other@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	found, err := repo.GetByIdentifier(ctx, "victim@example.com")
	require.NoError(t, err)
	assert.Equal(t, squatter.ID, found.ID)
}

func TestAccountRepository_NotFound(t *testing.T) {
	repo := setupAccountDB(t)
	ctx := context.Background()

	_, err := repo.GetByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
