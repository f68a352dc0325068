package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/prok/internal/database"
	"github.com/BradenHooton/prok/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `a.id, a.username, a.email, a.password_hash, a.name, a.created_at, a.updated_at`

type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner abstracts pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	err := scanner.Scan(
		&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.Name, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByIdentifier finds the account owning an already normalized username or
// email. Identifiers are unique across both kinds, so at most one row matches.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM account_identifiers i
		JOIN accounts a ON a.id = i.account_id
		WHERE i.identifier = $1
	`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, identifier))
}

// Create inserts a new account and claims its username and email in the
// shared identifier namespace. Any collision, including a username equal to
// an existing email or the reverse, returns models.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	var created *models.Account
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO accounts AS a (id, username, email, password_hash, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + accountColumns

		row, err := scanAccountRow(tx.QueryRow(ctx, query,
			account.ID, account.Username, account.Email, account.PasswordHash,
			account.Name, account.CreatedAt, account.UpdatedAt,
		))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO account_identifiers (identifier, account_id)
			VALUES ($1, $3), ($2, $3)
		`, row.Username, row.Email, row.ID)
		if err != nil {
			return database.MapPostgresError(err)
		}

		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
