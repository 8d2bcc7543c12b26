package postgres

import (
	"context"
	"database/sql"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `account_id, name, email, password_hash, role, site_id, active, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (account_id, name, email, password_hash, role, site_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, account.AccountID, account.Name, account.Email, account.PasswordHash, account.Role, account.SiteID, account.Active)
	if err := row.Scan(&account.CreatedAt, &account.UpdatedAt); err != nil {
		return models.Account{}, lookupError(translate(err), store.ErrSiteNotFound)
	}
	return account, nil
}

// UpdateAccount leaves the password hash alone; see SetAccountPassword.
func (s *Store) UpdateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	updated, err := scanAccount(s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET name = $2, email = $3, role = $4, site_id = $5, active = $6, updated_at = now()
		WHERE account_id = $1
		RETURNING `+accountColumns,
		account.AccountID, account.Name, account.Email, account.Role, account.SiteID, account.Active))
	if err != nil {
		return models.Account{}, lookupError(translate(err), store.ErrAccountNotFound)
	}
	return updated, nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID))
	if err != nil {
		return models.Account{}, lookupError(err, store.ErrAccountNotFound)
	}
	return account, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return models.Account{}, lookupError(err, store.ErrAccountNotFound)
	}
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) SetAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2, updated_at = now()
		WHERE account_id = $1
	`, accountID, passwordHash)
	if err != nil {
		return lookupError(err, store.ErrAccountNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	var siteIDNull sql.NullString
	if err := row.Scan(&account.AccountID, &account.Name, &account.Email, &account.PasswordHash, &account.Role, &siteIDNull, &account.Active, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return models.Account{}, err
	}
	account.SiteID = nullStringPtr(siteIDNull)
	return account, nil
}
