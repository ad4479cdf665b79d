package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/platform/httpx"
)

type Repository interface {
	List(ctx context.Context, empresaID int64) ([]Account, error)
	Create(ctx context.Context, account Account) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, empresaID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, empresa_id, code, name, type, level, parent_code, is_active, created_at, updated_at
FROM cuentas WHERE empresa_id=$1 ORDER BY code`, empresaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		err := rows.Scan(&a.ID, &a.EmpresaID, &a.Code, &a.Name, &a.Type, &a.Level, &a.ParentCode, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Create(ctx context.Context, account Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO cuentas (empresa_id, code, name, type, level, parent_code, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at, updated_at`,
		account.EmpresaID, account.Code, account.Name, account.Type, account.Level, account.ParentCode, account.IsActive)
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, httpx.ErrDuplicate
		}
		return Account{}, err
	}
	return account, nil
}
