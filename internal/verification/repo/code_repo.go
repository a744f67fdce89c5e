package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification/entity"
)

var ErrNotFound = errors.New("verification code not found")

type Store interface {
	// Save replaces any outstanding code for the phone.
	Save(ctx context.Context, c *entity.Code) error
	Get(ctx context.Context, phone string) (*entity.Code, error)
	IncrementAttempts(ctx context.Context, phone string) (int, error)
	Delete(ctx context.Context, phone string) error
}

// CodeRepo is the Postgres Store.
type CodeRepo struct {
	db *sqlx.DB
}

func NewCodeRepo(db *sqlx.DB) *CodeRepo { return &CodeRepo{db: db} }

// EnsureTable creates the verification_codes table if not exists.
func (r *CodeRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS verification_codes (
  phone_number TEXT PRIMARY KEY,
  code_hash TEXT NOT NULL,
  issued_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  attempts INT NOT NULL DEFAULT 0
);`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *CodeRepo) Save(ctx context.Context, c *entity.Code) error {
	const q = `INSERT INTO verification_codes (phone_number, code_hash, issued_at, expires_at, attempts)
		VALUES (:phone_number, :code_hash, :issued_at, :expires_at, 0)
		ON CONFLICT (phone_number) DO UPDATE SET
			code_hash=EXCLUDED.code_hash, issued_at=EXCLUDED.issued_at,
			expires_at=EXCLUDED.expires_at, attempts=0`
	_, err := r.db.NamedExecContext(ctx, q, c)
	return err
}

func (r *CodeRepo) Get(ctx context.Context, phone string) (*entity.Code, error) {
	var c entity.Code
	err := r.db.GetContext(ctx, &c, `SELECT phone_number, code_hash, issued_at, expires_at, attempts
		FROM verification_codes WHERE phone_number=$1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CodeRepo) IncrementAttempts(ctx context.Context, phone string) (int, error) {
	var n int
	err := r.db.QueryRowxContext(ctx, `UPDATE verification_codes SET attempts=attempts+1
		WHERE phone_number=$1 RETURNING attempts`, phone).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

func (r *CodeRepo) Delete(ctx context.Context, phone string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE phone_number=$1`, phone)
	return err
}
