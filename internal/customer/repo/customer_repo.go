package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
)

var (
	ErrNotFound      = errors.New("customer not found")
	ErrDuplicateNUIT = errors.New("nuit already registered to another phone")
)

// Store is the persistence contract for customers.
type Store interface {
	GetByPhone(ctx context.Context, phone string) (*entity.Customer, error)
	Upsert(ctx context.Context, c *entity.Customer) error
}

// CustomerRepo provides data access for the customers table using sqlx.
type CustomerRepo struct {
	db *sqlx.DB
}

func NewCustomerRepo(db *sqlx.DB) *CustomerRepo { return &CustomerRepo{db: db} }

// EnsureTable creates the customers table if not exists (idempotent).
func (r *CustomerRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  phone_number TEXT NOT NULL UNIQUE,
  nuit TEXT UNIQUE,
  full_name TEXT NOT NULL DEFAULT '',
  national_id TEXT NOT NULL DEFAULT '',
  id_issue_date DATE,
  id_expiry_date DATE,
  profession TEXT NOT NULL DEFAULT 'OTHER',
  salary NUMERIC(14,2) NOT NULL DEFAULT 0,
  salary_bank TEXT NOT NULL DEFAULT '',
  assigned_bank TEXT NOT NULL DEFAULT '',
  credit_limit NUMERIC(14,2) NOT NULL DEFAULT 0,
  verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_customers_national_id ON customers(national_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// GetByPhone returns the customer registered with phone or ErrNotFound.
func (r *CustomerRepo) GetByPhone(ctx context.Context, phone string) (*entity.Customer, error) {
	const q = `SELECT id, phone_number, nuit, full_name, national_id, id_issue_date, id_expiry_date,
		profession, salary, salary_bank, assigned_bank, credit_limit, verified, created_at, updated_at
	  FROM customers WHERE phone_number=$1`
	var c entity.Customer
	if err := r.db.GetContext(ctx, &c, q, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Upsert inserts or updates the row keyed by phone_number.
func (r *CustomerRepo) Upsert(ctx context.Context, c *entity.Customer) error {
	const q = `INSERT INTO customers (id, phone_number, nuit, full_name, national_id, id_issue_date, id_expiry_date,
			profession, salary, salary_bank, assigned_bank, credit_limit, verified, created_at, updated_at)
		VALUES (:id, :phone_number, :nuit, :full_name, :national_id, :id_issue_date, :id_expiry_date,
			:profession, :salary, :salary_bank, :assigned_bank, :credit_limit, :verified, :created_at, :updated_at)
		ON CONFLICT (phone_number) DO UPDATE SET
			nuit=EXCLUDED.nuit, full_name=EXCLUDED.full_name, national_id=EXCLUDED.national_id,
			id_issue_date=EXCLUDED.id_issue_date, id_expiry_date=EXCLUDED.id_expiry_date,
			profession=EXCLUDED.profession, salary=EXCLUDED.salary, salary_bank=EXCLUDED.salary_bank,
			assigned_bank=EXCLUDED.assigned_bank, credit_limit=EXCLUDED.credit_limit,
			verified=EXCLUDED.verified, updated_at=EXCLUDED.updated_at
		RETURNING id, created_at`
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	rows, err := r.db.NamedQueryContext(ctx, q, c)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "customers_nuit_key" {
			return ErrDuplicateNUIT
		}
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&c.ID, &c.CreatedAt)
	}
	return errors.New("no id returned")
}
