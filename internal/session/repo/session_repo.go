package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
)

var (
	ErrNotFound            = errors.New("session not found")
	ErrVersionConflict     = errors.New("session modified concurrently")
	ErrActiveSessionExists = errors.New("an active session already exists for this phone and flow")
)

// Store persists sessions. Update is a compare-and-swap on Version, which is
// what serialises concurrent requests for one session.
type Store interface {
	Create(ctx context.Context, s *entity.Session) error
	Get(ctx context.Context, id string) (*entity.Session, error)
	FindActive(ctx context.Context, phone string, flow entity.Flow) (*entity.Session, error)
	// Update writes s when the stored version equals expected and sets
	// s.Version to expected+1.
	Update(ctx context.Context, s *entity.Session, expected int64) error
	// LatestDraft returns the newest unfinished registration for phone that
	// got as far as choosing a bank, ignoring excludeID.
	LatestDraft(ctx context.Context, phone, excludeID string) (*entity.Session, error)
	// ExpireStale marks ACTIVE sessions past their expiry as EXPIRED.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// SessionRepo is the Postgres Store.
type SessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo { return &SessionRepo{db: db} }

// EnsureTable creates the sessions table if not exists. The partial unique
// index keeps one ACTIVE session per phone and flow.
func (r *SessionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  phone_number TEXT NOT NULL,
  flow TEXT NOT NULL,
  state TEXT NOT NULL,
  fields JSONB NOT NULL DEFAULT '{}'::jsonb,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  started_at TIMESTAMPTZ NOT NULL,
  last_activity_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  record_meta JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active ON sessions(phone_number, flow) WHERE status = 'ACTIVE';
CREATE INDEX IF NOT EXISTS idx_sessions_phone_started ON sessions(phone_number, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at) WHERE status = 'ACTIVE';
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type sessionRow struct {
	ID             string    `db:"id"`
	PhoneNumber    string    `db:"phone_number"`
	Flow           string    `db:"flow"`
	State          string    `db:"state"`
	Fields         []byte    `db:"fields"`
	Status         string    `db:"status"`
	StartedAt      time.Time `db:"started_at"`
	LastActivityAt time.Time `db:"last_activity_at"`
	ExpiresAt      time.Time `db:"expires_at"`
	Version        int64     `db:"version"`
	RecordMeta     []byte    `db:"record_meta"`
}

const sessionColumns = `id, phone_number, flow, state, fields, status, started_at, last_activity_at, expires_at, version, record_meta`

func toRow(s *entity.Session) (map[string]any, error) {
	fields, err := entity.MarshalFields(s.Fields)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(s.Meta)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":               s.ID,
		"phone_number":     s.PhoneNumber,
		"flow":             string(s.Flow),
		"state":            string(s.State),
		"fields":           string(fields),
		"status":           string(s.Status),
		"started_at":       s.StartedAt,
		"last_activity_at": s.LastActivityAt,
		"expires_at":       s.ExpiresAt,
		"version":          s.Version,
		"record_meta":      string(meta),
	}, nil
}

func (row sessionRow) toEntity() (*entity.Session, error) {
	fields, err := entity.UnmarshalFields(row.Fields)
	if err != nil {
		return nil, err
	}
	s := &entity.Session{
		ID:             row.ID,
		PhoneNumber:    row.PhoneNumber,
		Flow:           entity.Flow(row.Flow),
		State:          entity.State(row.State),
		Fields:         fields,
		Status:         entity.Status(row.Status),
		StartedAt:      row.StartedAt,
		LastActivityAt: row.LastActivityAt,
		ExpiresAt:      row.ExpiresAt,
		Version:        row.Version,
	}
	if len(row.RecordMeta) > 0 {
		if err := json.Unmarshal(row.RecordMeta, &s.Meta); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *entity.Session) error {
	if s.Version == 0 {
		s.Version = 1
	}
	args, err := toRow(s)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (:id, :phone_number, :flow, :state, :fields, :status, :started_at, :last_activity_at, :expires_at, :version, :record_meta)`
	if _, err := r.db.NamedExecContext(ctx, q, args); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "idx_sessions_active" {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

func (r *SessionRepo) getOne(ctx context.Context, q string, args ...any) (*entity.Session, error) {
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity()
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*entity.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
}

func (r *SessionRepo) FindActive(ctx context.Context, phone string, flow entity.Flow) (*entity.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE phone_number=$1 AND flow=$2 AND status='ACTIVE'`, phone, string(flow))
}

func (r *SessionRepo) Update(ctx context.Context, s *entity.Session, expected int64) error {
	args, err := toRow(s)
	if err != nil {
		return err
	}
	args["expected"] = expected
	args["version"] = expected + 1
	const q = `UPDATE sessions SET state=:state, fields=:fields, status=:status,
			last_activity_at=:last_activity_at, expires_at=:expires_at, version=:version, record_meta=:record_meta
		WHERE id=:id AND version=:expected`
	res, err := r.db.NamedExecContext(ctx, q, args)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, s.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	s.Version = expected + 1
	return nil
}

func (r *SessionRepo) LatestDraft(ctx context.Context, phone, excludeID string) (*entity.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE phone_number=$1 AND flow='REGISTRATION' AND id<>$2
		  AND state NOT IN ('REGISTERED', 'ALREADY_REGISTERED')
		  AND COALESCE(fields->'data'->>'bank_code', '') <> ''
		ORDER BY started_at DESC LIMIT 1`, phone, excludeID)
}

func (r *SessionRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET status='EXPIRED', version=version+1
		WHERE status='ACTIVE' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
