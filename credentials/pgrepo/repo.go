package pgrepo

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
	"github.com/planningcenter/pco-oauth-bridge/internal/metrics"
)

// uniqueViolation is the Postgres error code for a uniqueness constraint
// rejection. The upsert fallback keys off it rather than ON CONFLICT so the
// race recovery stays an explicit two-step: insert; on conflict,
// update-then-reread.
const uniqueViolation = "23505"

var _ credentials.Repo = (*Repo)(nil)

// querier is the subset of pgxpool.Pool the repo issues statements through.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct {
	db querier
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{db: pool}
}

// EnsureSchema creates the tokens table when it does not exist yet.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS tokens (
			id              BIGSERIAL PRIMARY KEY,
			organization_id BIGINT NOT NULL UNIQUE,
			token           TEXT NOT NULL
		)
	`
	_, err := r.db.Exec(ctx, query)
	return apperrors.Wrapf(err, "pgrepo.EnsureSchema")
}

func (r *Repo) GetByOrganization(ctx context.Context, organizationID int64) (*credentials.Record, error) {
	const query = `SELECT id, organization_id, token FROM tokens WHERE organization_id = $1`
	return r.scanRecord(r.db.QueryRow(ctx, query, organizationID))
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*credentials.Record, error) {
	const query = `SELECT id, organization_id, token FROM tokens WHERE id = $1`
	return r.scanRecord(r.db.QueryRow(ctx, query, id))
}

func (r *Repo) Upsert(ctx context.Context, organizationID int64, token map[string]any) (int64, error) {
	serialized, err := json.Marshal(token)
	if err != nil {
		return 0, apperrors.Wrapf(err, "pgrepo.Upsert marshal")
	}

	const insert = `INSERT INTO tokens (organization_id, token) VALUES ($1, $2) RETURNING id`
	var id int64
	err = r.db.QueryRow(ctx, insert, organizationID, string(serialized)).Scan(&id)
	if err == nil {
		metrics.CredentialUpserts.Inc()
		return id, nil
	}

	var pgErr *pgconn.PgError
	if !apperrors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return 0, apperrors.Wrapf(err, "pgrepo.Upsert insert")
	}

	// A concurrent writer won the insert race: replace the payload in place
	// and re-read the row id.
	const update = `UPDATE tokens SET token = $2 WHERE organization_id = $1`
	if _, err := r.db.Exec(ctx, update, organizationID, string(serialized)); err != nil {
		return 0, apperrors.Wrapf(err, "pgrepo.Upsert update")
	}
	const reread = `SELECT id FROM tokens WHERE organization_id = $1`
	if err := r.db.QueryRow(ctx, reread, organizationID).Scan(&id); err != nil {
		return 0, apperrors.Wrapf(err, "pgrepo.Upsert reread")
	}
	metrics.CredentialUpserts.Inc()
	return id, nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM tokens WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return apperrors.Wrapf(err, "pgrepo.Delete")
}

func (r *Repo) scanRecord(row pgx.Row) (*credentials.Record, error) {
	var rec credentials.Record
	var serialized string
	err := row.Scan(&rec.ID, &rec.OrganizationID, &serialized)
	if apperrors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "pgrepo scan")
	}
	if err := json.Unmarshal([]byte(serialized), &rec.Token); err != nil {
		return nil, apperrors.Wrapf(err, "pgrepo unmarshal token")
	}
	return &rec, nil
}
