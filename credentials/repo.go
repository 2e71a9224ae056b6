package credentials

import "context"

// Repo is the token store. At most one Record exists per organization; the
// stored payload is fully replaced on each upsert.
type Repo interface {
	GetByOrganization(ctx context.Context, organizationID int64) (*Record, error)
	GetByID(ctx context.Context, id int64) (*Record, error)
	// Upsert inserts a record for the organization, or replaces the stored
	// payload when a record already exists (including when a concurrent
	// writer won the insert race). Returns the row id either way.
	Upsert(ctx context.Context, organizationID int64, token map[string]any) (int64, error)
	Delete(ctx context.Context, id int64) error
}
