package repofakes

import (
	"context"
	"maps"
	"sync"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

type FakeCredentialRepo struct {
	records map[int64]*credentials.Record // row id -> record
	orgIDs  map[int64]int64               // organization id -> row id
	nextID  int64
	lock    sync.RWMutex
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		records: make(map[int64]*credentials.Record),
		orgIDs:  make(map[int64]int64),
		nextID:  1,
	}
}

func (cr *FakeCredentialRepo) GetByOrganization(_ context.Context, organizationID int64) (*credentials.Record, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	id, ok := cr.orgIDs[organizationID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyRecord(cr.records[id]), nil
}

func (cr *FakeCredentialRepo) GetByID(_ context.Context, id int64) (*credentials.Record, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	rec, ok := cr.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (cr *FakeCredentialRepo) Upsert(_ context.Context, organizationID int64, token map[string]any) (int64, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	if id, ok := cr.orgIDs[organizationID]; ok {
		cr.records[id].Token = maps.Clone(token)
		return id, nil
	}

	id := cr.nextID
	cr.nextID++
	cr.records[id] = &credentials.Record{
		ID:             id,
		OrganizationID: organizationID,
		Token:          maps.Clone(token),
	}
	cr.orgIDs[organizationID] = id
	return id, nil
}

func (cr *FakeCredentialRepo) Delete(_ context.Context, id int64) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	rec, ok := cr.records[id]
	if !ok {
		return nil
	}
	delete(cr.orgIDs, rec.OrganizationID)
	delete(cr.records, id)
	return nil
}

// Len reports the number of stored records. Test helper.
func (cr *FakeCredentialRepo) Len() int {
	cr.lock.RLock()
	defer cr.lock.RUnlock()
	return len(cr.records)
}

func copyRecord(rec *credentials.Record) *credentials.Record {
	return &credentials.Record{
		ID:             rec.ID,
		OrganizationID: rec.OrganizationID,
		Token:          maps.Clone(rec.Token),
	}
}
