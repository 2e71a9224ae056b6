package repofakes_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planningcenter/pco-oauth-bridge/credentials/repofakes"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

const testOrgID = int64(42)

func TestGetByOrganizationEmptyStore(t *testing.T) {
	repo := repofakes.NewFakeCredentialRepo()

	_, err := repo.GetByOrganization(context.Background(), testOrgID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpsertThenGet(t *testing.T) {
	ctx := context.Background()
	repo := repofakes.NewFakeCredentialRepo()
	payloadV1 := map[string]any{"access_token": "v1"}

	id, err := repo.Upsert(ctx, testOrgID, payloadV1)
	require.NoError(t, err)

	rec, err := repo.GetByOrganization(ctx, testOrgID)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.Equal(t, testOrgID, rec.OrganizationID)
	require.Equal(t, "v1", rec.AccessToken())

	byID, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, rec.OrganizationID, byID.OrganizationID)
}

func TestUpsertReplacesPayloadKeepsID(t *testing.T) {
	ctx := context.Background()
	repo := repofakes.NewFakeCredentialRepo()

	id1, err := repo.Upsert(ctx, testOrgID, map[string]any{"access_token": "v1", "refresh_token": "r1"})
	require.NoError(t, err)
	id2, err := repo.Upsert(ctx, testOrgID, map[string]any{"access_token": "v2"})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	rec, err := repo.GetByOrganization(ctx, testOrgID)
	require.NoError(t, err)
	require.Equal(t, "v2", rec.AccessToken())
	require.Empty(t, rec.RefreshToken(), "payload is fully replaced, not merged")
	require.Equal(t, 1, repo.Len())
}

func TestConcurrentUpsertSameOrganization(t *testing.T) {
	ctx := context.Background()
	repo := repofakes.NewFakeCredentialRepo()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			payload := map[string]any{"access_token": "v1", "writer": n}
			_, err := repo.Upsert(ctx, testOrgID, payload)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, repo.Len(), "exactly one row per organization")

	rec, err := repo.GetByOrganization(ctx, testOrgID)
	require.NoError(t, err)
	require.Equal(t, "v1", rec.AccessToken(), "final payload equals one of the inputs")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := repofakes.NewFakeCredentialRepo()

	id, err := repo.Upsert(ctx, testOrgID, map[string]any{"access_token": "v1"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, id))

	_, err = repo.GetByOrganization(ctx, testOrgID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	// deleting an already-deleted row is not an error
	require.NoError(t, repo.Delete(ctx, id))
}

func TestRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := repofakes.NewFakeCredentialRepo()

	id, err := repo.Upsert(ctx, testOrgID, map[string]any{"access_token": "v1"})
	require.NoError(t, err)

	rec, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	rec.Token["access_token"] = "tampered"

	again, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "v1", again.AccessToken())
}
