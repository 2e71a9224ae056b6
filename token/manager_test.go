package token_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	"github.com/planningcenter/pco-oauth-bridge/credentials/repofakes"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
	"github.com/planningcenter/pco-oauth-bridge/token"
)

const testOrgID = int64(42)

// fakeProvider is an httptest-backed OAuth2 token endpoint with a switchable
// failure mode.
type fakeProvider struct {
	server       *httptest.Server
	refreshCalls atomic.Int64
	mode         atomic.Value // "ok" | "invalid_grant" | "unavailable"
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.mode.Store("ok")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		p.refreshCalls.Add(1)
		switch p.mode.Load().(string) {
		case "stall":
			time.Sleep(500 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-v2",
				"token_type":   "bearer",
			})
		case "invalid_grant":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		case "unavailable":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-v2",
				"refresh_token": "refresh-v2",
				"token_type":    "bearer",
				"expires_in":    3600,
			})
		}
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: p.server.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}
}

type managerFixture struct {
	provider *fakeProvider
	repo     *repofakes.FakeCredentialRepo
	manager  *token.Manager
	now      time.Time
}

func setupManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	provider := newFakeProvider(t)
	repo := repofakes.NewFakeCredentialRepo()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	manager := token.New(provider.config(), repo,
		token.WithNowFunc(func() time.Time { return now }),
		token.WithMaxTries(2),
	)
	return &managerFixture{provider: provider, repo: repo, manager: manager, now: now}
}

func (f *managerFixture) seedRecord(t *testing.T, payload map[string]any) *credentials.Record {
	t.Helper()
	_, err := f.repo.Upsert(context.Background(), testOrgID, payload)
	require.NoError(t, err)
	rec, err := f.repo.GetByOrganization(context.Background(), testOrgID)
	require.NoError(t, err)
	return rec
}

func TestFreshTokenWellBeforeExpiryIsNotRefreshed(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    f.now.Add(time.Hour).Unix(),
	})

	tok, id, err := f.manager.Fresh(context.Background(), rec, false)
	require.NoError(t, err)
	require.Equal(t, "access-v1", tok.AccessToken)
	require.Equal(t, rec.ID, id)
	require.EqualValues(t, 0, f.provider.refreshCalls.Load())
}

func TestFreshExpiredTokenIsRefreshedOnceAndPersisted(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    f.now.Add(-10 * time.Second).Unix(),
	})

	tok, id, err := f.manager.Fresh(context.Background(), rec, false)
	require.NoError(t, err)
	require.Equal(t, "access-v2", tok.AccessToken)
	require.Equal(t, rec.ID, id)
	require.EqualValues(t, 1, f.provider.refreshCalls.Load())

	stored, err := f.repo.GetByOrganization(context.Background(), testOrgID)
	require.NoError(t, err)
	require.Equal(t, "access-v2", stored.AccessToken())
	require.Equal(t, "refresh-v2", stored.RefreshToken())
}

func TestFreshTokenWithinPaddingIsRefreshed(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    f.now.Add(60 * time.Second).Unix(), // inside the 300s window
	})

	tok, _, err := f.manager.Fresh(context.Background(), rec, false)
	require.NoError(t, err)
	require.Equal(t, "access-v2", tok.AccessToken)
	require.EqualValues(t, 1, f.provider.refreshCalls.Load())
}

func TestFreshWithoutRefreshTokenNeverRefreshes(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token": "access-v1",
		"expires_at":   f.now.Add(-10 * time.Second).Unix(),
	})

	tok, _, err := f.manager.Fresh(context.Background(), rec, false)
	require.NoError(t, err)
	require.Equal(t, "access-v1", tok.AccessToken, "token returned as-is, expiry surfaces upstream")
	require.EqualValues(t, 0, f.provider.refreshCalls.Load())
}

func TestFreshForceRefreshesEvenWhenFarFromExpiry(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    f.now.Add(time.Hour).Unix(),
	})

	tok, _, err := f.manager.Fresh(context.Background(), rec, true)
	require.NoError(t, err)
	require.Equal(t, "access-v2", tok.AccessToken)
	require.EqualValues(t, 1, f.provider.refreshCalls.Load())
}

func TestFreshNonExpiringTokenIsNotRefreshed(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
	})

	tok, _, err := f.manager.Fresh(context.Background(), rec, false)
	require.NoError(t, err)
	require.Equal(t, "access-v1", tok.AccessToken)
	require.EqualValues(t, 0, f.provider.refreshCalls.Load())
}

func TestInvalidGrantDestroysCredentialWithoutRetrying(t *testing.T) {
	f := setupManagerFixture(t)
	f.provider.mode.Store("invalid_grant")
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    f.now.Add(-10 * time.Second).Unix(),
	})

	_, _, err := f.manager.Fresh(context.Background(), rec, false)
	require.ErrorIs(t, err, apperrors.ErrRefreshInvalid)
	require.EqualValues(t, 1, f.provider.refreshCalls.Load(), "invalid grant must not be retried")

	_, err = f.repo.GetByOrganization(context.Background(), testOrgID)
	require.ErrorIs(t, err, apperrors.ErrNotFound, "dead credential is destroyed")
}

func TestTransientFailureKeepsCredential(t *testing.T) {
	f := setupManagerFixture(t)
	f.provider.mode.Store("unavailable")
	rec := f.seedRecord(t, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    f.now.Add(-10 * time.Second).Unix(),
	})

	_, _, err := f.manager.Fresh(context.Background(), rec, false)
	require.ErrorIs(t, err, apperrors.ErrRefreshTransient)
	require.EqualValues(t, 2, f.provider.refreshCalls.Load(), "transient failures are retried")

	stored, err := f.repo.GetByOrganization(context.Background(), testOrgID)
	require.NoError(t, err)
	require.Equal(t, "access-v1", stored.AccessToken(), "transient outage must not destroy the credential")
}

func TestRefreshIsBoundedByClientTimeout(t *testing.T) {
	provider := newFakeProvider(t)
	provider.mode.Store("stall")
	repo := repofakes.NewFakeCredentialRepo()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	manager := token.New(provider.config(), repo,
		token.WithNowFunc(func() time.Time { return now }),
		token.WithMaxTries(1),
		token.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)

	_, err := repo.Upsert(context.Background(), testOrgID, map[string]any{
		"access_token":  "access-v1",
		"refresh_token": "refresh-v1",
		"expires_at":    now.Add(-10 * time.Second).Unix(),
	})
	require.NoError(t, err)
	rec, err := repo.GetByOrganization(context.Background(), testOrgID)
	require.NoError(t, err)

	start := time.Now()
	_, _, err = manager.Fresh(context.Background(), rec, false)
	require.ErrorIs(t, err, apperrors.ErrRefreshTransient)
	require.Less(t, time.Since(start), 400*time.Millisecond,
		"a stalled provider must be cut off by the client timeout")

	stored, err := repo.GetByOrganization(context.Background(), testOrgID)
	require.NoError(t, err)
	require.Equal(t, "access-v1", stored.AccessToken(), "timeout is transient, credential kept")
}

func TestForOrganizationUnknownOrg(t *testing.T) {
	f := setupManagerFixture(t)

	_, _, err := f.manager.ForOrganization(context.Background(), 99, false)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.EqualValues(t, 0, f.provider.refreshCalls.Load())
}

func TestForIDLoadsSessionBoundRecord(t *testing.T) {
	f := setupManagerFixture(t)
	rec := f.seedRecord(t, map[string]any{
		"access_token": "access-v1",
	})

	tok, id, err := f.manager.ForID(context.Background(), rec.ID, false)
	require.NoError(t, err)
	require.Equal(t, rec.ID, id)
	require.Equal(t, "access-v1", tok.AccessToken)
}
