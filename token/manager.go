package token

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
	"github.com/planningcenter/pco-oauth-bridge/internal/metrics"
)

// DefaultRefreshPadding is how close to expiry a token may get before the
// manager refreshes it ahead of the upstream call.
const DefaultRefreshPadding = 300 * time.Second

// Manager is the credential lifecycle manager: it decides whether a stored
// token is still usable, refreshes it proactively and reconciles the result
// back into the store. The store is only touched before and after the
// upstream call, never while it is in flight.
type Manager struct {
	conf       *oauth2.Config
	repo       credentials.Repo
	padding    time.Duration
	maxTries   uint
	httpClient *http.Client
	nowFunc    func() time.Time
}

type ManagerOption func(*Manager)

func WithRefreshPadding(padding time.Duration) ManagerOption {
	return func(m *Manager) {
		m.padding = padding
	}
}

// WithMaxTries bounds the retry attempts for transient refresh failures.
func WithMaxTries(tries uint) ManagerOption {
	return func(m *Manager) {
		m.maxTries = tries
	}
}

func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = client
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(conf *oauth2.Config, repo credentials.Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		conf: conf,
		repo: repo,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.padding == 0 {
		m.padding = DefaultRefreshPadding
	}
	if m.maxTries == 0 {
		m.maxTries = 3
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// ForOrganization loads the organization's credential and returns a token
// usable for an immediate upstream call. ErrNotAuthenticated when no
// credential is stored for the organization.
func (m *Manager) ForOrganization(ctx context.Context, organizationID int64, force bool) (*oauth2.Token, int64, error) {
	rec, err := m.repo.GetByOrganization(ctx, organizationID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, 0, apperrors.Wrapf(apperrors.ErrNotAuthenticated, "no credential for organization %d", organizationID)
	}
	if err != nil {
		return nil, 0, apperrors.Wrapf(err, "Manager.ForOrganization")
	}
	return m.Fresh(ctx, rec, force)
}

// ForID is the session-bound lookup path: the browser session holds a row id
// rather than an organization id.
func (m *Manager) ForID(ctx context.Context, id int64, force bool) (*oauth2.Token, int64, error) {
	rec, err := m.repo.GetByID(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, 0, apperrors.Wrapf(apperrors.ErrNotAuthenticated, "no credential %d", id)
	}
	if err != nil {
		return nil, 0, apperrors.Wrapf(err, "Manager.ForID")
	}
	return m.Fresh(ctx, rec, force)
}

// Fresh returns a token guaranteed usable for an immediate upstream call,
// refreshing it first when forced or when it expires within the padding
// window and a refresh token is available. The refreshed payload fully
// replaces the stored one, keyed by the same organization. Returns the row
// id holding the (possibly rewritten) record.
//
// A token without a refresh token is returned as-is; if it is actually
// expired the next upstream call surfaces ErrUpstreamUnauthorized and the
// caller restarts the authorization flow.
func (m *Manager) Fresh(ctx context.Context, rec *credentials.Record, force bool) (*oauth2.Token, int64, error) {
	if !force && !m.needsRefresh(rec) {
		return rec.OAuth2Token(), rec.ID, nil
	}
	if rec.RefreshToken() == "" {
		return rec.OAuth2Token(), rec.ID, nil
	}

	fresh, err := m.refresh(ctx, rec.RefreshToken())
	if apperrors.Is(err, apperrors.ErrRefreshInvalid) {
		// The provider rejected the grant outright: the stored credential is
		// dead. Destroy it so the organization mapping reverts to
		// unauthenticated. Transient failures never reach this branch.
		if delErr := m.repo.Delete(ctx, rec.ID); delErr != nil {
			log.Warn().Err(delErr).Int64("credential_id", rec.ID).Msg("failed to delete revoked credential")
		}
		return nil, 0, err
	}
	if err != nil {
		return nil, 0, err
	}

	id, err := m.repo.Upsert(ctx, rec.OrganizationID, credentials.FromOAuth2(fresh))
	if err != nil {
		return nil, 0, apperrors.Wrapf(err, "Manager.Fresh upsert")
	}

	log.Debug().
		Int64("organization_id", rec.OrganizationID).
		Time("expires_at", fresh.Expiry).
		Msg("access token refreshed")

	return fresh, id, nil
}

// RefreshPadding exposes the configured padding window.
func (m *Manager) RefreshPadding() time.Duration {
	return m.padding
}

func (m *Manager) needsRefresh(rec *credentials.Record) bool {
	expiresAt, ok := rec.ExpiresAt()
	if !ok {
		return false
	}
	if rec.RefreshToken() == "" {
		return false
	}
	return expiresAt.Before(m.nowFunc().Add(m.padding))
}

// refresh performs the upstream refresh grant. Transient failures (network,
// provider 5xx) are retried with exponential backoff and then surfaced as
// ErrRefreshTransient, keeping the stored credential intact. An
// invalid/revoked refresh token surfaces as ErrRefreshInvalid immediately.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	operation := func() (*oauth2.Token, error) {
		src := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			if isInvalidGrant(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return tok, nil
	}

	tok, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(m.maxTries),
	)
	if err != nil {
		if isInvalidGrant(err) {
			metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
			log.Warn().Err(err).Msg("refresh token rejected by provider")
			return nil, apperrors.Wrapf(apperrors.ErrRefreshInvalid, "%v", err)
		}
		metrics.TokenRefreshes.WithLabelValues("transient_error").Inc()
		log.Warn().Err(err).Msg("token refresh unavailable")
		return nil, apperrors.Wrapf(apperrors.ErrRefreshTransient, "%v", err)
	}

	metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
	return tok, nil
}

// isInvalidGrant distinguishes "the provider answered and rejected the
// grant" from "the provider was unreachable or failing". Only the former
// destroys the stored credential.
func isInvalidGrant(err error) bool {
	var rErr *oauth2.RetrieveError
	if !apperrors.As(err, &rErr) {
		return false
	}
	if rErr.ErrorCode == "invalid_grant" || rErr.ErrorCode == "invalid_client" {
		return true
	}
	if rErr.Response != nil {
		code := rErr.Response.StatusCode
		return code == http.StatusBadRequest || code == http.StatusUnauthorized
	}
	return false
}
