package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
	"github.com/planningcenter/pco-oauth-bridge/pcoapi"
)

// AuthHandler redirects the user to the provider so they can authorize the
// app. The state parameter rides a short-lived cookie across the redirect.
func (s *Server) AuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state,
			Path:     "/",
			HttpOnly: true,
			Secure:   getScheme(r) == "https",
			SameSite: http.SameSiteLaxMode,
			MaxAge:   300,
		})
		http.Redirect(w, r, s.oauthConf.AuthCodeURL(state), http.StatusFound)
	}
}

// AuthCompleteHandler finishes the authorization-code dance: exchange the
// code, resolve the owning organization, upsert the credential keyed by it
// and bind the row to a fresh browser session.
func (s *Server) AuthCompleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.FormValue("code")
		state := r.FormValue("state")
		if code == "" || state == "" {
			http.Error(w, "missing code or state parameter", http.StatusBadRequest)
			return
		}

		stateCookie, err := r.Cookie(stateCookieName)
		if err != nil || stateCookie.Value != state {
			http.Error(w, "invalid state parameter", http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

		// Route the exchange through the bounded upstream client.
		ctx := context.WithValue(r.Context(), oauth2.HTTPClient, s.upstream)
		tok, err := s.oauthConf.Exchange(ctx, code)
		if err != nil {
			log.Warn().Err(err).Msg("authorization code exchange failed")
			http.Error(w, "authorization failed", http.StatusBadGateway)
			return
		}

		id, err := s.storeToken(r, tok)
		if err != nil {
			log.Error().Err(err).Msg("failed to store credential")
			http.Error(w, "authorization failed", http.StatusInternalServerError)
			return
		}

		if err := s.startSession(w, r, id); err != nil {
			log.Error().Err(err).Msg("failed to start session")
			http.Error(w, "authorization failed", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// LogoutHandler revokes the access token upstream and drops the session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rec, err := s.sessionCredential(r); err == nil {
			err := pcoapi.RevokeToken(r.Context(), s.config.GetAPIURL(),
				rec.AccessToken(), s.config.GetOAuthAppID(), s.config.GetOAuthSecret())
			if err != nil {
				log.Warn().Err(err).Msg("token revocation failed")
			}
			_ = s.creds.Delete(r.Context(), rec.ID)
		}
		s.dropSession(w, r)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// RefreshHandler forces a refresh of the session's credential.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.freshSessionToken(w, r, true)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotAuthenticated) {
			if apperrors.Is(err, apperrors.ErrRefreshTransient) {
				http.Error(w, "token refresh temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "refresh failed", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// storeToken resolves the organization that owns the freshly issued token
// and writes the credential keyed by it. Two users of the same organization
// authorizing concurrently land on the same row.
func (s *Server) storeToken(r *http.Request, tok *oauth2.Token) (int64, error) {
	me, err := s.api(r, tok).Me(r.Context())
	if err != nil {
		return 0, apperrors.Wrapf(err, "storeToken me lookup")
	}
	organizationID, err := me.OrganizationID()
	if err != nil {
		return 0, apperrors.Wrapf(err, "storeToken")
	}
	id, err := s.creds.Upsert(r.Context(), organizationID, credentials.FromOAuth2(tok))
	if err != nil {
		return 0, apperrors.Wrapf(err, "storeToken upsert")
	}
	return id, nil
}
