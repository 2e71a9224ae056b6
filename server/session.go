package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
	"github.com/planningcenter/pco-oauth-bridge/server/websession"
)

const (
	// sessionCookieName carries the signed browser session identifier
	sessionCookieName = "pco_session"
	// stateCookieName carries the OAuth state parameter across the redirect
	stateCookieName = "pco_auth_state"
)

// signSessionID returns "<id>.<base64url hmac>" so a tampered cookie reads
// as no session at all.
func (s *Server) signSessionID(sessionID string) string {
	mac := hmac.New(sha256.New, []byte(s.config.GetSessionSecret()))
	mac.Write([]byte(sessionID))
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Server) verifySessionCookie(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 {
		return "", false
	}
	sessionID := value[:idx]
	if !hmac.Equal([]byte(s.signSessionID(sessionID)), []byte(value)) {
		return "", false
	}
	return sessionID, true
}

func (s *Server) SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.signSessionID(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.GetSessionTTL().Seconds()),
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// sessionIDFromRequest resolves the verified session id, if any.
func (s *Server) sessionIDFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", false
	}
	return s.verifySessionCookie(cookie.Value)
}

// startSession binds a credential row to a fresh browser session.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, credentialID int64) error {
	sessionID := uuid.NewString()
	err := s.sessions.Upsert(sessionID, websession.Session{
		CredentialID: credentialID,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return apperrors.Wrapf(err, "startSession")
	}
	s.SetSessionCookie(w, r, sessionID)
	return nil
}

// dropSession clears both the server-side session entry and the cookie. The
// session's credential mapping reverts to unauthenticated; the stored
// record itself is only destroyed when the provider reports it invalid.
func (s *Server) dropSession(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := s.sessionIDFromRequest(r); ok {
		_ = s.sessions.Delete(sessionID)
	}
	s.ClearSessionCookie(w)
}

// sessionCredential loads the credential record the browser session points
// at. Any break in the chain (no cookie, expired session, deleted record)
// reads as ErrNotAuthenticated.
func (s *Server) sessionCredential(r *http.Request) (*credentials.Record, error) {
	sessionID, ok := s.sessionIDFromRequest(r)
	if !ok {
		return nil, apperrors.ErrNotAuthenticated
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	rec, err := s.creds.GetByID(r.Context(), sess.CredentialID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrNotAuthenticated
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "sessionCredential")
	}
	return rec, nil
}

// freshSessionToken returns a usable token for the browser session,
// refreshing proactively. When the provider reports the stored refresh
// token invalid the session mapping is cleared and the caller sees
// ErrNotAuthenticated: transient refresh failures surface as-is and keep
// the credential.
func (s *Server) freshSessionToken(w http.ResponseWriter, r *http.Request, force bool) (*oauth2.Token, error) {
	rec, err := s.sessionCredential(r)
	if err != nil {
		return nil, err
	}

	tok, id, err := s.tokens.Fresh(r.Context(), rec, force)
	if apperrors.Is(err, apperrors.ErrRefreshInvalid) {
		// The manager already destroyed the dead record; clear the
		// session's reference so the next page load restarts the flow.
		s.dropSession(w, r)
		return nil, apperrors.ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}

	// The upsert normally lands on the same row, but keep the session
	// pointing at whatever row the store reported.
	if id != rec.ID {
		if sessionID, ok := s.sessionIDFromRequest(r); ok {
			_ = s.sessions.Upsert(sessionID, websession.Session{CredentialID: id, CreatedAt: time.Now()})
		}
	}

	return tok, nil
}
