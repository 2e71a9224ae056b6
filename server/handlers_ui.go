package server

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.AppName}}</title></head>
<body>
<h1>Hello, {{.Name}}!</h1>
<p><a href="/auth/refresh">Refresh token</a> | <a href="/auth/logout">Log out</a></p>
<h2>Token</h2>
<pre>{{.TokenJSON}}</pre>
{{if .IDClaims}}
<h2>ID token claims (display only)</h2>
<pre>{{.IDClaims}}</pre>
{{end}}
</body>
</html>`))

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.AppName}}</title></head>
<body>
<h1>{{.AppName}}</h1>
<p><a href="/auth">Sign in with Planning Center</a></p>
</body>
</html>`))

// IndexHandler renders the account page for a signed-in session, or the
// login page otherwise. An Unauthorized from the upstream API means the
// stored token is dead: the session reference is cleared and the user is
// sent back through the authorization flow.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.freshSessionToken(w, r, false)
		if apperrors.Is(err, apperrors.ErrNotAuthenticated) {
			s.renderLogin(w)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("session token resolution failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		me, err := s.api(r, tok).Me(r.Context())
		if apperrors.Is(err, apperrors.ErrUpstreamUnauthorized) {
			// bad token, start over
			s.dropSession(w, r)
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("me lookup failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}

		rec, err := s.sessionCredential(r)
		if err != nil {
			s.renderLogin(w)
			return
		}

		tokenJSON, _ := json.MarshalIndent(rec.Token, "", "  ")
		data := map[string]any{
			"AppName":   s.config.GetAppName(),
			"Name":      me.Name(),
			"TokenJSON": string(tokenJSON),
			"IDClaims":  displayOnlyIDClaims(rec.IDToken()),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, data); err != nil {
			log.Error().Err(err).Msg("index render failed")
		}
	}
}

func (s *Server) renderLogin(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginTemplate.Execute(w, map[string]any{"AppName": s.config.GetAppName()}); err != nil {
		log.Error().Err(err).Msg("login render failed")
	}
}

// displayOnlyIDClaims decodes the provider's id_token WITHOUT verifying its
// signature, purely to show the claims on the account page. The result must
// never feed an authorization decision; anything trust-bearing goes through
// identity.Verifier instead.
func displayOnlyIDClaims(idToken string) string {
	if idToken == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	pretty, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return ""
	}
	return string(pretty)
}
