package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/planningcenter/pco-oauth-bridge/credentials"
	"github.com/planningcenter/pco-oauth-bridge/identity"
	"github.com/planningcenter/pco-oauth-bridge/internal/config"
	"github.com/planningcenter/pco-oauth-bridge/pcoapi"
	"github.com/planningcenter/pco-oauth-bridge/server/websession"
	"github.com/planningcenter/pco-oauth-bridge/token"
)

type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	oauthConf *oauth2.Config
	upstream  *http.Client
	tokens    *token.Manager
	creds     credentials.Repo
	sessions  websession.Repo
	verifier  *identity.Verifier
}

func New(cfg config.Config, creds credentials.Repo, sessions websession.Repo) (*Server, error) {
	oauthConf := &oauth2.Config{
		ClientID:     cfg.GetOAuthAppID(),
		ClientSecret: cfg.GetOAuthSecret(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.GetAPIURL() + "/oauth/authorize",
			TokenURL:  cfg.GetAPIURL() + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.GetDomain() + RouteAuthComplete,
		Scopes:      []string{cfg.GetScope()},
	}

	// Every blocking call to the provider rides this client so a stalled
	// upstream cannot hold a request open indefinitely.
	upstream := &http.Client{Timeout: cfg.GetUpstreamTimeout()}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    cfg,
		oauthConf: oauthConf,
		upstream:  upstream,
		creds:     creds,
		sessions:  sessions,
		tokens: token.New(oauthConf, creds,
			token.WithRefreshPadding(cfg.GetRefreshPadding()),
			token.WithHTTPClient(upstream),
		),
		verifier: identity.New(identity.KeyFromSecret(cfg.GetOAuthSecret())),
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// api builds an upstream client around the given token. One client per
// token; never shared across requests with different credentials.
func (s *Server) api(r *http.Request, tok *oauth2.Token) *pcoapi.Client {
	return pcoapi.New(r.Context(), s.config.GetAPIURL(), tok)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
