package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Session-bound pages
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuth, ChainMiddleware(s.AuthHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthComplete, ChainMiddleware(s.AuthCompleteHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.PageMiddleware()...))

	// Server-to-server endpoints, gated by the CORS allow-list. Preflights
	// are answered by the CORS middleware itself.
	s.RegisterRouteHandler("POST "+RouteAddBackgroundCheck, ChainMiddleware(s.AddBackgroundCheckHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAddBackgroundCheck, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteDeleteBackgroundCheck, ChainMiddleware(s.DeleteBackgroundCheckHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteDeleteBackgroundCheck, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
}
