package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - session-bound authorization flow
	RouteAuth         = "/auth"
	RouteAuthComplete = "/auth/complete"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthRefresh  = "/auth/refresh"

	// Server-to-server Routes - identity-assertion-bound
	RouteAddBackgroundCheck    = "/add_background_check"
	RouteDeleteBackgroundCheck = "/delete_background_check"

	// Operational Routes
	RouteMetrics = "/metrics"
)
