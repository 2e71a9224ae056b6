package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pco_bridge_http_requests_total",
		Help: "Inbound HTTP requests by method and path.",
	}, []string{"method", "path"})

	// TokenRefreshes tracks lifecycle manager refresh outcomes:
	// refreshed, invalid, transient_error.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pco_bridge_token_refreshes_total",
		Help: "Upstream token refresh attempts by outcome.",
	}, []string{"outcome"})

	CredentialUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pco_bridge_credential_upserts_total",
		Help: "Credential records written to the token store.",
	})
)
