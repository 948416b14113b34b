package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Identity subsystem metrics.
var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	RegistrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Successful user registrations.",
	})

	TokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Access token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	RevocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Token and session revocations by kind.",
		},
		[]string{"kind"},
	)

	PermissionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_permission_checks_total",
			Help: "Permission resolution results.",
		},
		[]string{"outcome"},
	)

	OAuthCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_oauth_callbacks_total",
			Help: "OAuth callback handling by provider, purpose and outcome.",
		},
		[]string{"provider", "purpose", "outcome"},
	)

	ActiveSessionSweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_sweep_removed_total",
		Help: "Stale sessions removed by the periodic sweep.",
	})
)

// Init registers the subsystem metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		LoginsTotal,
		RegistrationsTotal,
		TokenRefreshesTotal,
		RevocationsTotal,
		PermissionChecksTotal,
		OAuthCallbacksTotal,
		ActiveSessionSweeps,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
