// Package metrics provides Prometheus instrumentation for the store backends,
// the per-user response cache and the credential refresh chain.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StoreOperations counts store calls labeled by backend, operation
	// ("has", "get", "set", "delete", "sweep") and result ("ok", "hit", "miss", "error").
	StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apcalt_store_operations_total",
		Help: "Total number of expiring store operations",
	}, []string{"backend", "operation", "result"})

	// CacheRequests counts memoized calls labeled by operation and result
	// ("hit", "miss", "error").
	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apcalt_cache_requests_total",
		Help: "Total number of memoized upstream calls",
	}, []string{"operation", "result"})

	// CredentialRefreshes counts identity provider round trips labeled by
	// stage ("login", "aws", "account") and result ("ok", "rejected", "error").
	CredentialRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apcalt_credential_refreshes_total",
		Help: "Total number of identity provider calls",
	}, []string{"stage", "result"})
)

func init() {
	prometheus.MustRegister(
		StoreOperations,
		CacheRequests,
		CredentialRefreshes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
