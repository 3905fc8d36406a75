package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustlayer_token_refresh_total",
			Help: "Access token refresh calls by outcome.",
		},
		[]string{"outcome"},
	)

	RefreshShared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustlayer_token_refresh_shared_total",
		Help: "Refresh outcomes delivered to more than one waiting caller.",
	})

	DIDPhaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustlayer_did_phase_total",
			Help: "DID challenge flow phase transitions.",
		},
		[]string{"phase"},
	)

	ContractTransitionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustlayer_contract_transition_total",
			Help: "Contract signing transitions by target state and result.",
		},
		[]string{"state", "result"},
	)

	ConfirmationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trustlayer_chain_confirmation_seconds",
			Help:    "Time from submission to observed confirmation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// Init registers the metrics with the default registry
func Init() {
	prometheus.MustRegister(RefreshTotal, RefreshShared, DIDPhaseTotal, ContractTransitionTotal, ConfirmationSeconds)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
