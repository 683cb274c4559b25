// Package metrics exposes the daemon's Prometheus counters and gauges:
// active_subscriptions{chain}, rpc_outcalls{method} and its success
// counterpart, the sybil (feed/signer) outcall pair, and the cycles counter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the daemon exposes, registered once at
// startup against a private prometheus.Registry so tests can assert on a
// fresh instance instead of the global default one.
type Registry struct {
	reg *prometheus.Registry

	ActiveSubscriptions     *prometheus.GaugeVec
	RPCOutcalls             *prometheus.CounterVec
	SuccessfulRPCOutcalls   *prometheus.CounterVec
	SybilOutcalls           *prometheus.CounterVec
	SuccessfulSybilOutcalls *prometheus.CounterVec
	Cycles                  prometheus.Counter
}

// New registers and returns a fresh Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ActiveSubscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_subscriptions",
			Help: "Number of currently active subscriptions, by chain.",
		}, []string{"chain"}),
		RPCOutcalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_outcalls",
			Help: "Total chain RPC calls attempted, by method.",
		}, []string{"method"}),
		SuccessfulRPCOutcalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "successful_rpc_outcalls",
			Help: "Total chain RPC calls that returned without error, by method.",
		}, []string{"method"}),
		SybilOutcalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sybil_outcalls",
			Help: "Total calls to external (non-chain) collaborators attempted, by method.",
		}, []string{"method"}),
		SuccessfulSybilOutcalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "successful_sybil_outcalls",
			Help: "Total calls to external collaborators that returned without error, by method.",
		}, []string{"method"}),
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "cycles",
			Help: "Total number of scheduler ticks executed.",
		}),
	}
}

// Gatherer exposes the underlying registry for the HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveRPC records one chain RPC attempt and, if err is nil, its success.
func (r *Registry) ObserveRPC(method string, err error) {
	r.RPCOutcalls.WithLabelValues(method).Inc()
	if err == nil {
		r.SuccessfulRPCOutcalls.WithLabelValues(method).Inc()
	}
}

// ObserveSybil records one external-collaborator call attempt (feed,
// signer, SIWE verifier: any outcall outside the chain RPC surface) and,
// if err is nil, its success.
func (r *Registry) ObserveSybil(method string, err error) {
	r.SybilOutcalls.WithLabelValues(method).Inc()
	if err == nil {
		r.SuccessfulSybilOutcalls.WithLabelValues(method).Inc()
	}
}
