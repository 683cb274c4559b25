package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRPCCountsAttemptsAndSuccesses(t *testing.T) {
	r := New()

	r.ObserveRPC("eth_call", nil)
	r.ObserveRPC("eth_call", errors.New("boom"))
	r.ObserveRPC("eth_sendTransaction", nil)

	if got := testutil.ToFloat64(r.RPCOutcalls.WithLabelValues("eth_call")); got != 2 {
		t.Fatalf("rpc_outcalls{eth_call} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.SuccessfulRPCOutcalls.WithLabelValues("eth_call")); got != 1 {
		t.Fatalf("successful_rpc_outcalls{eth_call} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RPCOutcalls.WithLabelValues("eth_sendTransaction")); got != 1 {
		t.Fatalf("rpc_outcalls{eth_sendTransaction} = %v, want 1", got)
	}
}

func TestObserveSybilCountsAttemptsAndSuccesses(t *testing.T) {
	r := New()

	r.ObserveSybil("feed_price", nil)
	r.ObserveSybil("feed_price", errors.New("timeout"))

	if got := testutil.ToFloat64(r.SybilOutcalls.WithLabelValues("feed_price")); got != 2 {
		t.Fatalf("sybil_outcalls{feed_price} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.SuccessfulSybilOutcalls.WithLabelValues("feed_price")); got != 1 {
		t.Fatalf("successful_sybil_outcalls{feed_price} = %v, want 1", got)
	}
}

func TestGathererExposesRegisteredMetrics(t *testing.T) {
	r := New()
	r.Cycles.Add(3)
	r.ActiveSubscriptions.WithLabelValues("1").Set(5)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}

	if got := testutil.ToFloat64(r.Cycles); got != 3 {
		t.Fatalf("cycles = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.ActiveSubscriptions.WithLabelValues("1")); got != 5 {
		t.Fatalf("active_subscriptions{1} = %v, want 5", got)
	}
}
