package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ─── Metric Registration ────────────────────────────────────────────────────

func TestLedgerCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(LedgerEntries.WithLabelValues("consume"))
	LedgerEntries.WithLabelValues("consume").Inc()
	after := testutil.ToFloat64(LedgerEntries.WithLabelValues("consume"))
	if after != before+1 {
		t.Errorf("entries_total{consume} = %v, want %v", after, before+1)
	}
}

func TestCallbackAcks_Labels(t *testing.T) {
	CallbackAcks.WithLabelValues("0").Inc()
	CallbackAcks.WithLabelValues("3").Inc()
	if n := testutil.CollectAndCount(CallbackAcks); n < 2 {
		t.Errorf("CollectAndCount(CallbackAcks) = %d, want >= 2", n)
	}
}

func TestMetricNames(t *testing.T) {
	const want = `
		# HELP coinledger_payment_orders_expired_total Total pending orders expired by the sweeper.
		# TYPE coinledger_payment_orders_expired_total counter
		coinledger_payment_orders_expired_total 0
	`
	if err := testutil.CollectAndCompare(OrdersExpired, strings.NewReader(want)); err != nil {
		t.Error(err)
	}
}
