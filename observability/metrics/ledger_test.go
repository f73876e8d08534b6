package metrics

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerMetrics(t *testing.T) {
	m := Ledger()
	if m != Ledger() {
		t.Fatalf("expected a single registry instance")
	}

	before := testutil.ToFloat64(m.calls.WithLabelValues("allocate", "rejected"))
	m.ObserveCall("allocate", errors.New("boom"))
	if got := testutil.ToFloat64(m.calls.WithLabelValues("allocate", "rejected")); got != before+1 {
		t.Fatalf("unexpected rejected count %v", got)
	}

	m.ObserveAllocation(uint256.NewInt(100), uint256.NewInt(50))
	if got := testutil.ToFloat64(m.coinsConsumed); got != 100 {
		t.Fatalf("unexpected consumed gauge %v", got)
	}
	if got := testutil.ToFloat64(m.coinsRemaining); got != 50 {
		t.Fatalf("unexpected remaining gauge %v", got)
	}

	m.SetBlockHeight(9)
	if got := testutil.ToFloat64(m.blockHeight); got != 9 {
		t.Fatalf("unexpected height gauge %v", got)
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveRejection("cap")
	nilMetrics.ObserveLockedTransfer()
}
