package credits

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scriptreel/internal/services"
)

func TestEstimateCost(t *testing.T) {
	e := NewEstimator(1.0, map[string]float64{"Continuity": 1.1, "enhance": 1.05})
	cases := []struct {
		name     string
		duration float64
		features []string
		want     float64
	}{
		{"base", 5, nil, 5},
		{"continuity", 5, []string{FeatureContinuity}, 5.5},
		{"both", 10, []string{"continuity", "enhance"}, 11.55},
		{"rounds up", 3, []string{"enhance"}, 3.15},
		{"duplicate feature counted once", 5, []string{"continuity", "CONTINUITY"}, 5.5},
		{"unknown feature", 5, []string{"sparkles"}, 5},
		{"zero duration", 0, []string{"continuity"}, 0},
	}
	for _, tc := range cases {
		if got := e.EstimateCost(tc.duration, tc.features); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: EstimateCost = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFeatures(t *testing.T) {
	if diff := cmp.Diff([]string{"continuity", "enhance"}, Features(true, true)); diff != "" {
		t.Fatalf("Features mismatch (-want +got):\n%s", diff)
	}
	if Features(false, false) != nil {
		t.Fatal("expected nil features")
	}
}

func TestMemoryLedgerCharge(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(10)
	if err := l.Charge(ctx, 5.5, "seg 0"); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	err := l.Charge(ctx, 5.5, "seg 1")
	var quota *services.QuotaOrCreditError
	if !errors.As(err, &quota) {
		t.Fatalf("err = %v, want QuotaOrCreditError", err)
	}
	if quota.Available != 4.5 || quota.Required != 5.5 {
		t.Fatalf("quota = %+v", quota)
	}
	if services.Retryable(err) {
		t.Fatal("insufficient credits must not be retryable")
	}
	balance, _ := l.Balance(ctx)
	if balance != 4.5 {
		t.Fatalf("balance = %v, want 4.5 (failed charge must not deduct)", balance)
	}
	if diff := cmp.Diff([]Charge{{Amount: 5.5, Memo: "seg 0"}}, l.Charges()); diff != "" {
		t.Fatalf("charges mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryLedgerConcurrentChargesNeverOverspend(t *testing.T) {
	l := NewMemoryLedger(10)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Charge(context.Background(), 1, "x") == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 10 {
		t.Fatalf("successful charges = %d, want 10", success)
	}
}

func TestFreeLedger(t *testing.T) {
	var l FreeLedger
	if err := l.Charge(context.Background(), 1e9, "big"); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	balance, _ := l.Balance(context.Background())
	if Describe(balance) != "unlimited" {
		t.Fatalf("Describe = %q", Describe(balance))
	}
}
