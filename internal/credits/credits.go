// Package credits estimates generation cost and tracks the spendable balance.
//
// Amounts are credits with two decimal places. Ledgers keep balances in integer
// hundredths so repeated charges never drift.
package credits

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"scriptreel/internal/config"
	"scriptreel/internal/services"
)

// Feature names recognised by the estimator.
const (
	FeatureContinuity = "continuity"
	FeatureEnhance    = "enhance"
)

// Estimator prices a clip from its duration and enabled features.
type Estimator struct {
	perSecond   float64
	multipliers map[string]float64
}

// NewEstimator returns an estimator charging perSecond credits per clip second,
// scaled by the product of the multipliers of enabled features.
func NewEstimator(perSecond float64, multipliers map[string]float64) *Estimator {
	m := make(map[string]float64, len(multipliers))
	for k, v := range multipliers {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Estimator{perSecond: perSecond, multipliers: m}
}

// EstimateCost returns the cost rounded up to the next hundredth.
// Unknown features cost nothing extra.
func (e *Estimator) EstimateCost(durationSeconds float64, features []string) float64 {
	if e == nil || durationSeconds <= 0 || e.perSecond <= 0 {
		return 0
	}
	cost := e.perSecond * durationSeconds
	seen := make(map[string]bool, len(features))
	for _, feature := range features {
		key := strings.ToLower(strings.TrimSpace(feature))
		if seen[key] {
			continue
		}
		seen[key] = true
		if mult, ok := e.multipliers[key]; ok && mult > 0 {
			cost *= mult
		}
	}
	return FromCents(ToCents(math.Ceil(cost*100-1e-9) / 100))
}

// Features returns the sorted feature list for a request.
func Features(continuity, enhanced bool) []string {
	var out []string
	if continuity {
		out = append(out, FeatureContinuity)
	}
	if enhanced {
		out = append(out, FeatureEnhance)
	}
	sort.Strings(out)
	return out
}

// Ledger holds a spendable balance.
type Ledger interface {
	Balance(ctx context.Context) (float64, error)
	// Charge deducts amount or returns *services.QuotaOrCreditError when the balance
	// is insufficient. An insufficient charge leaves the balance untouched.
	Charge(ctx context.Context, amount float64, memo string) error
}

// ToCents converts credits to integer hundredths.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts integer hundredths to credits.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// Insufficient builds the error returned when a charge cannot be covered.
func Insufficient(required, available float64) error {
	return &services.QuotaOrCreditError{Required: required, Available: available}
}

// MemoryLedger is a process-local ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	balance int64
	charges []Charge
}

// Charge records one successful deduction.
type Charge struct {
	Amount float64
	Memo   string
}

// NewMemoryLedger returns a ledger holding balance credits.
func NewMemoryLedger(balance float64) *MemoryLedger {
	return &MemoryLedger{balance: ToCents(balance)}
}

func (l *MemoryLedger) Balance(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return FromCents(l.balance), nil
}

func (l *MemoryLedger) Charge(ctx context.Context, amount float64, memo string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cents := ToCents(amount)
	if cents < 0 {
		return &services.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cents > l.balance {
		return Insufficient(amount, FromCents(l.balance))
	}
	l.balance -= cents
	l.charges = append(l.charges, Charge{Amount: FromCents(cents), Memo: memo})
	return nil
}

// Charges returns the recorded charges in order.
func (l *MemoryLedger) Charges() []Charge {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Charge(nil), l.charges...)
}

// FreeLedger accepts every charge; used when credit accounting is disabled.
type FreeLedger struct{}

func (FreeLedger) Balance(context.Context) (float64, error) { return math.Inf(1), nil }

func (FreeLedger) Charge(ctx context.Context, _ float64, _ string) error { return ctx.Err() }

// EstimatorFromConfig builds the estimator described by cfg.Credits.
func EstimatorFromConfig(cfg config.Credits) *Estimator {
	return NewEstimator(cfg.CreditsPerSecond, cfg.FeatureMultipliers)
}

// Describe formats an amount for logs and CLI output.
func Describe(amount float64) string {
	if math.IsInf(amount, 1) {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f", amount)
}
