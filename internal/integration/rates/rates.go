// Package rates supplies router-computed exchange rates for cross-token
// exchanges. Rates are decimals so fractional conversions stay exact until
// the final truncation to base units.
package rates

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	dErrors "istsi/pkg/domain-errors"
)

// Provider returns the source→dest conversion rate.
type Provider interface {
	Rate(ctx context.Context, sourceSymbol, destSymbol string) (decimal.Decimal, error)
}

type pair struct {
	source, dest string
}

// FixedProvider holds admin-configured rates. A production deployment would
// feed this from a market-data service; the router only requires determinism
// within one protocol run.
type FixedProvider struct {
	mu    sync.RWMutex
	rates map[pair]decimal.Decimal
}

func NewFixedProvider() *FixedProvider {
	return &FixedProvider{rates: make(map[pair]decimal.Decimal)}
}

// Set installs the rate for a directed pair.
func (p *FixedProvider) Set(sourceSymbol, destSymbol string, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[pair{sourceSymbol, destSymbol}] = rate
}

func (p *FixedProvider) Rate(_ context.Context, sourceSymbol, destSymbol string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.rates[pair{sourceSymbol, destSymbol}]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, dErrors.Newf(dErrors.CodeBadRequest, "no rate configured for %s/%s", sourceSymbol, destSymbol)
	}
	return rate, nil
}

// Convert applies the rate to a base-unit amount, truncating toward zero.
func Convert(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).IntPart()
}
