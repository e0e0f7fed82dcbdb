package prices

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/retry"
)

type fakeSource struct {
	id        string
	assetType domain.AssetType
	price     float64
	err       error
	calls     int
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Supports(at domain.AssetType) bool { return at == f.assetType }

func (f *fakeSource) Fetch(_ context.Context, symbol string) (domain.Quote, error) {
	f.calls++
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{
		Symbol:     symbol,
		SourceID:   f.id,
		Price:      f.price,
		ObservedAt: time.Now(),
	}, nil
}

func guardAll(t *testing.T, expensive map[string]bool, srcs ...*fakeSource) []*GuardedSource {
	t.Helper()
	policy := retry.New(0, time.Millisecond)
	guarded := make([]*GuardedSource, len(srcs))
	for i, s := range srcs {
		guarded[i] = Guard(s, nil, policy, expensive[s.id], zerolog.Nop())
	}
	return guarded
}

func newResolver(sources []*GuardedSource, priority []string, overrides Overrides) *Resolver {
	return NewResolver(sources, priority, overrides, zerolog.Nop())
}

func TestResolveAgreementReturnsAverage(t *testing.T) {
	// 100, 101, 102: avg 101, spread 2% => AVERAGE. Only two sources are
	// queried because two agreeing quotes are enough.
	a := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 100.0}
	b := &fakeSource{id: "alphavantage", assetType: domain.AssetStock, price: 101.0}
	c := &fakeSource{id: "spare", assetType: domain.AssetStock, price: 102.0}

	r := newResolver(guardAll(t, nil, a, b, c), []string{"yahoo"}, nil)
	consensus, ok := r.Resolve(context.Background(), "AAPL", domain.AssetStock)

	require.True(t, ok)
	assert.Equal(t, domain.ConsensusAverage, consensus.Method)
	assert.Equal(t, 100.5, consensus.Price)
	assert.Equal(t, []string{"yahoo", "alphavantage"}, consensus.Sources)
	assert.False(t, consensus.LowConfidence)
	assert.Equal(t, 0, c.calls, "resolution stops early at two quotes")
}

func TestResolveThreeQuoteAverage(t *testing.T) {
	// Sanity from the accounting side: {100, 101, 102} averages to 101
	// when all three contribute.
	values := []float64{100.0, 101.0, 102.0}
	quotes := make([]domain.Quote, len(values))
	for i, v := range values {
		quotes[i] = domain.Quote{Symbol: "AAPL", SourceID: "s", Price: v}
	}

	r := newResolver(nil, nil, nil)
	consensus := r.pick("AAPL", quotes)

	assert.Equal(t, domain.ConsensusAverage, consensus.Method)
	assert.Equal(t, 101.0, consensus.Price)
}

func TestResolveDisagreementUsesPreferredSource(t *testing.T) {
	// 100 vs 140: spread 33%, far outside the 5% band.
	a := &fakeSource{id: "coingecko", assetType: domain.AssetCrypto, price: 140.0}
	b := &fakeSource{id: "binance", assetType: domain.AssetCrypto, price: 100.0}

	r := newResolver(guardAll(t, nil, a, b), []string{"binance", "coingecko"}, nil)
	consensus, ok := r.Resolve(context.Background(), "SOL", domain.AssetCrypto)

	require.True(t, ok)
	assert.Equal(t, domain.ConsensusPreferredSource, consensus.Method)
	assert.Equal(t, 100.0, consensus.Price, "preferred source wins over the average")
}

func TestResolveDisagreementWithoutPriorityFallsBackToAverage(t *testing.T) {
	a := &fakeSource{id: "scraperA", assetType: domain.AssetStock, price: 100.0}
	b := &fakeSource{id: "scraperB", assetType: domain.AssetStock, price: 140.0}

	r := newResolver(guardAll(t, nil, a, b), []string{"yahoo"}, nil)
	consensus, ok := r.Resolve(context.Background(), "TSLA", domain.AssetStock)

	require.True(t, ok)
	assert.Equal(t, domain.ConsensusAverage, consensus.Method)
	assert.Equal(t, 120.0, consensus.Price)
}

func TestResolveSingleQuoteIsLowConfidence(t *testing.T) {
	a := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 55.5}
	b := &fakeSource{id: "alphavantage", assetType: domain.AssetStock, err: ErrNoData}

	r := newResolver(guardAll(t, nil, a, b), []string{"yahoo"}, nil)
	consensus, ok := r.Resolve(context.Background(), "NVDA", domain.AssetStock)

	require.True(t, ok)
	assert.Equal(t, domain.ConsensusSingleSource, consensus.Method)
	assert.True(t, consensus.LowConfidence)
	assert.Equal(t, 55.5, consensus.Price)
}

func TestResolveZeroQuotesIsUnresolved(t *testing.T) {
	a := &fakeSource{id: "yahoo", assetType: domain.AssetStock, err: ErrNoData}
	b := &fakeSource{id: "alphavantage", assetType: domain.AssetStock, err: ErrNoData}

	r := newResolver(guardAll(t, nil, a, b), nil, nil)
	_, ok := r.Resolve(context.Background(), "GHOST", domain.AssetStock)

	assert.False(t, ok)
}

func TestResolveExpensiveSourceOnlyWhenNeeded(t *testing.T) {
	cheap := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 10.0}
	cheap2 := &fakeSource{id: "scraper", assetType: domain.AssetStock, price: 10.1}
	costly := &fakeSource{id: "alphavantage", assetType: domain.AssetStock, price: 10.2}
	expensive := map[string]bool{"alphavantage": true}

	r := newResolver(guardAll(t, expensive, cheap, cheap2, costly), nil, nil)
	_, ok := r.Resolve(context.Background(), "KO", domain.AssetStock)

	require.True(t, ok)
	assert.Equal(t, 0, costly.calls, "expensive source skipped when cheap sources suffice")

	// With one cheap source dead, the expensive one is consulted.
	cheap2.err = ErrNoData
	consensus, ok := r.Resolve(context.Background(), "KO", domain.AssetStock)
	require.True(t, ok)
	assert.Equal(t, 1, costly.calls)
	assert.Len(t, consensus.Sources, 2)
}

func TestResolveRespectsAssetType(t *testing.T) {
	stock := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 10.0}
	crypto := &fakeSource{id: "binance", assetType: domain.AssetCrypto, price: 20.0}

	r := newResolver(guardAll(t, nil, stock, crypto), nil, nil)
	consensus, ok := r.Resolve(context.Background(), "ETH", domain.AssetCrypto)

	require.True(t, ok)
	assert.Equal(t, 0, stock.calls)
	assert.Equal(t, 20.0, consensus.Price)
}

func TestResolveEquityCompUsesStockSources(t *testing.T) {
	stock := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 210.0}

	r := newResolver(guardAll(t, nil, stock), nil, nil)
	consensus, ok := r.Resolve(context.Background(), "MSFT", domain.AssetEquityComp)

	require.True(t, ok)
	assert.Equal(t, 210.0, consensus.Price)
}

func TestResolveSanityRangeRejectsQuotes(t *testing.T) {
	insane := &fakeSource{id: "scraper", assetType: domain.AssetStock, price: 2_000_000.0}
	sane := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 120.0}

	r := newResolver(guardAll(t, nil, insane, sane), nil, nil)
	consensus, ok := r.Resolve(context.Background(), "BRK", domain.AssetStock)

	require.True(t, ok)
	assert.Equal(t, []string{"yahoo"}, consensus.Sources)
	assert.Equal(t, 120.0, consensus.Price)
}

func TestResolveSymbolOverrideNarrowsRange(t *testing.T) {
	// 2330 trades around NT$1000 on the TWSE; a US-listed ADR quote near
	// $200 must not be counted for the local listing.
	adr := &fakeSource{id: "scraper", assetType: domain.AssetStock, price: 195.0}
	local := &fakeSource{id: "yahoo", assetType: domain.AssetStock, price: 1015.0}
	overrides := Overrides{"2330": {MinPrice: 500, MaxPrice: 2000}}

	r := newResolver(guardAll(t, nil, adr, local), nil, overrides)
	consensus, ok := r.Resolve(context.Background(), "2330", domain.AssetStock)

	require.True(t, ok)
	assert.Equal(t, domain.ConsensusSingleSource, consensus.Method)
	assert.Equal(t, 1015.0, consensus.Price)
}

func TestOverridesAccept(t *testing.T) {
	o := Overrides{"2330": {MinPrice: 500, MaxPrice: 2000}}

	assert.True(t, o.Accept("AAPL", 180.0))
	assert.False(t, o.Accept("AAPL", 0.001), "below universal floor")
	assert.False(t, o.Accept("AAPL", 60000.0), "above universal ceiling")
	assert.True(t, o.Accept("2330", 900.0))
	assert.False(t, o.Accept("2330", 195.0))
	assert.False(t, o.Accept("2330", 2500.0))
}
