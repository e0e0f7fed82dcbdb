package prices

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/jwchen/keeper/internal/domain"
)

const (
	// enoughQuotes is where querying stops early: two independent quotes
	// are enough to cross-check, and every extra source costs quota.
	enoughQuotes = 2

	// agreementBand is the max relative spread (max-min)/avg under which
	// sources are considered to agree and their average is trusted.
	agreementBand = 0.05
)

// Resolver derives a single trusted price per symbol from an ordered list of
// guarded sources.
type Resolver struct {
	sources   []*GuardedSource
	priority  []string // preferred source order for disagreement tie-breaks
	overrides Overrides
	log       zerolog.Logger
}

// NewResolver creates a resolver. Sources are queried in the given order,
// with expensive ones deferred; priority is the configured preferred-source
// order used when quotes disagree.
func NewResolver(sources []*GuardedSource, priority []string, overrides Overrides, log zerolog.Logger) *Resolver {
	if overrides == nil {
		overrides = Overrides{}
	}
	return &Resolver{
		sources:   sources,
		priority:  priority,
		overrides: overrides,
		log:       log.With().Str("component", "price_resolver").Logger(),
	}
}

// Resolve queries the applicable sources for symbol and picks a consensus
// price. The second return value is false when no source produced a usable
// quote; that is a routine outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, symbol string, assetType domain.AssetType) (domain.ConsensusPrice, bool) {
	priceType := assetType.PriceAssetType()

	quotes := r.collect(ctx, symbol, priceType, false, enoughQuotes)
	if len(quotes) < enoughQuotes {
		quotes = append(quotes, r.collect(ctx, symbol, priceType, true, enoughQuotes-len(quotes))...)
	}

	if len(quotes) == 0 {
		r.log.Debug().Str("symbol", symbol).Msg("No source produced a quote")
		return domain.ConsensusPrice{}, false
	}

	consensus := r.pick(symbol, quotes)
	r.log.Debug().
		Str("symbol", symbol).
		Float64("price", consensus.Price).
		Str("method", string(consensus.Method)).
		Strs("sources", consensus.Sources).
		Msg("Resolved consensus price")

	return consensus, true
}

// collect queries sources of the requested tier in order, stopping once
// need quotes are in hand.
func (r *Resolver) collect(ctx context.Context, symbol string, assetType domain.AssetType, expensive bool, need int) []domain.Quote {
	var quotes []domain.Quote
	for _, src := range r.sources {
		if len(quotes) >= need {
			break
		}
		if src.Expensive() != expensive || !src.Supports(assetType) {
			continue
		}

		quote, err := src.Fetch(ctx, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			continue
		}

		if !r.overrides.Accept(symbol, quote.Price) {
			r.log.Warn().
				Str("symbol", symbol).
				Str("source", src.ID()).
				Float64("price", quote.Price).
				Msg("Quote rejected by sanity range")
			continue
		}

		quotes = append(quotes, quote)
	}
	return quotes
}

// pick applies the consensus rules to the collected quotes.
func (r *Resolver) pick(symbol string, quotes []domain.Quote) domain.ConsensusPrice {
	sources := make([]string, len(quotes))
	values := make([]float64, len(quotes))
	for i, q := range quotes {
		sources[i] = q.SourceID
		values[i] = q.Price
	}

	now := time.Now().UTC()

	if len(quotes) == 1 {
		return domain.ConsensusPrice{
			Symbol:        symbol,
			Price:         round2(values[0]),
			Method:        domain.ConsensusSingleSource,
			Sources:       sources,
			LowConfidence: true,
			ResolvedAt:    now,
		}
	}

	avg := stat.Mean(values, nil)
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if avg > 0 && (hi-lo)/avg < agreementBand {
		return domain.ConsensusPrice{
			Symbol:     symbol,
			Price:      round2(avg),
			Method:     domain.ConsensusAverage,
			Sources:    sources,
			ResolvedAt: now,
		}
	}

	// Sources disagree: trust the highest-priority contributor.
	for _, preferred := range r.priority {
		for _, q := range quotes {
			if q.SourceID == preferred {
				r.log.Info().
					Str("symbol", symbol).
					Float64("spread", (hi-lo)/avg).
					Str("preferred", preferred).
					Msg("Sources disagree, using preferred source")
				return domain.ConsensusPrice{
					Symbol:     symbol,
					Price:      round2(q.Price),
					Method:     domain.ConsensusPreferredSource,
					Sources:    sources,
					ResolvedAt: now,
				}
			}
		}
	}

	// No contributor is in the priority list; the average is still the
	// least-bad deterministic answer.
	return domain.ConsensusPrice{
		Symbol:     symbol,
		Price:      round2(avg),
		Method:     domain.ConsensusAverage,
		Sources:    sources,
		ResolvedAt: now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
