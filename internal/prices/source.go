// Package prices implements multi-source price resolution: each symbol is
// quoted by several unreliable external sources and a single trusted price
// is derived by cross-source consensus.
package prices

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/ratelimit"
	"github.com/jwchen/keeper/internal/retry"
)

// ErrNoData is returned by a source that has no usable price for a symbol.
// Unknown symbol, empty payload or an out-of-range price are all valid empty
// results, not failures.
var ErrNoData = errors.New("no price data")

// Source is one external price feed.
type Source interface {
	// ID is the stable source key used for rate limiting and priority order.
	ID() string
	// Supports reports whether this source quotes the given asset type.
	Supports(assetType domain.AssetType) bool
	// Fetch returns a quote for symbol, or ErrNoData.
	Fetch(ctx context.Context, symbol string) (domain.Quote, error)
}

// GuardedSource wraps a Source with its rate limiter and retry policy.
// The limiter delay is applied before the first attempt; transient failures
// are retried per the policy and an exhausted source degrades to ErrNoData
// so one bad feed never fails a whole resolution.
type GuardedSource struct {
	src       Source
	limiter   *ratelimit.Limiter
	policy    *retry.Policy
	expensive bool
	log       zerolog.Logger
}

// Guard builds a GuardedSource. Expensive marks sources that should only be
// consulted when the cheaper ones could not produce enough quotes.
func Guard(src Source, limiter *ratelimit.Limiter, policy *retry.Policy, expensive bool, log zerolog.Logger) *GuardedSource {
	return &GuardedSource{
		src:       src,
		limiter:   limiter,
		policy:    policy,
		expensive: expensive,
		log:       log.With().Str("source", src.ID()).Logger(),
	}
}

// ID returns the wrapped source's key.
func (g *GuardedSource) ID() string { return g.src.ID() }

// Supports delegates to the wrapped source.
func (g *GuardedSource) Supports(assetType domain.AssetType) bool {
	return g.src.Supports(assetType)
}

// Expensive reports whether this source is deferred until cheaper sources
// have been tried.
func (g *GuardedSource) Expensive() bool { return g.expensive }

// Fetch waits out the rate limiter, then fetches with retries. Any error
// left after retries are exhausted is collapsed into ErrNoData.
func (g *GuardedSource) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	if g.limiter != nil {
		start := time.Now()
		if err := g.limiter.Wait(ctx, g.src.ID()); err != nil {
			return domain.Quote{}, err
		}
		if waited := time.Since(start); waited > time.Second {
			g.log.Debug().Str("symbol", symbol).Dur("waited", waited).Msg("Rate limiter delayed fetch")
		}
	}

	var quote domain.Quote
	err := g.policy.Do(ctx, func() error {
		var fetchErr error
		quote, fetchErr = g.src.Fetch(ctx, symbol)
		return fetchErr
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Quote{}, err
		}
		if !errors.Is(err, ErrNoData) {
			g.log.Warn().Err(err).Str("symbol", symbol).Msg("Source exhausted retries, treating as no data")
		}
		return domain.Quote{}, ErrNoData
	}

	return quote, nil
}
