package prices

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
)

const (
	// defaultConcurrency caps in-flight symbol resolutions so the wrapped
	// sources see a bounded aggregate request rate.
	defaultConcurrency = 3

	// defaultStagger spaces out task submission so the pool does not fire
	// every source at once on the first tick.
	defaultStagger = 200 * time.Millisecond
)

// PriceResolver is the single-symbol resolution contract the updater fans
// out over. Satisfied by *Resolver.
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string, assetType domain.AssetType) (domain.ConsensusPrice, bool)
}

// Updater resolves prices for many holdings at once under a bounded worker
// pool. Symbols are deduplicated: one resolution per unique symbol no matter
// how many holdings reference it.
type Updater struct {
	resolver    PriceResolver
	concurrency int
	stagger     time.Duration
	log         zerolog.Logger
}

// NewUpdater creates a batch updater with the default pool size and stagger.
func NewUpdater(resolver PriceResolver, log zerolog.Logger) *Updater {
	return &Updater{
		resolver:    resolver,
		concurrency: defaultConcurrency,
		stagger:     defaultStagger,
		log:         log.With().Str("component", "price_updater").Logger(),
	}
}

// SetConcurrency overrides the worker pool size. Used by tests and by
// configuration.
func (u *Updater) SetConcurrency(n int) {
	if n > 0 {
		u.concurrency = n
	}
}

// SetStagger overrides the submission stagger delay.
func (u *Updater) SetStagger(d time.Duration) {
	if d >= 0 {
		u.stagger = d
	}
}

type symbolTask struct {
	symbol    string
	assetType domain.AssetType
}

// UpdateAll resolves a consensus price for every unique symbol among the
// given holdings. Symbols that stay unresolved are simply absent from the
// result: the caller keeps whatever price it already had. Results arrive in
// completion order; there is no cross-symbol ordering guarantee.
func (u *Updater) UpdateAll(ctx context.Context, holdings []domain.Holding) map[string]domain.ConsensusPrice {
	tasks := dedupe(holdings)
	if len(tasks) == 0 {
		return map[string]domain.ConsensusPrice{}
	}

	start := time.Now()
	jobs := make(chan symbolTask)
	results := make(chan domain.ConsensusPrice, len(tasks))

	var wg sync.WaitGroup
	workers := u.concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				if consensus, ok := u.resolver.Resolve(ctx, task.symbol, task.assetType); ok {
					results <- consensus
				} else {
					u.log.Debug().Str("symbol", task.symbol).Msg("Symbol unresolved, keeping stale price")
				}
			}
		}()
	}

	// Staggered submission avoids a request burst at t=0.
	go func() {
		defer close(jobs)
		for i, task := range tasks {
			if i > 0 && u.stagger > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(u.stagger):
				}
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	resolved := make(map[string]domain.ConsensusPrice, len(tasks))
	for consensus := range results {
		resolved[consensus.Symbol] = consensus
	}

	u.log.Info().
		Int("symbols", len(tasks)).
		Int("resolved", len(resolved)).
		Dur("elapsed", time.Since(start)).
		Msg("Batch price update complete")

	return resolved
}

// dedupe groups holdings by symbol, keeping the first-seen asset type, and
// preserves first-appearance order for deterministic submission.
func dedupe(holdings []domain.Holding) []symbolTask {
	seen := make(map[string]bool, len(holdings))
	tasks := make([]symbolTask, 0, len(holdings))
	for _, h := range holdings {
		if h.Symbol == "" || seen[h.Symbol] {
			continue
		}
		seen[h.Symbol] = true
		tasks = append(tasks, symbolTask{symbol: h.Symbol, assetType: h.AssetType})
	}
	return tasks
}
