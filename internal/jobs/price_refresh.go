// Package jobs contains the scheduled background jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// OwnerLister enumerates owners with transaction history.
type OwnerLister interface {
	ListOwners() ([]string, error)
}

// PriceUpdater refreshes cached prices for one owner's holdings.
type PriceUpdater interface {
	UpdatePrices(ctx context.Context, ownerID string) (int, time.Duration, error)
}

// PriceRefreshJob periodically re-resolves consensus prices for every symbol
// held by any owner, so the cache stays warm between explicit refreshes.
type PriceRefreshJob struct {
	owners  OwnerLister
	updater PriceUpdater
	timeout time.Duration
	log     zerolog.Logger
}

// NewPriceRefreshJob creates the periodic price refresh job.
func NewPriceRefreshJob(owners OwnerLister, updater PriceUpdater, timeout time.Duration, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		owners:  owners,
		updater: updater,
		timeout: timeout,
		log:     log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run refreshes prices owner by owner. A failure for one owner does not stop
// the others; the job fails only when every owner fails.
func (j *PriceRefreshJob) Run() error {
	owners, err := j.owners.ListOwners()
	if err != nil {
		return fmt.Errorf("failed to list owners: %w", err)
	}
	if len(owners) == 0 {
		j.log.Debug().Msg("No owners with transactions, nothing to refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	failures := 0
	for _, owner := range owners {
		updated, elapsed, err := j.updater.UpdatePrices(ctx, owner)
		if err != nil {
			j.log.Error().Err(err).Str("owner", owner).Msg("Price refresh failed for owner")
			failures++
			continue
		}
		j.log.Info().
			Str("owner", owner).
			Int("updated", updated).
			Dur("elapsed", elapsed).
			Msg("Refreshed prices")
	}

	if failures == len(owners) {
		return fmt.Errorf("price refresh failed for all %d owners", failures)
	}
	return nil
}
