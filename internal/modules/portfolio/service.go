// Package portfolio combines the transaction ledger, the price cache and the
// price updater into the portfolio views the API serves: current holdings,
// unrealized and realized gains, and summary totals.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/ledger"
	"github.com/jwchen/keeper/internal/modules/pricecache"
)

// TransactionStore is the slice of the transactions repository the service needs.
type TransactionStore interface {
	ListByOwner(ownerID string) ([]domain.Transaction, error)
}

// PriceStore is the slice of the price cache repository the service needs.
type PriceStore interface {
	Upsert(p domain.ConsensusPrice) error
	Get(symbol string) (*pricecache.CachedPrice, error)
	GetAll() (map[string]pricecache.CachedPrice, error)
}

// PriceUpdater resolves consensus prices for a set of holdings.
type PriceUpdater interface {
	UpdateAll(ctx context.Context, holdings []domain.Holding) map[string]domain.ConsensusPrice
}

// SymbolResolver resolves a consensus price for a single symbol.
type SymbolResolver interface {
	Resolve(ctx context.Context, symbol string, assetType domain.AssetType) (domain.ConsensusPrice, bool)
}

// Converter translates foreign amounts into the base currency.
type Converter interface {
	ToBase(amount float64, fromCurrency string) float64
	BaseCurrency() string
}

// Service derives portfolio state from the transaction history. Holdings are
// never stored; every read replays the ledger.
type Service struct {
	txStore    TransactionStore
	priceStore PriceStore
	updater    PriceUpdater
	resolver   SymbolResolver
	converter  Converter
	tax        *TaxEstimator
	log        zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(
	txStore TransactionStore,
	priceStore PriceStore,
	updater PriceUpdater,
	resolver SymbolResolver,
	converter Converter,
	tax *TaxEstimator,
	log zerolog.Logger,
) *Service {
	return &Service{
		txStore:    txStore,
		priceStore: priceStore,
		updater:    updater,
		resolver:   resolver,
		converter:  converter,
		tax:        tax,
		log:        log.With().Str("service", "portfolio").Logger(),
	}
}

// ResolvePrice resolves one symbol's consensus price on demand and caches the
// result. Returns false when no source produced a usable quote.
func (s *Service) ResolvePrice(ctx context.Context, symbol string, assetType domain.AssetType) (float64, bool) {
	if s.resolver == nil {
		return 0, false
	}

	consensus, ok := s.resolver.Resolve(ctx, symbol, assetType)
	if !ok {
		return 0, false
	}
	if err := s.priceStore.Upsert(consensus); err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to cache resolved price")
	}
	return consensus.Price, true
}

// CachedPrice returns the last cached price for a symbol, or nil when none is
// stored. Serves reads when live resolution fails.
func (s *Service) CachedPrice(symbol string) (*pricecache.CachedPrice, error) {
	return s.priceStore.Get(symbol)
}

// Replay returns the owner's current holdings sorted by symbol. Transaction
// amounts are converted into the base currency before replay so holdings from
// mixed-currency histories carry comparable cost bases.
func (s *Service) Replay(ownerID string) ([]domain.Holding, error) {
	txs, err := s.txStore.ListByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	holdings := ledger.Replay(s.toBase(txs))

	result := make([]domain.Holding, 0, len(holdings))
	for _, h := range holdings {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

// PricedHoldings joins current holdings with the last cached consensus price.
// A holding with no cached price is still returned, with zero price and value.
func (s *Service) PricedHoldings(ownerID string) ([]domain.PricedHolding, error) {
	holdings, err := s.Replay(ownerID)
	if err != nil {
		return nil, err
	}

	prices, err := s.priceStore.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load cached prices: %w", err)
	}

	result := make([]domain.PricedHolding, 0, len(holdings))
	for _, h := range holdings {
		ph := domain.PricedHolding{Holding: h}
		if cached, ok := prices[h.Symbol]; ok {
			ph.CurrentPrice = cached.Price
			ph.CurrentValue = h.Quantity * cached.Price
			ph.UnrealizedGain = ph.CurrentValue - h.TotalCost
			if h.TotalCost > 0 {
				ph.UnrealizedGainPercent = ph.UnrealizedGain / h.TotalCost * 100
			}
			ph.PriceUpdatedAt = cached.UpdatedAt
		}
		result = append(result, ph)
	}
	return result, nil
}

// UpdatePrices refreshes consensus prices for every symbol the owner holds and
// persists them to the price cache. Unresolved symbols are not written, so the
// previously cached price stays in effect. Returns the number of symbols
// updated and the wall time the batch took.
func (s *Service) UpdatePrices(ctx context.Context, ownerID string) (int, time.Duration, error) {
	holdings, err := s.Replay(ownerID)
	if err != nil {
		return 0, 0, err
	}
	if len(holdings) == 0 {
		return 0, 0, nil
	}

	start := time.Now()
	resolved := s.updater.UpdateAll(ctx, holdings)
	elapsed := time.Since(start)

	updated := 0
	for _, price := range resolved {
		if err := s.priceStore.Upsert(price); err != nil {
			s.log.Error().Err(err).Str("symbol", price.Symbol).Msg("Failed to cache price")
			continue
		}
		updated++
	}

	s.log.Info().
		Int("holdings", len(holdings)).
		Int("updated", updated).
		Dur("elapsed", elapsed).
		Msg("Price update completed")

	return updated, elapsed, nil
}

// RealizedGains derives a gain record for every completed sale in the owner's
// history, oldest first.
func (s *Service) RealizedGains(ownerID string) ([]domain.RealizedGainRecord, error) {
	txs, err := s.txStore.ListByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return ledger.RealizedGains(s.toBase(txs)), nil
}

// Summary aggregates the owner's priced holdings and realized gains.
type Summary struct {
	BaseCurrency          string  `json:"base_currency"`
	HoldingsCount         int     `json:"holdings_count"`
	TotalCost             float64 `json:"total_cost"`
	TotalValue            float64 `json:"total_value"`
	UnrealizedGain        float64 `json:"unrealized_gain"`
	UnrealizedGainPercent float64 `json:"unrealized_gain_percent"`
	RealizedGain          float64 `json:"realized_gain"`
	EstimatedTax          float64 `json:"estimated_tax"`

	ByAssetType map[domain.AssetType]AssetBreakdown `json:"by_asset_type"`
}

// AssetBreakdown is the per-asset-type slice of the summary.
type AssetBreakdown struct {
	HoldingsCount int     `json:"holdings_count"`
	TotalCost     float64 `json:"total_cost"`
	TotalValue    float64 `json:"total_value"`
}

// GetSummary computes portfolio totals across all of the owner's holdings.
func (s *Service) GetSummary(ownerID string) (*Summary, error) {
	priced, err := s.PricedHoldings(ownerID)
	if err != nil {
		return nil, err
	}

	gains, err := s.RealizedGains(ownerID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		BaseCurrency:  s.converter.BaseCurrency(),
		HoldingsCount: len(priced),
		ByAssetType:   make(map[domain.AssetType]AssetBreakdown),
	}

	for _, ph := range priced {
		summary.TotalCost += ph.TotalCost
		summary.TotalValue += ph.CurrentValue

		b := summary.ByAssetType[ph.AssetType]
		b.HoldingsCount++
		b.TotalCost += ph.TotalCost
		b.TotalValue += ph.CurrentValue
		summary.ByAssetType[ph.AssetType] = b
	}
	summary.UnrealizedGain = summary.TotalValue - summary.TotalCost
	if summary.TotalCost > 0 {
		summary.UnrealizedGainPercent = summary.UnrealizedGain / summary.TotalCost * 100
	}

	// Fully sold positions are pruned from holdings but still produce
	// realized gains, so the type map for the tax estimate has to come
	// from the transaction history.
	txs, err := s.txStore.ListByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	assetTypes := make(map[string]domain.AssetType, len(txs))
	for _, tx := range txs {
		assetTypes[tx.Symbol] = tx.AssetType
	}
	for _, g := range gains {
		summary.RealizedGain += g.Gain
	}
	if s.tax != nil {
		summary.EstimatedTax = s.tax.Estimate(gains, assetTypes).Total
	}

	return summary, nil
}

// toBase converts transaction amounts into the base currency. Quantities are
// untouched; only monetary fields change.
func (s *Service) toBase(txs []domain.Transaction) []domain.Transaction {
	if s.converter == nil {
		return txs
	}
	converted := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		if tx.Currency != "" && tx.Currency != s.converter.BaseCurrency() {
			tx.PricePerUnit = s.converter.ToBase(tx.PricePerUnit, tx.Currency)
			tx.TotalAmount = s.converter.ToBase(tx.TotalAmount, tx.Currency)
			tx.Currency = s.converter.BaseCurrency()
		}
		converted[i] = tx
	}
	return converted
}
