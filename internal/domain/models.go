// Package domain contains the core types shared across modules.
// The domain layer is pure: no infrastructure dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssetType classifies a symbol for price-source selection
type AssetType string

const (
	AssetStock      AssetType = "stock"
	AssetCrypto     AssetType = "crypto"
	AssetEquityComp AssetType = "equity_comp" // employer grants, priced like stock
)

// PriceAssetType maps an asset type to the one used for price lookups.
// Equity compensation is priced through the stock sources.
func (a AssetType) PriceAssetType() AssetType {
	if a == AssetEquityComp {
		return AssetStock
	}
	return a
}

// TxType is the direction of a transaction
type TxType string

const (
	TxBuy  TxType = "BUY"
	TxSell TxType = "SELL"
)

// Transaction is a single append-only ledger entry. Transactions are never
// mutated after creation; holdings are always derived by replaying them.
type Transaction struct {
	ID           string
	OwnerID      string
	Symbol       string
	Name         string
	AssetType    AssetType
	Type         TxType
	Quantity     float64
	PricePerUnit float64
	TotalAmount  float64
	Currency     string
	Date         time.Time
	Notes        string
}

// Validate checks the invariants that must hold before a transaction may
// enter the ledger. Insufficient-holdings checks need current state and live
// in the ledger package.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("transaction symbol is required")
	}
	if t.Type != TxBuy && t.Type != TxSell {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("transaction quantity must be positive, got %v", t.Quantity)
	}
	if t.PricePerUnit <= 0 {
		return fmt.Errorf("transaction price must be positive, got %v", t.PricePerUnit)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date is required")
	}
	return nil
}

// NormalizedSymbol returns the canonical symbol form used as a map key
// throughout the system.
func (t *Transaction) NormalizedSymbol() string {
	return strings.ToUpper(strings.TrimSpace(t.Symbol))
}

// Holding is a derived position: the result of replaying all of an owner's
// transactions for one symbol. A holding with zero quantity does not exist.
type Holding struct {
	Symbol             string
	Name               string
	AssetType          AssetType
	Quantity           float64
	TotalCost          float64
	AverageCost        float64
	FirstAcquisitionAt time.Time
}

// PricedHolding is a holding joined with its last known consensus price.
type PricedHolding struct {
	Holding
	CurrentPrice          float64
	CurrentValue          float64
	UnrealizedGain        float64
	UnrealizedGainPercent float64
	PriceUpdatedAt        time.Time
}

// Quote is a single observation from one price source. Ephemeral, never persisted.
type Quote struct {
	Symbol     string
	SourceID   string
	Price      float64
	ObservedAt time.Time
}

// ConsensusMethod describes how a consensus price was derived
type ConsensusMethod string

const (
	ConsensusAverage         ConsensusMethod = "AVERAGE"
	ConsensusPreferredSource ConsensusMethod = "PREFERRED_SOURCE"
	ConsensusSingleSource    ConsensusMethod = "SINGLE_SOURCE"
)

// ConsensusPrice is the resolved price for one symbol at one point in time.
// LowConfidence is set when only a single source contributed.
type ConsensusPrice struct {
	Symbol        string
	Price         float64
	Method        ConsensusMethod
	Sources       []string
	LowConfidence bool
	ResolvedAt    time.Time
}

// RealizedGainRecord is the outcome of a completed sale, computed on demand
// from the full buy history at or before the sell date.
type RealizedGainRecord struct {
	SellTransactionID string
	Symbol            string
	Name              string
	SellDate          time.Time
	QuantitySold      float64
	SellPrice         float64
	Proceeds          float64
	AverageCostBasis  float64
	CostBasisConsumed float64
	Gain              float64
	GainPercent       float64
}
