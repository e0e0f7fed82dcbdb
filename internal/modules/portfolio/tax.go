package portfolio

import (
	"github.com/jwchen/keeper/internal/domain"
)

// TaxEstimator applies flat per-asset-type rates to realized gains. It is a
// planning aid, not a tax computation: losses offset gains within an asset
// type but a negative liability is clamped to zero.
type TaxEstimator struct {
	// Rates are percentages, e.g. 15 means 15%.
	Rates map[domain.AssetType]float64
}

// NewTaxEstimator creates an estimator with per-asset-type percentage rates.
func NewTaxEstimator(stockRate, cryptoRate, equityCompRate float64) *TaxEstimator {
	return &TaxEstimator{
		Rates: map[domain.AssetType]float64{
			domain.AssetStock:      stockRate,
			domain.AssetCrypto:     cryptoRate,
			domain.AssetEquityComp: equityCompRate,
		},
	}
}

// TaxEstimate is the estimated liability on a set of realized gains.
type TaxEstimate struct {
	Total       float64                      `json:"total"`
	ByAssetType map[domain.AssetType]float64 `json:"by_asset_type"`
	Rates       map[domain.AssetType]float64 `json:"rates"`
}

// Estimate computes the liability for realized gains. assetTypes maps symbols
// to their asset type; symbols not in the map are taxed at the stock rate.
func (t *TaxEstimator) Estimate(gains []domain.RealizedGainRecord, assetTypes map[string]domain.AssetType) TaxEstimate {
	netByType := make(map[domain.AssetType]float64)
	for _, g := range gains {
		at, ok := assetTypes[g.Symbol]
		if !ok {
			at = domain.AssetStock
		}
		netByType[at] += g.Gain
	}

	estimate := TaxEstimate{
		ByAssetType: make(map[domain.AssetType]float64),
		Rates:       t.Rates,
	}
	for at, net := range netByType {
		if net <= 0 {
			estimate.ByAssetType[at] = 0
			continue
		}
		liability := net * t.Rates[at] / 100
		estimate.ByAssetType[at] = liability
		estimate.Total += liability
	}
	return estimate
}
