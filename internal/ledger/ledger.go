// Package ledger is the cost-basis accounting engine. It replays an
// append-only transaction history into current holdings and derives realized
// gains. The engine is pure: no I/O, no clock, no shared state. Callers hand
// it an already-snapshotted transaction list.
package ledger

import (
	"fmt"
	"sort"

	"github.com/jwchen/keeper/internal/domain"
)

// InsufficientHoldingsError rejects a SELL that exceeds the currently held
// quantity. The check runs before any ledger state is touched, so a rejected
// transaction leaves no partial mutation behind.
type InsufficientHoldingsError struct {
	Symbol    string
	Held      float64
	Requested float64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings for %s: have %v, selling %v", e.Symbol, e.Held, e.Requested)
}

// sortByDate orders transactions by transaction date ascending, keeping
// insertion order for same-date entries. The stable tie-break is what makes
// replay deterministic for same-day buy/sell pairs.
func sortByDate(txs []domain.Transaction) []domain.Transaction {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})
	return ordered
}

// Replay folds an owner's transactions into current holdings. Transactions
// are replayed in date order (stable for ties); BUYs accumulate quantity and
// cost, SELLs remove cost proportionally at the pre-sale average so the
// average cost of the remainder is unchanged. Symbols that reach zero
// quantity are pruned. Replaying the same list twice always yields identical
// holdings.
func Replay(txs []domain.Transaction) map[string]domain.Holding {
	holdings := make(map[string]domain.Holding)

	for _, tx := range sortByDate(txs) {
		symbol := tx.NormalizedSymbol()
		h, exists := holdings[symbol]
		if !exists {
			h = domain.Holding{
				Symbol:             symbol,
				Name:               tx.Name,
				AssetType:          tx.AssetType,
				FirstAcquisitionAt: tx.Date,
			}
		}

		switch tx.Type {
		case domain.TxBuy:
			h.Quantity += tx.Quantity
			h.TotalCost += tx.TotalAmount
		case domain.TxSell:
			if h.Quantity <= 0 {
				// SELL against nothing held is a data-quality gap;
				// validation upstream should have rejected it.
				continue
			}
			avgCost := h.TotalCost / h.Quantity
			h.TotalCost -= avgCost * tx.Quantity
			h.Quantity -= tx.Quantity
		}

		if h.Quantity > 0 {
			h.AverageCost = h.TotalCost / h.Quantity
			holdings[symbol] = h
		} else {
			delete(holdings, symbol)
		}
	}

	return holdings
}

// ValidateTransaction checks a candidate transaction against its own
// invariants and, for SELLs, against the holdings that result from the
// existing history. It must be called before the transaction is appended;
// the ledger itself never observes an invalid state.
func ValidateTransaction(existing []domain.Transaction, candidate domain.Transaction) error {
	if err := candidate.Validate(); err != nil {
		return err
	}

	if candidate.Type == domain.TxSell {
		holdings := Replay(existing)
		held := holdings[candidate.NormalizedSymbol()].Quantity
		if candidate.Quantity > held {
			return &InsufficientHoldingsError{
				Symbol:    candidate.NormalizedSymbol(),
				Held:      held,
				Requested: candidate.Quantity,
			}
		}
	}

	return nil
}

// RealizedGains derives a gain record for every SELL in the history. Each
// sale is measured against the average cost of all BUYs of the same symbol
// dated at or before it, recomputed from scratch per sale. A SELL with no
// prior BUY history produces no record rather than an error.
func RealizedGains(txs []domain.Transaction) []domain.RealizedGainRecord {
	ordered := sortByDate(txs)

	var gains []domain.RealizedGainRecord
	for _, sell := range ordered {
		if sell.Type != domain.TxSell {
			continue
		}

		symbol := sell.NormalizedSymbol()
		var totalBuyCost, totalBuyQty float64
		for _, buy := range ordered {
			if buy.Type == domain.TxBuy && buy.NormalizedSymbol() == symbol && !buy.Date.After(sell.Date) {
				totalBuyCost += buy.TotalAmount
				totalBuyQty += buy.Quantity
			}
		}
		if totalBuyQty <= 0 {
			continue
		}

		avgBasis := totalBuyCost / totalBuyQty
		consumed := avgBasis * sell.Quantity
		gain := sell.TotalAmount - consumed

		gains = append(gains, domain.RealizedGainRecord{
			SellTransactionID: sell.ID,
			Symbol:            symbol,
			Name:              sell.Name,
			SellDate:          sell.Date,
			QuantitySold:      sell.Quantity,
			SellPrice:         sell.PricePerUnit,
			Proceeds:          sell.TotalAmount,
			AverageCostBasis:  avgBasis,
			CostBasisConsumed: consumed,
			Gain:              gain,
			GainPercent:       gain / consumed * 100,
		})
	}

	return gains
}
