package portfolio

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
)

// Handler serves the portfolio read API.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a portfolio handler.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// Routes mounts the portfolio endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/holdings", h.HandleGetHoldings)
	r.Get("/realized-gains", h.HandleGetRealizedGains)
	r.Get("/portfolio/summary", h.HandleGetSummary)
	r.Post("/update-prices", h.HandleUpdatePrices)
	r.Get("/prices/{symbol}", h.HandleResolvePrice)
}

// ownerID pulls the owner from the query string. Auth is out of scope; the
// owner tag keeps histories separated.
func ownerID(r *http.Request) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return owner
	}
	return "default"
}

// HandleGetHoldings returns current holdings with cached prices and
// unrealized gains.
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	priced, err := h.service.PricedHoldings(ownerID(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]interface{}, 0, len(priced))
	for _, ph := range priced {
		var updatedAt string
		if !ph.PriceUpdatedAt.IsZero() {
			updatedAt = ph.PriceUpdatedAt.UTC().Format(time.RFC3339)
		}
		result = append(result, map[string]interface{}{
			"symbol":                  ph.Symbol,
			"name":                    ph.Name,
			"asset_type":              ph.AssetType,
			"quantity":                ph.Quantity,
			"total_cost":              ph.TotalCost,
			"average_cost":            ph.AverageCost,
			"current_price":           ph.CurrentPrice,
			"current_value":           ph.CurrentValue,
			"unrealized_gain":         ph.UnrealizedGain,
			"unrealized_gain_percent": ph.UnrealizedGainPercent,
			"price_updated_at":        updatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetRealizedGains returns gain records for every completed sale.
func (h *Handler) HandleGetRealizedGains(w http.ResponseWriter, r *http.Request) {
	gains, err := h.service.RealizedGains(ownerID(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]interface{}, 0, len(gains))
	for _, g := range gains {
		result = append(result, map[string]interface{}{
			"sell_transaction_id": g.SellTransactionID,
			"symbol":              g.Symbol,
			"name":                g.Name,
			"sell_date":           g.SellDate.UTC().Format("2006-01-02"),
			"quantity_sold":       g.QuantitySold,
			"sell_price":          g.SellPrice,
			"proceeds":            g.Proceeds,
			"average_cost_basis":  g.AverageCostBasis,
			"cost_basis":          g.CostBasisConsumed,
			"gain":                g.Gain,
			"gain_percent":        g.GainPercent,
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetSummary returns portfolio totals including the tax estimate.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(ownerID(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// HandleResolvePrice resolves one symbol's price on demand. The asset type
// defaults to stock; crypto callers pass ?asset_type=crypto.
func (h *Handler) HandleResolvePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	assetType := domain.AssetType(r.URL.Query().Get("asset_type"))
	switch assetType {
	case domain.AssetStock, domain.AssetCrypto, domain.AssetEquityComp:
	case "":
		assetType = domain.AssetStock
	default:
		h.writeError(w, http.StatusBadRequest, "invalid asset type")
		return
	}

	price, ok := h.service.ResolvePrice(r.Context(), symbol, assetType)
	if !ok {
		// Fall back to the last cached price rather than returning nothing.
		cached, err := h.service.CachedPrice(symbol)
		if err != nil || cached == nil {
			h.writeError(w, http.StatusNotFound, "no source produced a price")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbol":     symbol,
			"price":      cached.Price,
			"stale":      true,
			"updated_at": cached.UpdatedAt.UTC().Format(time.RFC3339),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"price":  price,
	})
}

// HandleUpdatePrices refreshes consensus prices for every held symbol.
func (h *Handler) HandleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	updated, elapsed, err := h.service.UpdatePrices(r.Context(), ownerID(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated":    updated,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
