// Package coingecko is the CoinGecko simple-price client, the crypto
// fallback source. CoinGecko keys coins by slug rather than ticker, so a
// small translation table maps the common tickers; unknown tickers are tried
// lowercased, which matches many long-tail slugs.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/prices"
	"github.com/jwchen/keeper/internal/retry"
)

const (
	// SourceID is the stable key for rate limiting and priority order.
	SourceID = "coingecko"

	baseURL        = "https://api.coingecko.com/api/v3/simple/price"
	requestTimeout = 8 * time.Second
)

// coinIDs maps ticker symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"LTC":   "litecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"BCH":   "bitcoin-cash",
	"XLM":   "stellar",
	"DOGE":  "dogecoin",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
}

// CoinID translates a ticker to the CoinGecko id used in API calls.
func CoinID(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if id, ok := coinIDs[upper]; ok {
		return id
	}
	return strings.ToLower(upper)
}

// Client fetches crypto prices from the CoinGecko simple-price endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

// New creates a new CoinGecko client.
func New(log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		log:        log.With().Str("client", SourceID).Logger(),
	}
}

// ID implements prices.Source.
func (c *Client) ID() string { return SourceID }

// Supports implements prices.Source: crypto only.
func (c *Client) Supports(assetType domain.AssetType) bool {
	return assetType == domain.AssetCrypto
}

// Fetch implements prices.Source.
func (c *Client) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	coinID := CoinID(symbol)

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, &retry.StatusError{Status: resp.StatusCode, Msg: "coingecko price"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse response: %w", err)
	}

	price := parsed[coinID]["usd"]
	if price <= 0 {
		return domain.Quote{}, prices.ErrNoData
	}

	return domain.Quote{
		Symbol:     symbol,
		SourceID:   SourceID,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}
