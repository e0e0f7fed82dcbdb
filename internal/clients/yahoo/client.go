// Package yahoo is the Yahoo Finance quote client. It is the primary stock
// price source: free, fast and usually accurate, but occasionally missing
// less-liquid listings.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/prices"
	"github.com/jwchen/keeper/internal/retry"
)

const (
	// SourceID is the stable key for rate limiting and priority order.
	SourceID = "yahoo"

	quoteURL       = "https://query1.finance.yahoo.com/v7/finance/quote"
	requestTimeout = 8 * time.Second
)

// Client fetches quotes from the Yahoo Finance query API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

// New creates a new Yahoo Finance client.
func New(log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    quoteURL,
		log:        log.With().Str("client", SourceID).Logger(),
	}
}

// ID implements prices.Source.
func (c *Client) ID() string { return SourceID }

// Supports implements prices.Source: Yahoo quotes equities only.
func (c *Client) Supports(assetType domain.AssetType) bool {
	return assetType == domain.AssetStock
}

// LookupSymbols returns the Yahoo symbols to try for a portfolio symbol, in
// order. Four-digit numeric tickers are Taiwan listings and get the .TW
// suffix first, with the raw symbol as fallback.
func LookupSymbols(symbol string) []string {
	if isTaiwanTicker(symbol) {
		return []string{symbol + ".TW", symbol}
	}
	return []string{symbol}
}

func isTaiwanTicker(symbol string) bool {
	if len(symbol) != 4 {
		return false
	}
	for _, r := range symbol {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Fetch implements prices.Source.
func (c *Client) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	for _, candidate := range LookupSymbols(symbol) {
		price, err := c.fetchPrice(ctx, candidate)
		if err != nil {
			return domain.Quote{}, err
		}
		if price > 0 {
			return domain.Quote{
				Symbol:     symbol,
				SourceID:   SourceID,
				Price:      price,
				ObservedAt: time.Now().UTC(),
			}, nil
		}
	}
	return domain.Quote{}, prices.ErrNoData
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string   `json:"symbol"`
			RegularMarketPrice *float64 `json:"regularMarketPrice"`
			CurrentPrice       *float64 `json:"currentPrice"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// fetchPrice returns the quoted price for one Yahoo symbol, or 0 when the
// response carries no usable price.
func (c *Client) fetchPrice(ctx context.Context, yahooSymbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbols", yahooSymbol)
	params.Set("fields", "symbol,regularMarketPrice,currentPrice")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	// Yahoo blocks default Go user agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &retry.StatusError{Status: resp.StatusCode, Msg: "yahoo quote"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.QuoteResponse.Error != nil {
		return 0, fmt.Errorf("yahoo API error: %v", parsed.QuoteResponse.Error)
	}
	if len(parsed.QuoteResponse.Result) == 0 {
		return 0, nil
	}

	result := parsed.QuoteResponse.Result[0]
	if result.CurrentPrice != nil && *result.CurrentPrice > 0 {
		return *result.CurrentPrice, nil
	}
	if result.RegularMarketPrice != nil && *result.RegularMarketPrice > 0 {
		return *result.RegularMarketPrice, nil
	}
	return 0, nil
}
