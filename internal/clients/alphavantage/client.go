// Package alphavantage is the Alpha Vantage GLOBAL_QUOTE client. The free
// tier allows very few calls per minute, so this source is marked expensive
// and only consulted when the cheaper stock sources come up short.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/prices"
	"github.com/jwchen/keeper/internal/retry"
)

const (
	// SourceID is the stable key for rate limiting and priority order.
	SourceID = "alphavantage"

	baseURL        = "https://www.alphavantage.co/query"
	requestTimeout = 8 * time.Second
)

// Client fetches stock quotes from the Alpha Vantage API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        zerolog.Logger
}

// New creates a new Alpha Vantage client. An empty apiKey falls back to the
// public demo key, which only serves a handful of symbols.
func New(apiKey string, log zerolog.Logger) *Client {
	if apiKey == "" {
		apiKey = "demo"
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log.With().Str("client", SourceID).Logger(),
	}
}

// ID implements prices.Source.
func (c *Client) ID() string { return SourceID }

// Supports implements prices.Source: stocks only.
func (c *Client) Supports(assetType domain.AssetType) bool {
	return assetType == domain.AssetStock
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
}

// Fetch implements prices.Source.
func (c *Client) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, &retry.StatusError{Status: resp.StatusCode, Msg: "alphavantage quote"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed globalQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse response: %w", err)
	}

	// Alpha Vantage reports quota exhaustion as HTTP 200 with a Note.
	if parsed.Note != "" {
		return domain.Quote{}, &retry.StatusError{Status: http.StatusTooManyRequests, Msg: parsed.Note}
	}

	raw := parsed.GlobalQuote["05. price"]
	if raw == "" || raw == "0" {
		return domain.Quote{}, prices.ErrNoData
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return domain.Quote{}, prices.ErrNoData
	}

	return domain.Quote{
		Symbol:     symbol,
		SourceID:   SourceID,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}
