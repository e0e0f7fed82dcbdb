// Package binance is the Binance spot ticker client, the primary crypto
// price source. Symbols are quoted against USDT.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/prices"
	"github.com/jwchen/keeper/internal/retry"
)

const (
	// SourceID is the stable key for rate limiting and priority order.
	SourceID = "binance"

	tickerURL      = "https://api.binance.com/api/v3/ticker/price"
	requestTimeout = 8 * time.Second
)

// Client fetches crypto prices from the Binance public ticker endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

// New creates a new Binance client.
func New(log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    tickerURL,
		log:        log.With().Str("client", SourceID).Logger(),
	}
}

// ID implements prices.Source.
func (c *Client) ID() string { return SourceID }

// Supports implements prices.Source: crypto only.
func (c *Client) Supports(assetType domain.AssetType) bool {
	return assetType == domain.AssetCrypto
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Fetch implements prices.Source. The portfolio symbol (BTC) is quoted as
// the BTCUSDT pair.
func (c *Client) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	pair := strings.ToUpper(strings.TrimSpace(symbol)) + "USDT"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?symbol="+pair, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("ticker request failed: %w", err)
	}
	defer resp.Body.Close()

	// Unknown trading pair comes back as 400; that is a no-data outcome,
	// not a transport failure.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, prices.ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, &retry.StatusError{Status: resp.StatusCode, Msg: "binance ticker"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed tickerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse response: %w", err)
	}

	price, err := strconv.ParseFloat(parsed.Price, 64)
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
