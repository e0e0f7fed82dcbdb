// Package exchangerate provides a client for exchangerate-api.com with an
// in-memory cache. Rates move slowly; a short TTL keeps us well inside the
// free tier without meaningfully stale conversions.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const rateTTL = 1 * time.Hour

// Client for exchangerate-api.com
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedRate
}

type cachedRate struct {
	rate      float64
	fetchedAt time.Time
}

// NewClient creates a new exchangerate-api.com client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://api.exchangerate-api.com/v4/latest",
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "exchangerate-api").Logger(),
		cache:   make(map[string]cachedRate),
	}
}

// GetRate fetches the rate for one currency pair. If the API fails, a stale
// cached rate is returned when available: stale data beats no data.
func (c *Client) GetRate(fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	cacheKey := fromCurrency + ":" + toCurrency
	if rate, ok := c.cached(cacheKey, rateTTL); ok {
		return rate, nil
	}

	rate, err := c.fetch(fromCurrency, toCurrency)
	if err != nil {
		if stale, ok := c.cached(cacheKey, 0); ok {
			c.log.Warn().
				Err(err).
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Float64("rate", stale).
				Msg("API failed, using stale cached rate")
			return stale, nil
		}
		return 0, err
	}

	c.mu.Lock()
	c.cache[cacheKey] = cachedRate{rate: rate, fetchedAt: time.Now()}
	c.mu.Unlock()

	c.log.Debug().
		Str("from", fromCurrency).
		Str("to", toCurrency).
		Float64("rate", rate).
		Msg("Fetched rate")

	return rate, nil
}

func (c *Client) fetch(fromCurrency, toCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)

	resp, err := c.client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, exists := result.Rates[toCurrency]
	if !exists {
		return 0, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}
	return rate, nil
}

// cached returns the cache entry for key. maxAge 0 means any age is accepted.
func (c *Client) cached(key string, maxAge time.Duration) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return 0, false
	}
	if maxAge > 0 && time.Since(entry.fetchedAt) > maxAge {
		return 0, false
	}
	return entry.rate, true
}
