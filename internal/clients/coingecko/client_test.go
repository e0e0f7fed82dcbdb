package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwchen/keeper/internal/prices"
	"github.com/jwchen/keeper/internal/retry"
)

func TestCoinID(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BTC", "bitcoin"},
		{"btc", "bitcoin"},
		{" ETH ", "ethereum"},
		{"AVAX", "avalanche-2"},
		{"PEPE", "pepe"}, // unmapped tickers fall back to the lowercased symbol
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, CoinID(tt.symbol))
		})
	}
}

func TestFetchReturnsQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `{"bitcoin":{"usd":43250.17}}`)
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.baseURL = srv.URL

	quote, err := c.Fetch(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 43250.17, quote.Price)
	assert.Equal(t, "BTC", quote.Symbol)
}

func TestFetchUnknownCoinIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.baseURL = srv.URL

	_, err := c.Fetch(context.Background(), "NOPE")
	assert.ErrorIs(t, err, prices.ErrNoData)
}

func TestFetchRateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.baseURL = srv.URL

	_, err := c.Fetch(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}
