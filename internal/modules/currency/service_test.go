package currency

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRateSource struct {
	rates map[string]float64
	err   error
}

func (f *fakeRateSource) GetRate(from, to string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	rate, ok := f.rates[from+":"+to]
	if !ok {
		return 0, errors.New("rate not found")
	}
	return rate, nil
}

func TestToBaseSameCurrency(t *testing.T) {
	svc := NewService(nil, "USD", zerolog.Nop())
	assert.Equal(t, 100.0, svc.ToBase(100, "USD"))
	assert.Equal(t, 100.0, svc.ToBase(100, "usd"))
}

func TestToBaseLiveRate(t *testing.T) {
	source := &fakeRateSource{rates: map[string]float64{"EUR:USD": 1.08}}
	svc := NewService(source, "USD", zerolog.Nop())
	assert.InDelta(t, 108.0, svc.ToBase(100, "EUR"), 1e-9)
}

func TestToBaseFallbackRate(t *testing.T) {
	source := &fakeRateSource{err: errors.New("api down")}
	svc := NewService(source, "USD", zerolog.Nop())

	assert.InDelta(t, 3.1, svc.ToBase(100, "TWD"), 1e-9)
	assert.InDelta(t, 3.1, svc.ToBase(100, "NTD"), 1e-9, "NTD aliases TWD")
}

func TestToBaseUnknownCurrencyPassesThrough(t *testing.T) {
	svc := NewService(nil, "USD", zerolog.Nop())
	assert.Equal(t, 100.0, svc.ToBase(100, "XYZ"))
}

func TestRateCrossThroughUSD(t *testing.T) {
	svc := NewService(nil, "USD", zerolog.Nop())

	rate, err := svc.Rate("EUR", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 1.1, rate, 1e-9)

	rate, err = svc.Rate("USD", "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/1.1, rate, 1e-9)

	_, err = svc.Rate("EUR", "GBP")
	assert.Error(t, err, "cross rates need a live source")
}
