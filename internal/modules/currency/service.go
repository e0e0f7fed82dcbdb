// Package currency converts foreign-denominated amounts into the portfolio's
// base currency.
package currency

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// RateSource fetches a live exchange rate for one currency pair.
type RateSource interface {
	GetRate(fromCurrency, toCurrency string) (float64, error)
}

// Approximate rates used when the live API is unreachable. All relative to USD.
var fallbackRatesToUSD = map[string]float64{
	"TWD": 0.031,
	"EUR": 1.1,
	"GBP": 1.25,
	"JPY": 0.0067,
	"HKD": 0.128,
}

// Service converts amounts into the configured base currency with a live
// source and hardcoded fallbacks.
type Service struct {
	source       RateSource
	baseCurrency string
	log          zerolog.Logger
}

// NewService creates a currency conversion service. source may be nil, in
// which case only fallback rates are used.
func NewService(source RateSource, baseCurrency string, log zerolog.Logger) *Service {
	return &Service{
		source:       source,
		baseCurrency: strings.ToUpper(baseCurrency),
		log:          log.With().Str("service", "currency").Logger(),
	}
}

// BaseCurrency returns the currency all portfolio values are reported in.
func (s *Service) BaseCurrency() string {
	return s.baseCurrency
}

// ToBase converts amount from fromCurrency into the base currency.
// Unknown currencies pass through unconverted rather than failing the whole
// portfolio valuation.
func (s *Service) ToBase(amount float64, fromCurrency string) float64 {
	fromCurrency = normalizeCurrency(fromCurrency)
	if fromCurrency == s.baseCurrency || fromCurrency == "" {
		return amount
	}

	if s.source != nil {
		rate, err := s.source.GetRate(fromCurrency, s.baseCurrency)
		if err == nil && rate > 0 {
			return amount * rate
		}
		s.log.Warn().
			Err(err).
			Str("from", fromCurrency).
			Str("to", s.baseCurrency).
			Msg("Live rate fetch failed, trying fallback rate")
	}

	if rate, ok := s.fallbackRate(fromCurrency); ok {
		s.log.Warn().
			Str("from", fromCurrency).
			Str("to", s.baseCurrency).
			Float64("rate", rate).
			Msg("Using hardcoded fallback rate")
		return amount * rate
	}

	s.log.Warn().
		Str("from", fromCurrency).
		Str("to", s.baseCurrency).
		Msg("No rate available, passing amount through unconverted")
	return amount
}

// Rate returns the conversion rate between two currencies.
func (s *Service) Rate(fromCurrency, toCurrency string) (float64, error) {
	fromCurrency = normalizeCurrency(fromCurrency)
	toCurrency = normalizeCurrency(toCurrency)
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	if s.source != nil {
		rate, err := s.source.GetRate(fromCurrency, toCurrency)
		if err == nil && rate > 0 {
			return rate, nil
		}
	}

	// Fallbacks are only kept relative to USD; derive cross rates through it.
	if toCurrency == "USD" {
		if rate, ok := s.fallbackRate(fromCurrency); ok {
			return rate, nil
		}
	}
	if fromCurrency == "USD" {
		if rate, ok := s.fallbackRate(toCurrency); ok && rate > 0 {
			return 1.0 / rate, nil
		}
	}

	return 0, fmt.Errorf("no rate available for %s/%s", fromCurrency, toCurrency)
}

func (s *Service) fallbackRate(fromCurrency string) (float64, bool) {
	if s.baseCurrency != "USD" {
		return 0, false
	}
	rate, ok := fallbackRatesToUSD[fromCurrency]
	return rate, ok
}

// normalizeCurrency canonicalizes currency codes. NTD is a common alias for
// the Taiwan dollar.
func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "NTD" {
		return "TWD"
	}
	return code
}
