// Package pricecache persists the last successfully resolved price per
// symbol. Resolution failures never clear an entry: a stale price beats a
// missing one for portfolio views.
package pricecache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS prices (
	symbol TEXT PRIMARY KEY,
	price REAL NOT NULL CHECK (price > 0),
	method TEXT NOT NULL,
	sources TEXT NOT NULL DEFAULT '',
	low_confidence INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`

// CachedPrice is one stored consensus price with its provenance.
type CachedPrice struct {
	Symbol        string
	Price         float64
	Method        domain.ConsensusMethod
	Sources       []string
	LowConfidence bool
	UpdatedAt     time.Time
}

// Repository stores consensus prices in the cache database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a price cache repository and ensures the schema exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize price cache schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "pricecache").Logger(),
	}, nil
}

// Upsert stores or replaces the price for a symbol.
func (r *Repository) Upsert(p domain.ConsensusPrice) error {
	query := `
		INSERT INTO prices (symbol, price, method, sources, low_confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			method = excluded.method,
			sources = excluded.sources,
			low_confidence = excluded.low_confidence,
			updated_at = excluded.updated_at
	`
	lowConfidence := 0
	if p.LowConfidence {
		lowConfidence = 1
	}
	resolvedAt := p.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(query,
		p.Symbol,
		p.Price,
		string(p.Method),
		strings.Join(p.Sources, ","),
		lowConfidence,
		resolvedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert price for %s: %w", p.Symbol, err)
	}
	return nil
}

// Get returns the cached price for a symbol, or nil when none is stored.
func (r *Repository) Get(symbol string) (*CachedPrice, error) {
	row := r.db.QueryRow(
		"SELECT symbol, price, method, sources, low_confidence, updated_at FROM prices WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)),
	)

	p, err := scanPrice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}
	return p, nil
}

// GetAll returns all cached prices keyed by symbol.
func (r *Repository) GetAll() (map[string]CachedPrice, error) {
	rows, err := r.db.Query("SELECT symbol, price, method, sources, low_confidence, updated_at FROM prices")
	if err != nil {
		return nil, fmt.Errorf("failed to load price cache: %w", err)
	}
	defer rows.Close()

	result := make(map[string]CachedPrice)
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cached price: %w", err)
		}
		result[p.Symbol] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price cache: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrice(row rowScanner) (*CachedPrice, error) {
	var p CachedPrice
	var method, sources string
	var lowConfidence int
	var updatedAt int64
	if err := row.Scan(&p.Symbol, &p.Price, &method, &sources, &lowConfidence, &updatedAt); err != nil {
		return nil, err
	}
	p.Method = domain.ConsensusMethod(method)
	if sources != "" {
		p.Sources = strings.Split(sources, ",")
	}
	p.LowConfidence = lowConfidence == 1
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
