// Package transactions persists the append-only transaction history.
package transactions

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
)

// schema creates the transactions table. Records are append-only: the core
// never updates a row, and deletion exists only for the CRUD surface.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	asset_type TEXT NOT NULL,
	tx_type TEXT NOT NULL CHECK (tx_type IN ('BUY', 'SELL')),
	quantity REAL NOT NULL CHECK (quantity > 0),
	price_per_unit REAL NOT NULL CHECK (price_per_unit > 0),
	total_amount REAL NOT NULL,
	currency TEXT NOT NULL DEFAULT 'USD',
	tx_date INTEGER NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_owner ON transactions(owner_id, tx_date);
CREATE INDEX IF NOT EXISTS idx_transactions_owner_symbol ON transactions(owner_id, symbol, tx_date);
`

// txColumns is the scan order shared by every query; keep in sync with scanRows.
const txColumns = `id, owner_id, symbol, name, asset_type, tx_type, quantity, price_per_unit, total_amount, currency, tx_date, notes`

// Repository handles transaction database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a transaction repository and ensures the schema exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize transactions schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}, nil
}

// Create appends a new transaction. The id is generated when absent and the
// total amount is always derived from quantity and price.
func (r *Repository) Create(tx domain.Transaction) (domain.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Symbol = tx.NormalizedSymbol()
	tx.TotalAmount = tx.Quantity * tx.PricePerUnit
	if tx.Currency == "" {
		tx.Currency = "USD"
	}

	query := `
		INSERT INTO transactions
		(id, owner_id, symbol, name, asset_type, tx_type, quantity,
		 price_per_unit, total_amount, currency, tx_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		tx.ID,
		tx.OwnerID,
		tx.Symbol,
		tx.Name,
		string(tx.AssetType),
		string(tx.Type),
		tx.Quantity,
		tx.PricePerUnit,
		tx.TotalAmount,
		tx.Currency,
		tx.Date.Unix(),
		tx.Notes,
		time.Now().Unix(),
	)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	r.log.Info().
		Str("symbol", tx.Symbol).
		Str("type", string(tx.Type)).
		Float64("quantity", tx.Quantity).
		Msg("Transaction recorded")

	return tx, nil
}

// ListByOwner returns all of an owner's transactions ordered by transaction
// date, with rowid breaking ties so replay order matches insertion order.
func (r *Repository) ListByOwner(ownerID string) ([]domain.Transaction, error) {
	query := "SELECT " + txColumns + " FROM transactions WHERE owner_id = ? ORDER BY tx_date ASC, rowid ASC"
	rows, err := r.db.Query(query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ListByOwnerAndSymbol returns an owner's transactions for one symbol, date
// ordered.
func (r *Repository) ListByOwnerAndSymbol(ownerID, symbol string) ([]domain.Transaction, error) {
	query := "SELECT " + txColumns + " FROM transactions WHERE owner_id = ? AND symbol = ? ORDER BY tx_date ASC, rowid ASC"
	rows, err := r.db.Query(query, ownerID, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for symbol: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ListOwners returns every owner id with at least one transaction.
func (r *Repository) ListOwners() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT owner_id FROM transactions ORDER BY owner_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owners: %w", err)
	}
	return owners, nil
}

// Delete removes a transaction by id. Part of the surrounding CRUD surface,
// not used by the accounting core.
func (r *Repository) Delete(ownerID, id string) error {
	result, err := r.db.Exec("DELETE FROM transactions WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var assetType, txType string
		var txDate int64
		if err := rows.Scan(
			&tx.ID,
			&tx.OwnerID,
			&tx.Symbol,
			&tx.Name,
			&assetType,
			&txType,
			&tx.Quantity,
			&tx.PricePerUnit,
			&tx.TotalAmount,
			&tx.Currency,
			&txDate,
			&tx.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.AssetType = domain.AssetType(assetType)
		tx.Type = domain.TxType(txType)
		tx.Date = time.Unix(txDate, 0).UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}
