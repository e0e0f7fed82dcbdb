// Package importer turns broker CSV exports into normalized transactions.
// Firstrade and Charles Schwab export formats are supported; the format is
// detected from the header row. Parsers keep only trade rows: dividends,
// interest, fees and transfers are skipped.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
)

// Format identifies a supported broker export format.
type Format string

const (
	FormatFirstrade Format = "firstrade"
	FormatSchwab    Format = "schwab"
)

// Importer parses broker CSV exports.
type Importer struct {
	log zerolog.Logger
}

// New creates a CSV importer.
func New(log zerolog.Logger) *Importer {
	return &Importer{log: log.With().Str("component", "csv_importer").Logger()}
}

// DetectFormat inspects the header row for characteristic columns.
func DetectFormat(content string) Format {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	firstLine = strings.ToLower(firstLine)

	switch {
	case strings.Contains(firstLine, "fees & comm") || strings.Contains(firstLine, "fees &amp; comm"):
		return FormatSchwab
	case strings.Contains(firstLine, "recordtype") || strings.Contains(firstLine, "tradedate"):
		return FormatFirstrade
	case strings.Contains(firstLine, "action") && strings.Contains(firstLine, "amount") && strings.Contains(firstLine, "description"):
		return FormatSchwab
	default:
		return FormatFirstrade
	}
}

// Parse detects the format and parses content into transactions for ownerID.
// Rows that fail to parse are skipped, not fatal: a broker export mixes
// trades with rows this system has no use for.
func (i *Importer) Parse(content, ownerID string) ([]domain.Transaction, Format, error) {
	format := DetectFormat(content)

	var txs []domain.Transaction
	var err error
	switch format {
	case FormatSchwab:
		txs, err = i.parseSchwab(content, ownerID)
	default:
		txs, err = i.parseFirstrade(content, ownerID)
	}
	if err != nil {
		return nil, format, err
	}

	i.log.Info().
		Str("format", string(format)).
		Int("transactions", len(txs)).
		Msg("Parsed CSV import")

	return txs, format, nil
}

// parseFirstrade handles the Firstrade export:
// Symbol,Quantity,Price,Action,Description,TradeDate,SettledDate,Interest,Amount,Commission,Fee,CUSIP,RecordType
func (i *Importer) parseFirstrade(content, ownerID string) ([]domain.Transaction, error) {
	rows, err := readRecords(content)
	if err != nil {
		return nil, err
	}

	var txs []domain.Transaction
	for _, row := range rows {
		// Only Trade records; Financial records are interest/transfers.
		if strings.TrimSpace(row["RecordType"]) != "Trade" {
			continue
		}

		symbol := strings.ToUpper(strings.TrimSpace(row["Symbol"]))
		dateStr := strings.TrimSpace(row["TradeDate"])
		if symbol == "" || dateStr == "" {
			continue
		}

		date, ok := parseDate(dateStr)
		if !ok {
			continue
		}

		quantity := parseNumber(row["Quantity"])
		price := parseNumber(row["Price"])
		if quantity == 0 || price == 0 {
			continue
		}

		action := strings.ToUpper(strings.TrimSpace(row["Action"]))
		description := strings.TrimSpace(row["Description"])
		txType := classifyAction(action, description)

		txs = append(txs, domain.Transaction{
			OwnerID:      ownerID,
			Symbol:       symbol,
			Name:         firstradeName(symbol, description),
			AssetType:    domain.AssetStock,
			Type:         txType,
			Quantity:     abs(quantity),
			PricePerUnit: price,
			TotalAmount:  abs(quantity) * price,
			Currency:     "USD",
			Date:         date,
			Notes:        description,
		})
	}
	return txs, nil
}

// parseSchwab handles the Schwab export:
// Date, Action, Symbol, Description, Quantity, Price, Fees & Comm, Amount
func (i *Importer) parseSchwab(content, ownerID string) ([]domain.Transaction, error) {
	rows, err := readRecords(content)
	if err != nil {
		return nil, err
	}

	var txs []domain.Transaction
	for _, row := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(row["Symbol"]))
		dateStr := strings.TrimSpace(row["Date"])
		action := strings.ToUpper(strings.TrimSpace(row["Action"]))
		if symbol == "" || dateStr == "" || action == "" {
			continue
		}

		// Schwab sometimes dates rows "06/13/2024 as of 06/10/2024";
		// the first date is the effective one.
		if idx := strings.Index(dateStr, " as of "); idx >= 0 {
			dateStr = strings.TrimSpace(dateStr[:idx])
		}
		date, ok := parseDate(dateStr)
		if !ok {
			continue
		}

		quantity := parseNumber(row["Quantity"])
		price := parseNumber(row["Price"])
		amount := parseNumber(row["Amount"])
		description := strings.TrimSpace(row["Description"])

		var txType domain.TxType
		switch action {
		case "SELL", "SELL SHORT", "SELL TO CLOSE":
			txType = domain.TxSell
		case "BUY", "BUY TO OPEN", "BUY TO COVER":
			txType = domain.TxBuy
		case "REINVEST SHARES", "REINVEST DIVIDEND":
			// Dividend reinvestment is a buy; quantity may be implied by
			// the cash amount.
			txType = domain.TxBuy
			if quantity == 0 && price > 0 && amount != 0 {
				quantity = abs(amount) / price
			}
		default:
			// Dividends, fees, interest, tax adjustments.
			continue
		}

		if quantity == 0 || price == 0 {
			continue
		}

		txs = append(txs, domain.Transaction{
			OwnerID:      ownerID,
			Symbol:       symbol,
			Name:         description,
			AssetType:    domain.AssetStock,
			Type:         txType,
			Quantity:     abs(quantity),
			PricePerUnit: price,
			TotalAmount:  abs(quantity) * price,
			Currency:     "USD",
			Date:         date,
			Notes:        description,
		})
	}
	return txs, nil
}

// readRecords parses CSV content into header-keyed rows.
func readRecords(content string) ([]map[string]string, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1 // broker exports pad rows inconsistently
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row: skip it, keep the rest of the file.
			continue
		}
		row := make(map[string]string, len(header))
		for i, field := range record {
			if i < len(header) {
				row[header[i]] = field
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var dateFormats = []string{"2006-01-02", "01/02/2006", "01-02-2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseNumber strips currency formatting: "$1,234.50" and "(123.45)" for
// negatives.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "(", "-")
	s = strings.ReplaceAll(s, ")", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func classifyAction(action, description string) domain.TxType {
	lowerAction := strings.ToLower(action)
	lowerDesc := strings.ToLower(description)
	switch {
	case strings.Contains(lowerAction, "sell"):
		return domain.TxSell
	case strings.Contains(lowerAction, "buy"):
		return domain.TxBuy
	case strings.Contains(lowerDesc, "sell") || strings.Contains(lowerDesc, "sold"):
		return domain.TxSell
	default:
		return domain.TxBuy
	}
}

// firstradeName extracts a short display name from the trade description,
// dropping boilerplate words.
func firstradeName(symbol, description string) string {
	if description == "" {
		return symbol
	}
	var parts []string
	for _, word := range strings.Fields(description) {
		if len(parts) == 3 {
			break
		}
		switch strings.ToUpper(word) {
		case "UNSOLICITED", "COMMON", "STOCK", "INC", "CORP", "LTD":
			continue
		}
		parts = append(parts, word)
	}
	if len(parts) == 0 {
		return symbol
	}
	return strings.Join(parts, " ")
}
