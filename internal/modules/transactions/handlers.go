package transactions

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/domain"
	"github.com/jwchen/keeper/internal/ledger"
	"github.com/jwchen/keeper/internal/modules/importer"
)

// maxImportSize bounds CSV uploads. Broker exports are small; anything bigger
// is a mistake.
const maxImportSize = 5 << 20

// Handler serves the transaction CRUD and CSV import API.
type Handler struct {
	repo     *Repository
	importer *importer.Importer
	log      zerolog.Logger
}

// NewHandler creates a transactions handler.
func NewHandler(repo *Repository, imp *importer.Importer, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		importer: imp,
		log:      log.With().Str("handler", "transactions").Logger(),
	}
}

// Routes mounts the transaction endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/transactions", h.HandleList)
	r.Post("/transactions", h.HandleCreate)
	r.Delete("/transactions/{id}", h.HandleDelete)
	r.Post("/import/preview", h.HandleImportPreview)
	r.Post("/import/csv", h.HandleImportCSV)
}

func ownerID(r *http.Request) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return owner
	}
	return "default"
}

// transactionRequest is the JSON body for creating a transaction.
type transactionRequest struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	AssetType    string  `json:"asset_type"`
	Type         string  `json:"type"`
	Quantity     float64 `json:"quantity"`
	PricePerUnit float64 `json:"price_per_unit"`
	Currency     string  `json:"currency"`
	Date         string  `json:"date"`
	Notes        string  `json:"notes"`
}

func (req *transactionRequest) toDomain(owner string) (domain.Transaction, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", req.Date)
	}

	assetType := domain.AssetType(strings.ToLower(req.AssetType))
	switch assetType {
	case domain.AssetStock, domain.AssetCrypto, domain.AssetEquityComp:
	case "":
		assetType = domain.AssetStock
	default:
		return domain.Transaction{}, fmt.Errorf("invalid asset type %q", req.AssetType)
	}

	return domain.Transaction{
		OwnerID:      owner,
		Symbol:       req.Symbol,
		Name:         req.Name,
		AssetType:    assetType,
		Type:         domain.TxType(strings.ToUpper(req.Type)),
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		TotalAmount:  req.Quantity * req.PricePerUnit,
		Currency:     req.Currency,
		Date:         date,
		Notes:        req.Notes,
	}, nil
}

// HandleCreate validates and appends one transaction. SELLs exceeding the
// current holding are rejected before anything is written.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	owner := ownerID(r)
	candidate, err := req.toDomain(owner)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.repo.ListByOwner(owner)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := ledger.ValidateTransaction(existing, candidate); err != nil {
		var insuff *ledger.InsufficientHoldingsError
		if errors.As(err, &insuff) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.repo.Create(candidate)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, toResponse(created))
}

// HandleList returns the owner's transactions in replay order. An optional
// symbol filter narrows the result.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	var txs []domain.Transaction
	var err error
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		txs, err = h.repo.ListByOwnerAndSymbol(owner, symbol)
	} else {
		txs, err = h.repo.ListByOwner(owner)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]interface{}, 0, len(txs))
	for _, tx := range txs {
		result = append(result, toResponse(tx))
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleDelete removes one transaction by id, scoped to the owner.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Delete(ownerID(r), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleImportPreview parses an uploaded CSV and returns the transactions it
// would create, without writing anything.
func (h *Handler) HandleImportPreview(w http.ResponseWriter, r *http.Request) {
	content, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	txs, format, err := h.importer.Parse(content, ownerID(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	preview := make([]map[string]interface{}, 0, len(txs))
	for _, tx := range txs {
		preview = append(preview, toResponse(tx))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"format":       format,
		"count":        len(txs),
		"transactions": preview,
	})
}

// HandleImportCSV parses an uploaded CSV and appends every parseable
// transaction. Rows that fail ledger validation (oversells against the
// combined history) are reported, not imported.
func (h *Handler) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	content, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	owner := ownerID(r)
	txs, format, err := h.importer.Parse(content, owner)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.repo.ListByOwner(owner)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	imported := 0
	var skipped []string
	for _, tx := range txs {
		if err := ledger.ValidateTransaction(existing, tx); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s %s on %s: %v",
				tx.Type, tx.Symbol, tx.Date.Format("2006-01-02"), err))
			continue
		}
		created, err := h.repo.Create(tx)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		existing = append(existing, created)
		imported++
	}

	h.log.Info().
		Str("format", string(format)).
		Int("imported", imported).
		Int("skipped", len(skipped)).
		Msg("CSV import completed")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"format":   format,
		"imported": imported,
		"skipped":  skipped,
	})
}

// readUpload extracts CSV content from either a multipart "file" field or a
// raw request body.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "missing file upload")
			return "", false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "failed to read upload")
			return "", false
		}
		return string(data), true
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return "", false
	}
	if len(data) == 0 {
		h.writeError(w, http.StatusBadRequest, "empty CSV upload")
		return "", false
	}
	return string(data), true
}

func toResponse(tx domain.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"id":             tx.ID,
		"symbol":         tx.Symbol,
		"name":           tx.Name,
		"asset_type":     tx.AssetType,
		"type":           tx.Type,
		"quantity":       tx.Quantity,
		"price_per_unit": tx.PricePerUnit,
		"total_amount":   tx.TotalAmount,
		"currency":       tx.Currency,
		"date":           tx.Date.UTC().Format("2006-01-02"),
		"notes":          tx.Notes,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
