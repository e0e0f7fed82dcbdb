package currency

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler serves the currency conversion API.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a currency handler.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "currency").Logger(),
	}
}

// Routes mounts the currency endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/currency-conversion/{from}/{to}/{amount}", h.HandleConvert)
}

// HandleConvert converts an amount between two currencies, deriving cross
// rates through USD when only fallback rates are available.
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	amount, err := strconv.ParseFloat(chi.URLParam(r, "amount"), 64)
	if err != nil || amount < 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be a non-negative number")
		return
	}

	rate, err := h.service.Rate(from, to)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":      normalizeCurrency(from),
		"to":        normalizeCurrency(to),
		"rate":      rate,
		"amount":    amount,
		"converted": amount * rate,
	})
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
