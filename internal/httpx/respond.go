package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

const headerUserID = "X-User-Id"

type errorResp struct {
	Error string `json:"error"`
}

type insufficientStockResp struct {
	Error     string `json:"error"`
	VariantID string `json:"variant_id"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
	InCart    int    `json:"in_cart"`
	MaxCanAdd int    `json:"max_can_add"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return false
	}
	return true
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerUserID))
}

// writeError maps domain errors to statuses. Anything unrecognised is logged and hidden
// behind a generic 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var short *domain.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, insufficientStockResp{
			Error:     "insufficient stock",
			VariantID: short.VariantID,
			Available: short.Available,
			Requested: short.Requested,
			InCart:    short.InCart,
			MaxCanAdd: short.MaxCanAdd,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, domain.ErrNoStockConfigured),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{Error: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResp{Error: "forbidden"})
	default:
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}
