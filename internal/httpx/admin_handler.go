package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/sweeper"
)

type Sweeper interface {
	RunOnce(ctx context.Context) (sweeper.Report, error)
}

type AdminHandler struct {
	Sweeper Sweeper
	Log     *zap.Logger
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/reservations/sweep", h.sweep)
}

// sweep runs the same pass as the background sweeper and reports what it freed.
func (h *AdminHandler) sweep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Sweeper.RunOnce(r.Context())
	if errors.Is(err, sweeper.ErrSweepInProgress) {
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
