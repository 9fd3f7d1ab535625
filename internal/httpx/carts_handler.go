package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
)

type CartsHandler struct {
	Carts *reservation.Service
	Log   *zap.Logger
}

type addItemReq struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartsHandler) Register(r chi.Router) {
	r.Post("/carts", h.createOrGet)
	r.Get("/carts/{cartID}", h.get)
	r.Post("/carts/{cartID}/items", h.addItem)
	r.Delete("/carts/{cartID}/items", h.clear)
	r.Patch("/carts/{cartID}/items/{variantID}", h.updateItem)
	r.Delete("/carts/{cartID}/items/{variantID}", h.removeItem)
	r.Post("/carts/{cartID}/merge", h.merge)
}

func (h *CartsHandler) createOrGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Carts.CreateOrGetCart(ctx, userID(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResp(c))
}

func (h *CartsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.GetCart(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResp(c))
}

func (h *CartsHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VariantID == "" {
		writeError(w, h.Log, domain.Validation("variant_id is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Carts.AddItem(ctx, chi.URLParam(r, "cartID"), req.VariantID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartItemResp(it))
}

func (h *CartsHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Carts.UpdateQuantity(ctx, chi.URLParam(r, "cartID"), chi.URLParam(r, "variantID"), req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartItemResp(it))
}

func (h *CartsHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.RemoveItem(ctx, chi.URLParam(r, "cartID"), chi.URLParam(r, "variantID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartsHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.ClearCart(ctx, chi.URLParam(r, "cartID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartsHandler) merge(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, h.Log, domain.Validation("%s header is required to merge", headerUserID))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Carts.MergeGuestCart(ctx, chi.URLParam(r, "cartID"), uid)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResp(c))
}
