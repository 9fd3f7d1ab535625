package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/checkout"
	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/redisx"
)

// StatusCache is the read-through order status cache; *redisx.StatusCache implements it.
// Status changes are written by checkout.Service; the handler only fills misses.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, orderID, status string, updatedAt time.Time) error
}

type OrdersHandler struct {
	Orders *checkout.Service
	Cache  StatusCache // optional
	Log    *zap.Logger
}

type checkoutReq struct {
	Shipping      domain.ShippingInfo `json:"shipping"`
	PaymentMethod string              `json:"payment_method"`
}

type transitionReq struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

type paymentProofReq struct {
	URL string `json:"url"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/carts/{cartID}/checkout", h.checkout)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/orders/{orderID}/status", h.getStatus)
	r.Patch("/orders/{orderID}/status", h.transition)
	r.Post("/orders/{orderID}/payment-proof", h.paymentProof)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Checkout(ctx, checkout.Request{
		CartID:        chi.URLParam(r, "cartID"),
		UserID:        userID(r),
		Shipping:      req.Shipping,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		if s, ok, err := h.Cache.Get(ctx, orderID); err == nil && ok {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// 2) fallback DB
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, redisx.CachedStatus{Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Transition(ctx, chi.URLParam(r, "orderID"), domain.Status(req.Status), req.TrackingNumber)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) paymentProof(w http.ResponseWriter, r *http.Request) {
	var req paymentProofReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UploadPaymentProof(ctx, chi.URLParam(r, "orderID"), userID(r), req.URL)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o domain.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(ctx, o.ID, string(o.Status), o.UpdatedAt); err != nil && h.Log != nil {
		h.Log.Debug("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
