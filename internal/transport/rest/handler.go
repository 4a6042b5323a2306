// Package rest provides HTTP handlers for cart, checkout and order operations.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/idempotency"
	"github.com/bangazon/checkout/internal/service"
	"github.com/bangazon/checkout/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	retryAfterSecs   = 1
)

// IdempotencyStore remembers checkout responses per user and Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, userID uuid.UUID, key string) (*idempotency.Response, error)
	Complete(ctx context.Context, userID uuid.UUID, key string, resp idempotency.Response) error
	Release(ctx context.Context, userID uuid.UUID, key string) error
}

type Handler struct {
	service  service.CheckoutService
	idem     IdempotencyStore
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler. idem may be nil, which disables Idempotency-Key support.
func NewHandler(service service.CheckoutService, idem IdempotencyStore, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		idem:     idem,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

type AddToCartRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

type CheckoutRequest struct {
	PaymentTypeID uuid.UUID `json:"payment_type_id" validate:"required"`
}

// RegisterRoutes registers the HTTP routes of the checkout service.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(web.AuthMiddleware)
		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddToCart)
			r.Delete("/items/{id}", h.RemoveFromCart)
		})
		r.Route("/api/v1/orders", func(r chi.Router) {
			r.Get("/", h.FindOrdersByUserID)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.FindByID)
				r.Post("/checkout", h.Checkout)
			})
		})
	})
	r.Get("/api/v1/products/{id}/availability", h.ProductAvailability)
	r.Get("/healthz", h.HealthCheck)
}

// GetCart returns the caller's open cart, creating it when needed.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}

	cart, err := h.service.GetOrCreateOpenCart(r.Context(), userID)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving cart", "UserID", userID, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to retrieve cart")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

// AddToCart adds one unit of a product to the caller's open cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	var req AddToCartRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}

	result, err := h.service.AddToCart(r.Context(), userID, req.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, ordererrors.ErrProductNotFound):
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", req.ProductID))
		case errors.Is(err, ordererrors.ErrProductInactive):
			web.RespondError(w, mLogger, http.StatusUnprocessableEntity, fmt.Sprintf("Product with ID %s is not available for sale", req.ProductID))
		case errors.Is(err, ordererrors.ErrAlreadyCompleted):
			mLogger.WarnContext(r.Context(), "Cart was checked out while adding", "ProductID", req.ProductID)
			web.RespondError(w, mLogger, http.StatusConflict, "Cart was checked out concurrently, retry the request")
		default:
			mLogger.ErrorContext(r.Context(), "Error adding to cart", "ProductID", req.ProductID, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to add product to cart")
		}
		return
	}
	mLogger.DebugContext(r.Context(), "Added to cart", "LineItemID", result.Item.ID, "available", result.Available)
	web.RespondJSON(w, mLogger, http.StatusCreated, result)
}

// RemoveFromCart removes one line item from the caller's open cart.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.PathUUID(w, r, mLogger, "id")
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}

	if err := h.service.RemoveFromCart(r.Context(), userID, id); err != nil {
		switch {
		case errors.Is(err, ordererrors.ErrLineItemNotFound):
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Line item with ID %s not found in cart", id))
		case errors.Is(err, ordererrors.ErrAlreadyCompleted):
			web.RespondError(w, mLogger, http.StatusConflict, "Cart has already been checked out")
		default:
			mLogger.ErrorContext(r.Context(), "Error removing line item", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to remove line item")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout finalizes the caller's cart. A cart that lost every line stays open and
// is reported with status still_open.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.PathUUID(w, r, mLogger, "id")
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	var req CheckoutRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}

	var idemKey string
	if raw := r.Header.Get(idempotency.Header); raw != "" && h.idem != nil {
		idemKey = idempotency.ScopedKey(id, raw)
		stored, err := h.idem.Begin(r.Context(), userID, idemKey)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
			web.RespondError(w, mLogger, http.StatusConflict, err.Error())
			return
		case err != nil:
			mLogger.WarnContext(r.Context(), "Idempotency store unavailable, processing without it", "error", err)
			idemKey = ""
		case stored != nil:
			mLogger.InfoContext(r.Context(), "Replaying stored checkout response", "ID", id)
			writeRaw(w, stored.Status, stored.Body)
			return
		}
	}

	mLogger.DebugContext(r.Context(), "Received checkout request", "ID", id, "PaymentTypeID", req.PaymentTypeID)
	result, err := h.service.Checkout(r.Context(), userID, id, req.PaymentTypeID)
	status, payload := h.checkoutResponse(r.Context(), mLogger, id, result, err)
	if errors.Is(err, ordererrors.ErrConcurrencyConflict) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}

	body, mErr := json.Marshal(payload)
	if mErr != nil {
		mLogger.ErrorContext(r.Context(), "Error encoding response to JSON", "error", mErr)
		status, body = http.StatusInternalServerError, []byte(`{"error":"Internal Server Error"}`)
	}

	if idemKey != "" {
		h.finishIdempotent(r.Context(), mLogger, userID, idemKey, status, err, body)
	}
	writeRaw(w, status, body)
}

func (h *Handler) checkoutResponse(ctx context.Context, mLogger *slog.Logger, id uuid.UUID, result *service.CheckoutResult, err error) (int, any) {
	switch {
	case err == nil:
		mLogger.InfoContext(ctx, "Checkout completed", "ID", id, "status", result.Status, "removed", len(result.Removed))
		return http.StatusOK, result
	case errors.Is(err, ordererrors.ErrCartNotFound):
		mLogger.WarnContext(ctx, "Cart not found", "ID", id)
		return http.StatusNotFound, errorBody(fmt.Sprintf("Cart with ID %s not found", id))
	case errors.Is(err, ordererrors.ErrInvalidPaymentMethod):
		mLogger.WarnContext(ctx, "Invalid payment method", "ID", id)
		return http.StatusUnprocessableEntity, errorBody("Payment method is not valid for this user")
	case errors.Is(err, ordererrors.ErrAlreadyCompleted):
		return http.StatusConflict, errorBody(fmt.Sprintf("Order with ID %s is already completed", id))
	case errors.Is(err, ordererrors.ErrConcurrencyConflict):
		mLogger.WarnContext(ctx, "Checkout conflicted with concurrent updates", "ID", id)
		return http.StatusConflict, errorBody("Stock changed during checkout, please retry")
	default:
		mLogger.ErrorContext(ctx, "Error during checkout", "ID", id, "error", err)
		return http.StatusInternalServerError, errorBody(fmt.Sprintf("Failed to check out order with ID %s", id))
	}
}

// finishIdempotent stores definitive responses and releases the key for retryable ones.
func (h *Handler) finishIdempotent(ctx context.Context, mLogger *slog.Logger, userID uuid.UUID, key string, status int, err error, body []byte) {
	var idemErr error
	if status >= http.StatusInternalServerError || errors.Is(err, ordererrors.ErrConcurrencyConflict) {
		idemErr = h.idem.Release(ctx, userID, key)
	} else {
		idemErr = h.idem.Complete(ctx, userID, key, idempotency.Response{Status: status, Body: body})
	}
	if idemErr != nil {
		mLogger.WarnContext(ctx, "Failed to update idempotency key", "error", idemErr)
	}
}

// FindByID retrieves an order of the caller by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.PathUUID(w, r, mLogger, "id")
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}

	found, err := h.service.FindByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			mLogger.WarnContext(r.Context(), "Order not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Order with ID %s not found", id))
			return
		} else if errors.Is(err, ordererrors.ErrAccessDenied) {
			mLogger.WarnContext(r.Context(), "Access denied to order", "ID", id, "UserID", userID)
			web.RespondError(w, mLogger, http.StatusForbidden, fmt.Sprintf("Access denied to order with ID %s", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error retrieving order", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve order with ID %s", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// FindOrdersByUserID lists the caller's orders, newest first.
func (h *Handler) FindOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	limit, ok := web.ParseQueryInt32(r, w, mLogger, "limit", defaultPageLimit, web.Between(1, maxPageLimit))
	if !ok {
		return
	}
	offset, ok := web.ParseQueryInt32(r, w, mLogger, "offset", 0, web.AtLeast(0))
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}

	list, err := h.service.FindOrdersByUserID(r.Context(), userID, offset, limit)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving order list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// ProductAvailability reports a product with its derived available quantity.
func (h *Handler) ProductAvailability(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.PathUUID(w, r, mLogger, "id")
	if !ok {
		return
	}

	product, err := h.service.ProductAvailability(r.Context(), id)
	if err != nil {
		if errors.Is(err, ordererrors.ErrProductNotFound) {
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error computing availability", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to compute availability")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, product)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
