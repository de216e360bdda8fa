package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
)

// OrderService is what the handlers need from the lifecycle service.
type OrderService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
	GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	GetOrderStatus(ctx context.Context, orderID uuid.UUID) (domain.OrderStatus, error)

	MarkItemDigitalUnlocked(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error)
	MarkItemShipped(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error)
	MarkItemDelivered(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error)
	CancelItem(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error)

	MarkItemsDigitalUnlocked(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error)
	MarkItemsShipped(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error)
	MarkItemsDelivered(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error)

	CancelOrder(ctx context.Context, orderID uuid.UUID) error
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID) error
	MarkOrderFailed(ctx context.Context, orderID uuid.UUID) error
	MarkOrderFulfilled(ctx context.Context, orderID uuid.UUID) (domain.OrderStatus, error)

	UpdateTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) error
	GetUserOrderSummary(ctx context.Context, userID string) (domain.UserOrderSummary, error)
}

type Handler struct {
	orders        OrderService
	returnURLBase string
	logger        *slog.Logger
}

func NewHandler(orders OrderService, returnURLBase string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		orders:        orders,
		returnURLBase: returnURLBase,
		logger:        logger,
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	domainReq, err := req.toDomain(h.returnURLBase)
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), domainReq)
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID:     result.OrderID,
		TotalAmount: mapMoney(result.TotalAmount),
		Status:      string(result.Status),
		PaymentURL:  result.PaymentURL,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (h *Handler) GetOrderItems(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	items, err := h.orders.GetOrderItems(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapItems(items))
}

func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	status, err := h.orders.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{OrderID: orderID, Status: string(status)})
}

type itemAction func(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error)

func (h *Handler) itemTransition(action itemAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		itemID, ok := uuidParam(w, r, "itemID")
		if !ok {
			return
		}

		status, err := action(r.Context(), orderID, itemID)
		if err != nil {
			h.writeDomainError(r, w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{OrderID: orderID, Status: string(status)})
	}
}

type batchAction func(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error)

func (h *Handler) batchTransition(action batchAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req ItemIDsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}

		status, err := action(r.Context(), orderID, req.ItemIDs)
		if err != nil {
			h.writeDomainError(r, w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{OrderID: orderID, Status: string(status)})
	}
}

type orderAction func(ctx context.Context, orderID uuid.UUID) error

// orderTransition runs action and answers with the resulting order status.
func (h *Handler) orderTransition(action orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := action(r.Context(), orderID); err != nil {
			h.writeDomainError(r, w, err)
			return
		}

		status, err := h.orders.GetOrderStatus(r.Context(), orderID)
		if err != nil {
			h.writeDomainError(r, w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{OrderID: orderID, Status: string(status)})
	}
}

func (h *Handler) MarkOrderFulfilled(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	status, err := h.orders.MarkOrderFulfilled(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{OrderID: orderID, Status: string(status)})
}

func (h *Handler) UpdateTrackingNumber(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req TrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.orders.UpdateTrackingNumber(r.Context(), orderID, req.TrackingNumber); err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetUserOrderSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orders.GetUserOrderSummary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapSummary(summary))
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeDomainError(r *http.Request, w http.ResponseWriter, err error) {
	status, code := classify(err)

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeError(w, status, code, "internal error")
		return
	}

	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, "invalid_payment_method"
	case errors.Is(err, domain.ErrMissingDeliveryAddress):
		return http.StatusBadRequest, "missing_delivery_address"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrOwnershipMismatch):
		return http.StatusConflict, "ownership_mismatch"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
