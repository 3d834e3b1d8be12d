package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/application"
	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// OrderHandlers contains checkout HTTP handlers
type OrderHandlers struct {
	starter *application.CheckoutStarter
	journal events.Journal
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(starter *application.CheckoutStarter, journal events.Journal) *OrderHandlers {
	return &OrderHandlers{starter: starter, journal: journal}
}

type startCheckoutRequest struct {
	UserID         string         `json:"user_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Address        models.Address `json:"address"`
}

type startCheckoutResponse struct {
	WorkflowID string `json:"workflow_id"`
}

type submitAddressRequest struct {
	Address models.Address `json:"address"`
}

type cancelCheckoutRequest struct {
	Reason string `json:"reason"`
}

// StartCheckout handles fixed-price checkout requests
func (h *OrderHandlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var body startCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, err := models.NewID(body.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	idempotencyKey, err := models.NewID(body.IdempotencyKey)
	if err != nil {
		http.Error(w, "Invalid idempotency key", http.StatusBadRequest)
		return
	}

	req := &application.CheckoutRequest{
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		Address:        body.Address,
	}
	workflowID, err := h.starter.StartFixedPriceCheckout(r.Context(), req)
	if err != nil {
		if errors.Is(err, application.ErrCheckoutAlreadyStarted) {
			// Duplicate submission, point the caller at the existing instance
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(startCheckoutResponse{WorkflowID: workflowID})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(startCheckoutResponse{WorkflowID: workflowID})
}

// GetCheckoutStatus handles checkout status queries
func (h *OrderHandlers) GetCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := models.NewID(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	status, err := h.starter.GetCheckoutStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, workflow.ErrNotFound) {
			http.Error(w, "Checkout not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// SubmitAddress handles shipping address submissions for auction orders
func (h *OrderHandlers) SubmitAddress(w http.ResponseWriter, r *http.Request) {
	orderID, err := models.NewID(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	var body submitAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.starter.SubmitShippingAddress(r.Context(), orderID, body.Address); err != nil {
		h.writeSignalError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type orderEventsResponse struct {
	Events []*events.Event `json:"events"`
}

// ListOrderEvents returns the journalled events recorded against an order,
// oldest first.
func (h *OrderHandlers) ListOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID, err := models.NewID(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	recorded, err := h.journal.ByAggregate(r.Context(), orderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orderEventsResponse{Events: recorded})
}

// CancelCheckout handles checkout cancellation requests
func (h *OrderHandlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	orderID, err := models.NewID(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	var body cancelCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.starter.CancelCheckout(r.Context(), orderID, body.Reason); err != nil {
		h.writeSignalError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *OrderHandlers) writeSignalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, "Order not found", http.StatusNotFound)
	case errors.Is(err, workflow.ErrInstanceNotRunning):
		http.Error(w, "Checkout is not running", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RegisterRoutes registers checkout routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/checkout", h.StartCheckout)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/checkout-status", h.GetCheckoutStatus)
			r.Get("/events", h.ListOrderEvents)
			r.Post("/address", h.SubmitAddress)
			r.Post("/cancel-checkout", h.CancelCheckout)
		})
	})
}
