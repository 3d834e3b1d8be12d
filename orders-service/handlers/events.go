package handlers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/application"
	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// OrderEventHandlers contains event handlers for the orders service
type OrderEventHandlers struct {
	starter *application.CheckoutStarter
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(starter *application.CheckoutStarter) *OrderEventHandlers {
	return &OrderEventHandlers{starter: starter}
}

// Handle implements the events.EventHandler interface
func (h *OrderEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	var err error
	switch event.EventType {
	case events.AuctionEndedEvent:
		err = h.handleAuctionEnded(ctx, event)
	case events.PaymentIntentCreatedEvent:
		err = h.handlePaymentIntentCreated(ctx, event)
	case events.PaymentAuthorizedEvent:
		err = h.handlePaymentAuthorized(ctx, event)
	default:
		// Unknown event type, ignore
		return nil
	}

	// Signals for finished or unknown checkouts are dropped, not redelivered:
	// the queue would otherwise retry them forever.
	if errors.Is(err, workflow.ErrInstanceNotRunning) || errors.Is(err, domain.ErrOrderNotFound) {
		return nil
	}
	return err
}

// HandlerID returns the unique identifier for this event handler
func (h *OrderEventHandlers) HandlerID() string {
	return "orders-service-event-handler"
}

// auctionEndedData is the payload of an auction.ended event
type auctionEndedData struct {
	Auction domain.Auction  `json:"auction"`
	Bidders []domain.Bidder `json:"bidders"`
}

func (h *OrderEventHandlers) handleAuctionEnded(ctx context.Context, event *events.Event) error {
	var data auctionEndedData
	if err := event.UnmarshalPayload(&data); err != nil {
		return errors.Wrap(err, "decoding auction.ended payload")
	}

	req := &application.AuctionCheckoutRequest{
		Auction: data.Auction,
		Bidders: data.Bidders,
	}
	_, err := h.starter.StartAuctionCheckout(ctx, req)
	if errors.Is(err, application.ErrCheckoutAlreadyStarted) {
		// Redelivered event, the checkout is already in flight
		return nil
	}
	return err
}

// paymentIntentCreatedData is the payload of a payment.intent.created event
type paymentIntentCreatedData struct {
	OrderID         models.ID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
}

func (h *OrderEventHandlers) handlePaymentIntentCreated(ctx context.Context, event *events.Event) error {
	var data paymentIntentCreatedData
	if err := event.UnmarshalPayload(&data); err != nil {
		return errors.Wrap(err, "decoding payment.intent.created payload")
	}
	return h.starter.NotifyIntentCreated(ctx, data.OrderID, data.PaymentIntentID, data.ClientSecret)
}

// paymentAuthorizedData is the payload of a payment.authorized event
type paymentAuthorizedData struct {
	OrderID         models.ID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
}

func (h *OrderEventHandlers) handlePaymentAuthorized(ctx context.Context, event *events.Event) error {
	var data paymentAuthorizedData
	if err := event.UnmarshalPayload(&data); err != nil {
		return errors.Wrap(err, "decoding payment.authorized payload")
	}
	return h.starter.NotifyPaymentAuthorized(ctx, data.OrderID, data.PaymentIntentID)
}
