package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// ErrCheckoutAlreadyStarted is returned when a checkout already exists for
// the business key.
var ErrCheckoutAlreadyStarted = errors.New("checkout already started")

// FixedPriceWorkflowID derives the instance id for a fixed-price checkout.
// The idempotency key makes duplicate submissions collapse onto one instance.
func FixedPriceWorkflowID(idempotencyKey models.ID) string {
	return "fixed-price-checkout-" + idempotencyKey.String()
}

// AuctionWorkflowID derives the instance id for an auction checkout. One
// instance per auction, across all bidder attempts.
func AuctionWorkflowID(auctionID models.ID) string {
	return "auction-checkout-" + auctionID.String()
}

// CheckoutStatus is the caller-facing view of a checkout instance.
type CheckoutStatus struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Success    *bool  `json:"success,omitempty"`
	SubStatus  string `json:"sub_status,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CheckoutStarter fronts the workflow runtime: it starts checkout instances,
// translates inbound notifications into signals, and answers status queries.
type CheckoutStarter struct {
	runtime *workflow.Runtime
	orders  domain.OrderRepository
}

func NewCheckoutStarter(runtime *workflow.Runtime, orders domain.OrderRepository) *CheckoutStarter {
	return &CheckoutStarter{runtime: runtime, orders: orders}
}

// StartFixedPriceCheckout launches a fixed-price checkout for the buyer's
// cart. Returns the workflow id; ErrCheckoutAlreadyStarted if the idempotency
// key is already in flight.
func (s *CheckoutStarter) StartFixedPriceCheckout(ctx context.Context, req *CheckoutRequest) (string, error) {
	if req.UserID.IsZero() {
		return "", errors.New("user id is required")
	}
	if req.IdempotencyKey.IsZero() {
		return "", errors.New("idempotency key is required")
	}
	id := FixedPriceWorkflowID(req.IdempotencyKey)
	if err := s.runtime.Start(ctx, id, TypeFixedPriceCheckout, req); err != nil {
		if errors.Is(err, workflow.ErrAlreadyExists) {
			return id, ErrCheckoutAlreadyStarted
		}
		return "", err
	}
	return id, nil
}

// StartAuctionCheckout launches the checkout for an ended auction.
func (s *CheckoutStarter) StartAuctionCheckout(ctx context.Context, req *AuctionCheckoutRequest) (string, error) {
	if req.Auction.ID.IsZero() {
		return "", errors.New("auction id is required")
	}
	if len(req.Bidders) == 0 {
		return "", errors.New("at least one bidder is required")
	}
	id := AuctionWorkflowID(req.Auction.ID)
	if err := s.runtime.Start(ctx, id, TypeAuctionCheckout, req); err != nil {
		if errors.Is(err, workflow.ErrAlreadyExists) {
			return id, ErrCheckoutAlreadyStarted
		}
		return "", err
	}
	return id, nil
}

// NotifyIntentCreated forwards a payment intent notification to the order's
// checkout instance.
func (s *CheckoutStarter) NotifyIntentCreated(ctx context.Context, orderID models.ID, paymentIntentID, clientSecret string) error {
	id, err := s.workflowIDForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.runtime.Signal(ctx, id, events.PaymentIntentCreatedEvent, IntentCreatedSignal{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
		ClientSecret:    clientSecret,
	})
}

// NotifyPaymentAuthorized forwards a payment authorization to the order's
// checkout instance.
func (s *CheckoutStarter) NotifyPaymentAuthorized(ctx context.Context, orderID models.ID, paymentIntentID string) error {
	id, err := s.workflowIDForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.runtime.Signal(ctx, id, events.PaymentAuthorizedEvent, PaymentAuthorizedSignal{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
	})
}

// SubmitShippingAddress delivers the winner's address to an auction checkout.
// Fixed-price orders carry their address from the start request.
func (s *CheckoutStarter) SubmitShippingAddress(ctx context.Context, orderID models.ID, address models.Address) error {
	if address.IsZero() {
		return errors.New("address is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Type != domain.OrderTypeAuction {
		return errors.New("address submission is only supported for auction orders")
	}
	return s.runtime.Signal(ctx, AuctionWorkflowID(order.AuctionID), events.AddressProvidedEvent, AddressProvidedSignal{
		OrderID: orderID,
		Address: address,
	})
}

// CancelCheckout asks the order's running checkout to abandon and compensate.
func (s *CheckoutStarter) CancelCheckout(ctx context.Context, orderID models.ID, reason string) error {
	id, err := s.workflowIDForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.runtime.Signal(ctx, id, events.CheckoutCancelledEvent, CancelCheckoutSignal{
		OrderID: orderID,
		Reason:  reason,
	})
}

// GetCheckoutStatus answers the caller-facing status query for an order.
func (s *CheckoutStarter) GetCheckoutStatus(ctx context.Context, orderID models.ID) (*CheckoutStatus, error) {
	id, err := s.workflowIDForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	inst, err := s.runtime.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	status := &CheckoutStatus{WorkflowID: id, Status: string(inst.Status)}
	if inst.Status.IsTerminal() && inst.Result != nil {
		success := inst.Result.Success
		status.Success = &success
		status.SubStatus = inst.Result.SubStatus
		status.Message = inst.Result.Message
	}
	return status, nil
}

func (s *CheckoutStarter) workflowIDForOrder(ctx context.Context, orderID models.ID) (string, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	switch order.Type {
	case domain.OrderTypeAuction:
		return AuctionWorkflowID(order.AuctionID), nil
	default:
		return FixedPriceWorkflowID(order.IdempotencyKey), nil
	}
}
