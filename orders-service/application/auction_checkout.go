package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/activities"
	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// TypeAuctionCheckout identifies the auction checkout workflow.
const TypeAuctionCheckout workflow.Type = "auction_checkout"

const addressWaitTimeout = 24 * time.Hour

// AuctionCheckoutRequest is the input of an auction checkout instance.
// Bidders are ordered by bid, highest first.
type AuctionCheckoutRequest struct {
	Auction domain.Auction  `json:"auction"`
	Bidders []domain.Bidder `json:"bidders"`
}

// auctionState is the per-bidder signal state. A fresh state is allocated for
// every bidder attempt so stale signals from an abandoned attempt cannot
// leak forward.
type auctionState struct {
	orderID            models.ID
	email              string
	paymentIntentID    string
	clientSecret       string
	cancellationReason string
	addressProvided    bool
	address            models.Address
	intentCreated      bool
	paymentAuthorized  bool
	cancelled          bool
}

// AuctionCheckout settles an ended auction: offer the checkout to the highest
// bidder, and on abandonment, cancellation, or timeout promote the next
// bidder. When every bidder fails the auction is declared invalid, exactly
// once.
type AuctionCheckout struct {
	checkout *activities.CheckoutActivities
	auction  *activities.AuctionActivities
}

func NewAuctionCheckout(checkout *activities.CheckoutActivities, auction *activities.AuctionActivities) *AuctionCheckout {
	return &AuctionCheckout{checkout: checkout, auction: auction}
}

func (w *AuctionCheckout) Type() workflow.Type {
	return TypeAuctionCheckout
}

func (w *AuctionCheckout) Execute(c *workflow.Context, input json.RawMessage) (workflow.Result, error) {
	var req AuctionCheckoutRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return workflow.Result{}, errors.Wrap(err, "decoding auction checkout request")
	}

	for _, bidder := range req.Bidders {
		st := &auctionState{}
		saga := workflow.NewSaga(c.Logger())

		err := w.processBidder(c, req.Auction, bidder, st, saga)
		if err == nil {
			return workflow.Result{
				Success:   true,
				SubStatus: workflow.SubStatusSuccess,
				Message:   "auction checkout completed",
			}, nil
		}
		if workflow.IsSuspended(err) {
			return workflow.Result{}, err
		}

		c.Logger().Warn("bidder checkout failed, promoting next bidder",
			"auction_id", req.Auction.ID.String(),
			"bidder_id", bidder.ID.String(),
			"error", err)
		if cerr := saga.Compensate(); cerr != nil {
			if workflow.IsSuspended(cerr) {
				return workflow.Result{}, cerr
			}
			c.Logger().Error("compensation incomplete", "error", cerr)
		}
		if ferr := w.finalizeBidderFailure(c, req.Auction, bidder, st, err); ferr != nil {
			return workflow.Result{}, ferr
		}
	}

	if err := workflow.Run(c, "PublishAuctionInvalid", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.auction.PublishAuctionInvalid(ctx, req.Auction.ID)
	}); err != nil {
		if workflow.IsSuspended(err) {
			return workflow.Result{}, err
		}
		c.Logger().Error("publishing auction invalid", "auction_id", req.Auction.ID.String(), "error", err)
	}
	return workflow.Result{
		Success:   false,
		SubStatus: workflow.SubStatusFailed,
		Message:   "no bidder completed checkout",
	}, nil
}

func (w *AuctionCheckout) processBidder(c *workflow.Context, auction domain.Auction, bidder domain.Bidder, st *auctionState, saga *workflow.Saga) error {
	order, err := workflow.ExecuteActivity(c, "CreateOrderForWinner", workflow.DefaultRetryPolicy, func(ctx context.Context) (*domain.Order, error) {
		return w.auction.CreateOrderForWinner(ctx, auction, bidder)
	})
	if err != nil {
		return err
	}
	st.orderID = order.ID

	email, err := workflow.ExecuteActivity(c, "FetchWinnerEmail", workflow.DefaultRetryPolicy, func(ctx context.Context) (string, error) {
		return w.checkout.FetchBuyerEmail(ctx, bidder.ID)
	})
	if err != nil {
		return err
	}
	st.email = email

	if err := workflow.Run(c, "NotifyWinnerToCheckout", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.auction.NotifyWinnerToCheckout(ctx, auction, order, email)
	}); err != nil {
		return err
	}

	// The winner has a day to provide a shipping address before the next
	// bidder is promoted.
	ok, err := c.AwaitSignal(addressWaitTimeout, st.apply(c), func() bool {
		return st.addressProvided || st.cancelled
	})
	if err != nil {
		return err
	}
	if st.cancelled {
		return errors.Wrapf(errCheckoutCancelled, "while waiting for address: %s", st.cancellationReason)
	}
	if !ok {
		return errors.Wrap(errCheckoutTimedOut, "shipping address not provided in time")
	}

	if err := workflow.Run(c, "SetShippingAddress", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetShippingAddress(ctx, order.ID, st.address)
	}); err != nil {
		return err
	}

	// The winner pays against the order directly; the authorized signal
	// carries the intent id, so no separate intent wait is needed.
	ok, err = c.AwaitSignal(paymentWaitTimeout, st.apply(c), func() bool {
		return st.paymentAuthorized || st.cancelled
	})
	if err != nil {
		return err
	}
	if st.cancelled {
		return errors.Wrapf(errCheckoutCancelled, "while waiting for authorization: %s", st.cancellationReason)
	}
	if !ok {
		return errors.Wrap(errCheckoutTimedOut, "payment not authorized in time")
	}

	if err := workflow.Run(c, "SetPaymentIntent", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetPaymentIntent(ctx, order.ID, st.paymentIntentID)
	}); err != nil {
		return err
	}
	if st.clientSecret != "" {
		if err := workflow.Run(c, "SetClientSecret", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
			return w.checkout.SetClientSecret(ctx, order.ID, st.clientSecret)
		}); err != nil {
			return err
		}
	}

	if err := workflow.Run(c, "SetPaymentAuthorized", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetPaymentStatus(ctx, order.ID, domain.PaymentStatusAuthorized)
	}); err != nil {
		return err
	}

	if err := workflow.Run(c, "CapturePayment", workflow.MoneyRetryPolicy, func(ctx context.Context) error {
		return w.checkout.CapturePayment(ctx, order.ID)
	}); err != nil {
		return err
	}
	saga.Add("refund payment", func() error {
		refundKey, err := c.NewID()
		if err != nil {
			return err
		}
		return workflow.Run(c, "RefundPayment", workflow.MoneyRetryPolicy, func(ctx context.Context) error {
			return w.checkout.RefundPayment(ctx, models.ID(refundKey), order.ID)
		})
	})

	if err := workflow.Run(c, "SetPaymentCaptured", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetPaymentStatus(ctx, order.ID, domain.PaymentStatusCaptured)
	}); err != nil {
		return err
	}

	if err := workflow.Run(c, "PublishAuctionCompleted", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.auction.PublishAuctionCompleted(ctx, auction.ID, order)
	}); err != nil {
		return err
	}

	return workflow.Run(c, "MarkOrderCompleted", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.MarkOrderCompleted(ctx, order.ID)
	})
}

// apply returns the signal handler for the current bidder attempt. The
// payment-authorized guard additionally requires a provided address; signals
// for a previous bidder's order id fail the order match and are dropped.
func (st *auctionState) apply(c *workflow.Context) func(workflow.Signal) {
	return func(sig workflow.Signal) {
		log := c.Logger()
		switch sig.Type {
		case events.AddressProvidedEvent:
			var p AddressProvidedSignal
			if err := sig.Unmarshal(&p); err != nil {
				log.Warn("dropping malformed signal", "type", sig.Type, "error", err)
				return
			}
			if p.OrderID != st.orderID || st.addressProvided || st.cancelled || p.Address.IsZero() {
				log.Warn("ignoring address signal", "order_id", p.OrderID.String())
				return
			}
			st.address = p.Address
			st.addressProvided = true
		case events.PaymentIntentCreatedEvent:
			var p IntentCreatedSignal
			if err := sig.Unmarshal(&p); err != nil {
				log.Warn("dropping malformed signal", "type", sig.Type, "error", err)
				return
			}
			if p.OrderID != st.orderID || !st.addressProvided || st.intentCreated || st.cancelled {
				log.Warn("ignoring payment intent signal", "order_id", p.OrderID.String())
				return
			}
			st.paymentIntentID = p.PaymentIntentID
			st.clientSecret = p.ClientSecret
			st.intentCreated = true
		case events.PaymentAuthorizedEvent:
			var p PaymentAuthorizedSignal
			if err := sig.Unmarshal(&p); err != nil {
				log.Warn("dropping malformed signal", "type", sig.Type, "error", err)
				return
			}
			if p.OrderID != st.orderID || !st.addressProvided || st.paymentAuthorized || st.cancelled {
				log.Warn("ignoring payment authorized signal", "order_id", p.OrderID.String())
				return
			}
			if st.paymentIntentID == "" {
				st.paymentIntentID = p.PaymentIntentID
			}
			st.paymentAuthorized = true
		case events.CheckoutCancelledEvent:
			var p CancelCheckoutSignal
			if err := sig.Unmarshal(&p); err != nil {
				log.Warn("dropping malformed signal", "type", sig.Type, "error", err)
				return
			}
			if p.OrderID != st.orderID || st.cancelled {
				log.Warn("ignoring cancel signal", "order_id", p.OrderID.String())
				return
			}
			st.cancelled = true
			st.cancellationReason = p.Reason
		default:
			log.Warn("ignoring unexpected signal", "type", sig.Type)
		}
	}
}

// finalizeBidderFailure closes out an abandoned attempt: mark the order,
// void any pending intent, and tell the bidder before the next one is
// promoted. Best effort except for suspension.
func (w *AuctionCheckout) finalizeBidderFailure(c *workflow.Context, auction domain.Auction, bidder domain.Bidder, st *auctionState, cause error) error {
	if st.orderID.IsZero() {
		return nil
	}
	// Cancelled and timed-out attempts both leave the order failed; the
	// workflow sub-status records which it was.
	if err := workflow.Run(c, "MarkOrderFailed", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.MarkOrderFailed(ctx, st.orderID)
	}); err != nil {
		if workflow.IsSuspended(err) {
			return err
		}
		c.Logger().Error("marking order after failure", "order_id", st.orderID.String(), "error", err)
	}
	if err := workflow.Run(c, "CancelPaymentIntent", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.CancelPaymentIntent(ctx, st.orderID)
	}); err != nil {
		if workflow.IsSuspended(err) {
			return err
		}
		c.Logger().Warn("cancelling payment intent", "order_id", st.orderID.String(), "error", err)
	}
	if err := workflow.Run(c, "NotifyWinnerCheckoutFailed", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.auction.NotifyWinnerCheckoutFailed(ctx, auction.ID, st.orderID, bidder.ID, st.email, cause.Error())
	}); err != nil {
		if workflow.IsSuspended(err) {
			return err
		}
		c.Logger().Warn("notifying bidder of failed checkout", "order_id", st.orderID.String(), "error", err)
	}
	return nil
}
