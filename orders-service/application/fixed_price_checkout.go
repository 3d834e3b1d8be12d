// Package application contains the checkout workflow definitions and the
// starter that fronts them.
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

// TypeFixedPriceCheckout identifies the fixed-price checkout workflow.
const TypeFixedPriceCheckout workflow.Type = "fixed_price_checkout"

const paymentWaitTimeout = 15 * time.Minute

var (
	errCheckoutCancelled = errors.New("checkout cancelled")
	errCheckoutTimedOut  = errors.New("checkout timed out")
)

// CheckoutRequest is the input of a fixed-price checkout instance.
type CheckoutRequest struct {
	UserID         models.ID      `json:"user_id"`
	IdempotencyKey models.ID      `json:"idempotency_key"`
	Address        models.Address `json:"address"`
}

// fixedPriceState is the per-run signal state. It is rebuilt deterministically
// on replay by re-applying recorded signal decisions.
type fixedPriceState struct {
	orderID            models.ID
	paymentIntentID    string
	clientSecret       string
	cancellationReason string
	intentCreated      bool
	paymentAuthorized  bool
	cancelled          bool
	confirmed          bool
}

// FixedPriceCheckout buys the contents of the buyer's cart: lock the cart,
// price it, reserve stock, wait for the payment provider and the buyer, then
// capture. Any failure unwinds the registered compensations in reverse order.
type FixedPriceCheckout struct {
	checkout   *activities.CheckoutActivities
	fixedPrice *activities.FixedPriceActivities
}

func NewFixedPriceCheckout(checkout *activities.CheckoutActivities, fixedPrice *activities.FixedPriceActivities) *FixedPriceCheckout {
	return &FixedPriceCheckout{checkout: checkout, fixedPrice: fixedPrice}
}

func (w *FixedPriceCheckout) Type() workflow.Type {
	return TypeFixedPriceCheckout
}

func (w *FixedPriceCheckout) Execute(c *workflow.Context, input json.RawMessage) (workflow.Result, error) {
	var req CheckoutRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return workflow.Result{}, errors.Wrap(err, "decoding checkout request")
	}

	st := &fixedPriceState{}
	saga := workflow.NewSaga(c.Logger())

	err := w.process(c, &req, st, saga)
	if err == nil {
		return workflow.Result{
			Success:   true,
			SubStatus: workflow.SubStatusSuccess,
			Message:   "checkout completed",
		}, nil
	}
	if workflow.IsSuspended(err) {
		return workflow.Result{}, err
	}

	c.Logger().Error("checkout failed, compensating",
		"order_id", st.orderID.String(), "error", err)
	if cerr := saga.Compensate(); cerr != nil {
		if workflow.IsSuspended(cerr) {
			return workflow.Result{}, cerr
		}
		c.Logger().Error("compensation incomplete", "error", cerr)
	}
	if ferr := w.finalizeFailure(c, st); ferr != nil {
		return workflow.Result{}, ferr
	}

	return workflow.Result{
		Success:   false,
		SubStatus: failureSubStatus(err),
		Message:   err.Error(),
	}, nil
}

func (w *FixedPriceCheckout) process(c *workflow.Context, req *CheckoutRequest, st *fixedPriceState, saga *workflow.Saga) error {
	if err := workflow.Run(c, "DeactivateCart", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.fixedPrice.DeactivateCart(ctx, req.UserID)
	}); err != nil {
		return err
	}
	saga.Add("reactivate cart", func() error {
		return workflow.Run(c, "ActivateCart", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
			return w.fixedPrice.ActivateCart(ctx, req.UserID)
		})
	})

	cart, err := workflow.ExecuteActivity(c, "GetCart", workflow.DefaultRetryPolicy, func(ctx context.Context) (*domain.Cart, error) {
		return w.fixedPrice.GetCart(ctx, req.UserID)
	})
	if err != nil {
		return err
	}

	order, err := workflow.ExecuteActivity(c, "CreateOrder", workflow.DefaultRetryPolicy, func(ctx context.Context) (*domain.Order, error) {
		return w.fixedPrice.CreateOrder(ctx, req.UserID, req.IdempotencyKey, cart, req.Address)
	})
	if err != nil {
		return err
	}
	st.orderID = order.ID

	if err := workflow.Run(c, "AssertAmountWithinLimit", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.AssertAmountWithinLimit(ctx, order.ID)
	}); err != nil {
		return err
	}

	reserveKey, err := c.NewID()
	if err != nil {
		return err
	}
	reservationIDs, err := workflow.ExecuteActivity(c, "ReserveInventory", workflow.DefaultRetryPolicy, func(ctx context.Context) ([]models.ID, error) {
		return w.fixedPrice.ReserveInventory(ctx, models.ID(reserveKey), order.ID, cart)
	})
	if err != nil {
		return err
	}
	saga.Add("release inventory reservations", func() error {
		if st.confirmed {
			// Confirmed stock is committed; post-confirmation failures
			// compensate through the payment refund only.
			return nil
		}
		releaseKey, err := c.NewID()
		if err != nil {
			return err
		}
		return workflow.Run(c, "ReleaseReservations", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
			return w.fixedPrice.ReleaseReservations(ctx, models.ID(releaseKey), order.ID, reservationIDs)
		})
	})

	// The payment provider creates the intent asynchronously; the buyer may
	// cancel at any point before capture.
	ok, err := c.AwaitSignal(paymentWaitTimeout, st.apply(c), func() bool {
		return st.intentCreated || st.cancelled
	})
	if err != nil {
		return err
	}
	if st.cancelled {
		return errors.Wrapf(errCheckoutCancelled, "while waiting for payment intent: %s", st.cancellationReason)
	}
	if !ok {
		return errors.Wrap(errCheckoutTimedOut, "payment intent not created in time")
	}

	if err := workflow.Run(c, "SetPaymentIntent", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetPaymentIntent(ctx, order.ID, st.paymentIntentID)
	}); err != nil {
		return err
	}
	if err := workflow.Run(c, "SetClientSecret", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetClientSecret(ctx, order.ID, st.clientSecret)
	}); err != nil {
		return err
	}

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

	if err := workflow.Run(c, "SetPaymentAuthorized", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.SetPaymentStatus(ctx, order.ID, domain.PaymentStatusAuthorized)
	}); err != nil {
		return err
	}

	confirmKey, err := c.NewID()
	if err != nil {
		return err
	}
	if err := workflow.Run(c, "ConfirmReservations", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.fixedPrice.ConfirmReservations(ctx, models.ID(confirmKey), order.ID, reservationIDs)
	}); err != nil {
		return err
	}
	st.confirmed = true

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

	if err := workflow.Run(c, "ClearCart", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.fixedPrice.ClearCart(ctx, req.UserID)
	}); err != nil {
		return err
	}
	if err := workflow.Run(c, "ActivateCart", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.fixedPrice.ActivateCart(ctx, req.UserID)
	}); err != nil {
		return err
	}

	email, err := workflow.ExecuteActivity(c, "FetchBuyerEmail", workflow.DefaultRetryPolicy, func(ctx context.Context) (string, error) {
		return w.checkout.FetchBuyerEmail(ctx, req.UserID)
	})
	if err != nil {
		return err
	}
	if err := workflow.Run(c, "PublishCheckoutSuccessful", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.PublishCheckoutSuccessful(ctx, order.ID, email)
	}); err != nil {
		return err
	}

	return workflow.Run(c, "MarkOrderCompleted", workflow.DefaultRetryPolicy, func(ctx context.Context) error {
		return w.checkout.MarkOrderCompleted(ctx, order.ID)
	})
}

// apply returns the signal handler for this run. Guards reject signals for
// other orders, duplicates, and signals arriving after a cancellation.
func (st *fixedPriceState) apply(c *workflow.Context) func(workflow.Signal) {
	return func(sig workflow.Signal) {
		log := c.Logger()
		switch sig.Type {
		case events.PaymentIntentCreatedEvent:
			var p IntentCreatedSignal
			if err := sig.Unmarshal(&p); err != nil {
				log.Warn("dropping malformed signal", "type", sig.Type, "error", err)
				return
			}
			if p.OrderID != st.orderID || st.intentCreated || st.cancelled {
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
			if p.OrderID != st.orderID || !st.intentCreated || st.paymentAuthorized || st.cancelled {
				log.Warn("ignoring payment authorized signal", "order_id", p.OrderID.String())
				return
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

// finalizeFailure marks the order and voids any pending intent after the saga
// has unwound. Best effort except for suspension, which must propagate so the
// instance resumes here.
func (w *FixedPriceCheckout) finalizeFailure(c *workflow.Context, st *fixedPriceState) error {
	if st.orderID.IsZero() {
		return nil
	}
	// Cancelled and timed-out checkouts both leave the order failed; the
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
	return nil
}

func failureSubStatus(err error) string {
	switch {
	case errors.Is(err, errCheckoutCancelled):
		return workflow.SubStatusCancelled
	case errors.Is(err, errCheckoutTimedOut):
		return workflow.SubStatusTimedOut
	default:
		return workflow.SubStatusFailed
	}
}
