// Package activities contains the side-effecting operations the checkout
// workflows execute. Every method is safe to retry: mutations either carry an
// idempotency key or are absolute field updates.
package activities

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// DefaultTransactionLimitCents caps a single checkout. Orders above the limit
// fail before any money moves.
const DefaultTransactionLimitCents = 999_999_00

// CheckoutSuccessfulData is the payload of a checkout.successful event
type CheckoutSuccessfulData struct {
	OrderID     models.ID    `json:"order_id"`
	BuyerID     models.ID    `json:"buyer_id"`
	BuyerEmail  string       `json:"buyer_email"`
	TotalAmount models.Money `json:"total_amount"`
}

// CheckoutActivities covers the order and payment steps shared by both
// checkout variants.
type CheckoutActivities struct {
	orders           domain.OrderRepository
	users            domain.UserService
	payments         domain.PaymentService
	publisher        events.Publisher
	transactionLimit int64
}

// NewCheckoutActivities creates checkout activities with the default
// transaction limit.
func NewCheckoutActivities(
	orders domain.OrderRepository,
	users domain.UserService,
	payments domain.PaymentService,
	publisher events.Publisher,
) *CheckoutActivities {
	return &CheckoutActivities{
		orders:           orders,
		users:            users,
		payments:         payments,
		publisher:        publisher,
		transactionLimit: DefaultTransactionLimitCents,
	}
}

// WithTransactionLimit overrides the per-checkout amount cap, in cents.
func (a *CheckoutActivities) WithTransactionLimit(cents int64) *CheckoutActivities {
	a.transactionLimit = cents
	return a
}

// AssertAmountWithinLimit fails the checkout when the order total exceeds the
// transaction limit. The violation is a business error and is never retried.
func (a *CheckoutActivities) AssertAmountWithinLimit(ctx context.Context, orderID models.ID) error {
	order, err := a.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.TotalAmount.Amount > a.transactionLimit {
		return workflow.NewBusinessError(
			"AMOUNT_TOO_LARGE",
			"order total exceeds the maximum allowed transaction amount",
		)
	}
	return nil
}

// MarkOrderCompleted transitions the order to its final successful status.
func (a *CheckoutActivities) MarkOrderCompleted(ctx context.Context, orderID models.ID) error {
	return a.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCompleted)
}

// MarkOrderFailed transitions the order to failed.
func (a *CheckoutActivities) MarkOrderFailed(ctx context.Context, orderID models.ID) error {
	return a.orders.UpdateStatus(ctx, orderID, domain.OrderStatusFailed)
}

// SetPaymentIntent persists the provider's intent id on the order.
func (a *CheckoutActivities) SetPaymentIntent(ctx context.Context, orderID models.ID, paymentIntentID string) error {
	return a.orders.SetPaymentIntentID(ctx, orderID, paymentIntentID)
}

// SetClientSecret persists the client secret the buyer's frontend uses to
// confirm the payment.
func (a *CheckoutActivities) SetClientSecret(ctx context.Context, orderID models.ID, clientSecret string) error {
	return a.orders.SetClientSecret(ctx, orderID, clientSecret)
}

// SetPaymentStatus records the payment progress on the order.
func (a *CheckoutActivities) SetPaymentStatus(ctx context.Context, orderID models.ID, status domain.PaymentStatus) error {
	return a.orders.SetPaymentStatus(ctx, orderID, status)
}

// SetShippingAddress persists the buyer's shipping address.
func (a *CheckoutActivities) SetShippingAddress(ctx context.Context, orderID models.ID, address models.Address) error {
	return a.orders.SetAddress(ctx, orderID, address)
}

// CapturePayment captures the authorized payment. A provider decline is
// surfaced as a business error so the workflow compensates instead of
// retrying.
func (a *CheckoutActivities) CapturePayment(ctx context.Context, orderID models.ID) error {
	order, err := a.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := a.payments.Capture(ctx, orderID, order.PaymentIntentID); err != nil {
		if errors.Is(err, domain.ErrPaymentDeclined) {
			return workflow.NewBusinessError("PAYMENT_DECLINED", err.Error())
		}
		return errors.Wrap(err, "capturing payment")
	}
	return nil
}

// RefundPayment refunds a captured payment during compensation.
func (a *CheckoutActivities) RefundPayment(ctx context.Context, idempotencyKey, orderID models.ID) error {
	order, err := a.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := a.payments.Refund(ctx, idempotencyKey, orderID, order.PaymentIntentID); err != nil {
		return errors.Wrap(err, "refunding payment")
	}
	return a.orders.SetPaymentStatus(ctx, orderID, domain.PaymentStatusRefunded)
}

// CancelPaymentIntent asks the provider to void an uncaptured intent. The
// call is best effort: intents expire on their own, so failures are ignored
// by callers.
func (a *CheckoutActivities) CancelPaymentIntent(ctx context.Context, orderID models.ID) error {
	order, err := a.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentIntentID == "" {
		return nil
	}
	if err := a.payments.CancelIntent(ctx, orderID, order.PaymentIntentID); err != nil {
		return errors.Wrap(err, "cancelling payment intent")
	}
	return a.orders.SetPaymentStatus(ctx, orderID, domain.PaymentStatusCancelled)
}

// FetchBuyerEmail resolves the buyer's email for the success notification.
func (a *CheckoutActivities) FetchBuyerEmail(ctx context.Context, userID models.ID) (string, error) {
	email, err := a.users.GetEmail(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "fetching buyer email")
	}
	return email, nil
}

// PublishCheckoutSuccessful emits the checkout.successful event that drives
// the buyer notification.
func (a *CheckoutActivities) PublishCheckoutSuccessful(ctx context.Context, orderID models.ID, email string) error {
	order, err := a.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	event := events.NewEvent(orderID, events.CheckoutSuccessfulEvent, CheckoutSuccessfulData{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		BuyerEmail:  email,
		TotalAmount: order.TotalAmount,
	})
	return a.publisher.Publish(ctx, event)
}
