package activities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/orders-service/mocks"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

func pendingOrder(total models.Money) *domain.Order {
	address := models.Address{Line1: "100 Market St", City: "San Francisco", Country: "US"}
	return domain.NewFixedPriceOrder(
		models.GenerateUUID(),
		models.GenerateUUID(),
		models.GenerateUUID(),
		nil,
		total,
		&address,
	)
}

func TestAssertAmountWithinLimit(t *testing.T) {
	tests := []struct {
		name    string
		total   models.Money
		limit   int64
		wantErr bool
	}{
		{name: "under limit", total: models.NewMoney(150_00, "USD"), limit: 1000_00},
		{name: "exactly at limit", total: models.NewMoney(1000_00, "USD"), limit: 1000_00},
		{name: "over limit", total: models.NewMoney(1000_01, "USD"), limit: 1000_00, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := pendingOrder(tt.total)
			orders := &mocks.OrderRepository{}
			orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)

			a := NewCheckoutActivities(orders, &mocks.UserService{}, &mocks.PaymentService{}, &mocks.EventPublisher{}).
				WithTransactionLimit(tt.limit)
			err := a.AssertAmountWithinLimit(context.Background(), order.ID)

			if tt.wantErr {
				require.Error(t, err)
				require.True(t, workflow.IsBusinessError(err))
				assert.Contains(t, err.Error(), "AMOUNT_TOO_LARGE")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCapturePaymentMapsDeclineToBusinessError(t *testing.T) {
	order := pendingOrder(models.NewMoney(150_00, "USD"))
	order.PaymentIntentID = "pi_123"

	orders := &mocks.OrderRepository{}
	orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
	payments := &mocks.PaymentService{}
	payments.On("Capture", mock.Anything, order.ID, "pi_123").Return(domain.ErrPaymentDeclined)

	a := NewCheckoutActivities(orders, &mocks.UserService{}, payments, &mocks.EventPublisher{})
	err := a.CapturePayment(context.Background(), order.ID)

	require.Error(t, err)
	require.True(t, workflow.IsBusinessError(err))
	assert.Contains(t, err.Error(), "PAYMENT_DECLINED")
}

func TestCancelPaymentIntentSkipsOrdersWithoutIntent(t *testing.T) {
	order := pendingOrder(models.NewMoney(150_00, "USD"))

	orders := &mocks.OrderRepository{}
	orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
	payments := &mocks.PaymentService{}

	a := NewCheckoutActivities(orders, &mocks.UserService{}, payments, &mocks.EventPublisher{})
	require.NoError(t, a.CancelPaymentIntent(context.Background(), order.ID))

	payments.AssertNotCalled(t, "CancelIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelPaymentIntentVoidsPendingIntent(t *testing.T) {
	order := pendingOrder(models.NewMoney(150_00, "USD"))
	order.PaymentIntentID = "pi_123"

	orders := &mocks.OrderRepository{}
	orders.On("FindByID", mock.Anything, order.ID).Return(order, nil)
	orders.On("SetPaymentStatus", mock.Anything, order.ID, domain.PaymentStatusCancelled).Return(nil)
	payments := &mocks.PaymentService{}
	payments.On("CancelIntent", mock.Anything, order.ID, "pi_123").Return(nil)

	a := NewCheckoutActivities(orders, &mocks.UserService{}, payments, &mocks.EventPublisher{})
	require.NoError(t, a.CancelPaymentIntent(context.Background(), order.ID))

	payments.AssertCalled(t, "CancelIntent", mock.Anything, order.ID, "pi_123")
	orders.AssertCalled(t, "SetPaymentStatus", mock.Anything, order.ID, domain.PaymentStatusCancelled)
}
