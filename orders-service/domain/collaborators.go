package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/shared/models"
)

// ErrPaymentDeclined is returned by payment collaborators when the payment
// provider rejects the operation for business reasons. Declines are final and
// must not be retried.
var ErrPaymentDeclined = errors.New("payment declined")

// CartItem is one line of a shopping cart
type CartItem struct {
	ProductID models.ID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Cart is the buyer's shopping cart as reported by the cart service
type Cart struct {
	CartID models.ID  `json:"cart_id"`
	UserID models.ID  `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// Product is the catalog view needed to price an order
type Product struct {
	ProductID models.ID    `json:"product_id"`
	SellerID  models.ID    `json:"seller_id"`
	Title     string       `json:"title"`
	Price     models.Money `json:"price"`
}

// ReservationItem identifies stock to reserve for an order line
type ReservationItem struct {
	ProductID models.ID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CartService manages the buyer's cart lifecycle during checkout
type CartService interface {
	GetCart(ctx context.Context, userID models.ID) (*Cart, error)
	DeactivateCart(ctx context.Context, userID models.ID) error
	ActivateCart(ctx context.Context, userID models.ID) error
	ClearCart(ctx context.Context, userID models.ID) error
}

// InventoryService reserves and confirms stock. Every mutation carries an
// idempotency key so collaborator retries cannot double-reserve.
type InventoryService interface {
	Reserve(ctx context.Context, idempotencyKey, orderID models.ID, items []ReservationItem) ([]models.ID, error)
	Confirm(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error
	Release(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error
}

// PaymentService drives the payment provider for an order's intent
type PaymentService interface {
	Capture(ctx context.Context, orderID models.ID, paymentIntentID string) error
	CancelIntent(ctx context.Context, orderID models.ID, paymentIntentID string) error
	Refund(ctx context.Context, idempotencyKey, orderID models.ID, paymentIntentID string) error
}

// UserService resolves buyer contact details
type UserService interface {
	GetEmail(ctx context.Context, userID models.ID) (string, error)
}

// ProductService resolves catalog entries for cart pricing
type ProductService interface {
	GetProductsByIDs(ctx context.Context, ids []models.ID) ([]Product, error)
}
