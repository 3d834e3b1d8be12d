package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/shared/models"
)

// ErrOrderNotFound is returned when no order exists for the given id.
var ErrOrderNotFound = errors.New("order not found")

// OrderType represents the order variant
type OrderType string

const (
	OrderTypeFixedPrice OrderType = "fixed_price"
	OrderTypeAuction    OrderType = "auction"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// PaymentStatus represents the payment progress of an order
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// OrderItem is one line of an order
type OrderItem struct {
	ProductID   models.ID    `json:"product_id"`
	SellerID    models.ID    `json:"seller_id"`
	ProductName string       `json:"product_name"`
	UnitPrice   models.Money `json:"unit_price"`
	Quantity    int          `json:"quantity"`
	Subtotal    models.Money `json:"subtotal"`
}

// Order aggregate root. Status transitions happen through the repository as
// workflow activity side effects; the checkout workflows never hold order
// state locally beyond the current order id.
type Order struct {
	ID              models.ID         `json:"id"`
	BuyerID         models.ID         `json:"buyer_id"`
	Type            OrderType         `json:"type"`
	Status          OrderStatus       `json:"status"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	Items           []OrderItem       `json:"items"`
	TotalAmount     models.Money      `json:"total_amount"`
	CartID          models.ID         `json:"cart_id,omitempty"`
	AuctionID       models.ID         `json:"auction_id,omitempty"`
	IdempotencyKey  models.ID         `json:"idempotency_key,omitempty"`
	ShippingAddress *models.Address   `json:"shipping_address,omitempty"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	Timestamps      models.Timestamps `json:"-"`
}

// NewFixedPriceOrder creates a pending fixed-price order from cart contents.
func NewFixedPriceOrder(buyerID, cartID, idempotencyKey models.ID, items []OrderItem, total models.Money, address *models.Address) *Order {
	return &Order{
		ID:              models.GenerateUUID(),
		BuyerID:         buyerID,
		Type:            OrderTypeFixedPrice,
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		Items:           items,
		TotalAmount:     total,
		CartID:          cartID,
		IdempotencyKey:  idempotencyKey,
		ShippingAddress: address,
		Timestamps:      models.NewTimestamps(),
	}
}

// NewAuctionOrder creates a pending order for an auction winner.
func NewAuctionOrder(auction Auction, bidder Bidder) *Order {
	item := OrderItem{
		ProductID:   auction.ProductID,
		SellerID:    auction.SellerID,
		ProductName: auction.Title,
		UnitPrice:   bidder.Amount,
		Quantity:    1,
		Subtotal:    bidder.Amount,
	}
	return &Order{
		ID:            models.GenerateUUID(),
		BuyerID:       bidder.ID,
		Type:          OrderTypeAuction,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		Items:         []OrderItem{item},
		TotalAmount:   bidder.Amount,
		AuctionID:     auction.ID,
		Timestamps:    models.NewTimestamps(),
	}
}

// OrderRepository persists orders. All mutations are granular field updates
// because they run as idempotent workflow activities.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id models.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id models.ID, status OrderStatus) error
	SetPaymentStatus(ctx context.Context, id models.ID, status PaymentStatus) error
	SetAddress(ctx context.Context, id models.ID, address models.Address) error
	SetPaymentIntentID(ctx context.Context, id models.ID, paymentIntentID string) error
	SetClientSecret(ctx context.Context, id models.ID, clientSecret string) error
}
