package activities

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
)

// AuctionCheckoutStartedData is the payload of an auction.checkout.started
// event. It tells the winning bidder where to complete payment.
type AuctionCheckoutStartedData struct {
	AuctionID   models.ID    `json:"auction_id"`
	OrderID     models.ID    `json:"order_id"`
	BidderID    models.ID    `json:"bidder_id"`
	BidderEmail string       `json:"bidder_email"`
	Amount      models.Money `json:"amount"`
	CheckoutURL string       `json:"checkout_url"`
}

// AuctionCheckoutFailedData is the payload of an auction.checkout.failed
// event emitted when a bidder's attempt is abandoned.
type AuctionCheckoutFailedData struct {
	AuctionID   models.ID `json:"auction_id"`
	OrderID     models.ID `json:"order_id"`
	BidderID    models.ID `json:"bidder_id"`
	BidderEmail string    `json:"bidder_email"`
	Reason      string    `json:"reason"`
}

// AuctionCompletedData is the payload of an auction.completed event
type AuctionCompletedData struct {
	AuctionID models.ID    `json:"auction_id"`
	OrderID   models.ID    `json:"order_id"`
	WinnerID  models.ID    `json:"winner_id"`
	Amount    models.Money `json:"amount"`
}

// AuctionInvalidData is the payload of an auction.invalid event emitted when
// every bidder failed to pay.
type AuctionInvalidData struct {
	AuctionID models.ID `json:"auction_id"`
}

// AuctionActivities covers the auction-specific steps of a checkout.
type AuctionActivities struct {
	orders          domain.OrderRepository
	publisher       events.Publisher
	checkoutBaseURL string
}

func NewAuctionActivities(orders domain.OrderRepository, publisher events.Publisher, checkoutBaseURL string) *AuctionActivities {
	return &AuctionActivities{
		orders:          orders,
		publisher:       publisher,
		checkoutBaseURL: checkoutBaseURL,
	}
}

// CreateOrderForWinner persists a pending auction order for the current
// winning bidder.
func (a *AuctionActivities) CreateOrderForWinner(ctx context.Context, auction domain.Auction, bidder domain.Bidder) (*domain.Order, error) {
	order := domain.NewAuctionOrder(auction, bidder)
	if err := a.orders.Create(ctx, order); err != nil {
		return nil, errors.Wrap(err, "creating auction order")
	}
	return order, nil
}

// NotifyWinnerToCheckout emits the event that prompts the winning bidder to
// provide an address and pay.
func (a *AuctionActivities) NotifyWinnerToCheckout(ctx context.Context, auction domain.Auction, order *domain.Order, email string) error {
	event := events.NewEvent(auction.ID, events.AuctionCheckoutStartedEvent, AuctionCheckoutStartedData{
		AuctionID:   auction.ID,
		OrderID:     order.ID,
		BidderID:    order.BuyerID,
		BidderEmail: email,
		Amount:      order.TotalAmount,
		CheckoutURL: a.checkoutBaseURL + "/orders/" + order.ID.String() + "/checkout",
	})
	return a.publisher.Publish(ctx, event)
}

// NotifyWinnerCheckoutFailed emits the event that tells a bidder their
// attempt was abandoned before the next bidder is promoted.
func (a *AuctionActivities) NotifyWinnerCheckoutFailed(ctx context.Context, auctionID, orderID, bidderID models.ID, email, reason string) error {
	event := events.NewEvent(auctionID, events.AuctionCheckoutFailedEvent, AuctionCheckoutFailedData{
		AuctionID:   auctionID,
		OrderID:     orderID,
		BidderID:    bidderID,
		BidderEmail: email,
		Reason:      reason,
	})
	return a.publisher.Publish(ctx, event)
}

// PublishAuctionCompleted emits the terminal success event for the auction.
func (a *AuctionActivities) PublishAuctionCompleted(ctx context.Context, auctionID models.ID, order *domain.Order) error {
	event := events.NewEvent(auctionID, events.AuctionCompletedEvent, AuctionCompletedData{
		AuctionID: auctionID,
		OrderID:   order.ID,
		WinnerID:  order.BuyerID,
		Amount:    order.TotalAmount,
	})
	return a.publisher.Publish(ctx, event)
}

// PublishAuctionInvalid emits the terminal failure event after every bidder
// failed to pay. Emitted exactly once per auction.
func (a *AuctionActivities) PublishAuctionInvalid(ctx context.Context, auctionID models.ID) error {
	event := events.NewEvent(auctionID, events.AuctionInvalidEvent, AuctionInvalidData{AuctionID: auctionID})
	return a.publisher.Publish(ctx, event)
}
