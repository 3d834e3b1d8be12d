package domain

import "github.com/bidmarket/checkout-system/shared/models"

// Auction is the ended auction the checkout settles
type Auction struct {
	ID        models.ID `json:"id"`
	ProductID models.ID `json:"product_id"`
	SellerID  models.ID `json:"seller_id"`
	Title     string    `json:"title"`
}

// Bidder is one auction participant, ordered by bid from highest to lowest
type Bidder struct {
	ID     models.ID    `json:"id"`
	Amount models.Money `json:"amount"`
}
