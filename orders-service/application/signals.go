package application

import (
	"github.com/bidmarket/checkout-system/shared/models"
)

// Signal payloads delivered to running checkout instances. Signal types reuse
// the inbound event type constants so event handlers forward payloads
// unchanged.

// IntentCreatedSignal reports that the payment provider created an intent for
// the order.
type IntentCreatedSignal struct {
	OrderID         models.ID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
}

// PaymentAuthorizedSignal reports that the buyer authorized the payment.
type PaymentAuthorizedSignal struct {
	OrderID         models.ID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
}

// CancelCheckoutSignal asks a running checkout to abandon and compensate.
type CancelCheckoutSignal struct {
	OrderID models.ID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// AddressProvidedSignal carries the shipping address an auction winner
// submitted.
type AddressProvidedSignal struct {
	OrderID models.ID      `json:"order_id"`
	Address models.Address `json:"address"`
}
