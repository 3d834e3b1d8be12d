package activities

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// FixedPriceActivities covers the cart and inventory steps of a fixed-price
// checkout.
type FixedPriceActivities struct {
	orders    domain.OrderRepository
	carts     domain.CartService
	products  domain.ProductService
	inventory domain.InventoryService
}

func NewFixedPriceActivities(
	orders domain.OrderRepository,
	carts domain.CartService,
	products domain.ProductService,
	inventory domain.InventoryService,
) *FixedPriceActivities {
	return &FixedPriceActivities{
		orders:    orders,
		carts:     carts,
		products:  products,
		inventory: inventory,
	}
}

// DeactivateCart locks the cart so the buyer cannot mutate it mid-checkout.
func (a *FixedPriceActivities) DeactivateCart(ctx context.Context, userID models.ID) error {
	return a.carts.DeactivateCart(ctx, userID)
}

// ActivateCart unlocks the cart. Used on cleanup and compensation.
func (a *FixedPriceActivities) ActivateCart(ctx context.Context, userID models.ID) error {
	return a.carts.ActivateCart(ctx, userID)
}

// ClearCart empties the cart after a successful checkout.
func (a *FixedPriceActivities) ClearCart(ctx context.Context, userID models.ID) error {
	return a.carts.ClearCart(ctx, userID)
}

// GetCart fetches the locked cart snapshot the checkout prices against. An
// empty cart is a business error.
func (a *FixedPriceActivities) GetCart(ctx context.Context, userID models.ID) (*domain.Cart, error) {
	cart, err := a.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching cart")
	}
	if len(cart.Items) == 0 {
		return nil, workflow.NewBusinessError("EMPTY_CART", "cannot check out an empty cart")
	}
	return cart, nil
}

// CreateOrder prices the cart against the catalog and persists a pending
// fixed-price order.
func (a *FixedPriceActivities) CreateOrder(
	ctx context.Context,
	buyerID, idempotencyKey models.ID,
	cart *domain.Cart,
	address models.Address,
) (*domain.Order, error) {
	ids := make([]models.ID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := a.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "fetching products")
	}
	byID := make(map[models.ID]domain.Product, len(products))
	for _, p := range products {
		byID[p.ProductID] = p
	}

	var (
		items []domain.OrderItem
		total models.Money
	)
	for _, item := range cart.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, workflow.NewBusinessError(
				"PRODUCT_NOT_FOUND",
				"cart references a product that no longer exists: "+item.ProductID.String(),
			)
		}
		subtotal := models.NewMoney(product.Price.Amount*int64(item.Quantity), product.Price.Currency)
		items = append(items, domain.OrderItem{
			ProductID:   product.ProductID,
			SellerID:    product.SellerID,
			ProductName: product.Title,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
			Subtotal:    subtotal,
		})
		if total.IsZero() {
			total = subtotal
			continue
		}
		total, err = total.Add(subtotal)
		if err != nil {
			return nil, workflow.NewBusinessError("CURRENCY_MISMATCH", "cart mixes currencies")
		}
	}

	var shipping *models.Address
	if !address.IsZero() {
		shipping = &address
	}
	order := domain.NewFixedPriceOrder(buyerID, cart.CartID, idempotencyKey, items, total, shipping)
	if err := a.orders.Create(ctx, order); err != nil {
		return nil, errors.Wrap(err, "creating order")
	}
	return order, nil
}

// ReserveInventory places reservations for every order line and returns the
// reservation ids the confirm/release steps act on.
func (a *FixedPriceActivities) ReserveInventory(
	ctx context.Context,
	idempotencyKey, orderID models.ID,
	cart *domain.Cart,
) ([]models.ID, error) {
	items := make([]domain.ReservationItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	ids, err := a.inventory.Reserve(ctx, idempotencyKey, orderID, items)
	if err != nil {
		return nil, errors.Wrap(err, "reserving inventory")
	}
	return ids, nil
}

// ConfirmReservations turns reservations into committed stock decrements.
func (a *FixedPriceActivities) ConfirmReservations(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error {
	if err := a.inventory.Confirm(ctx, idempotencyKey, orderID, reservationIDs); err != nil {
		return errors.Wrap(err, "confirming reservations")
	}
	return nil
}

// ReleaseReservations returns reserved stock during compensation.
func (a *FixedPriceActivities) ReleaseReservations(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error {
	if err := a.inventory.Release(ctx, idempotencyKey, orderID, reservationIDs); err != nil {
		return errors.Wrap(err, "releasing reservations")
	}
	return nil
}
