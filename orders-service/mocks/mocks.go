// Package mocks provides testify mocks for the checkout collaborator
// interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
)

// OrderRepository mocks domain.OrderRepository.
type OrderRepository struct {
	mock.Mock
}

func (m *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *OrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *OrderRepository) UpdateStatus(ctx context.Context, id models.ID, status domain.OrderStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *OrderRepository) SetPaymentStatus(ctx context.Context, id models.ID, status domain.PaymentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *OrderRepository) SetAddress(ctx context.Context, id models.ID, address models.Address) error {
	args := m.Called(ctx, id, address)
	return args.Error(0)
}

func (m *OrderRepository) SetPaymentIntentID(ctx context.Context, id models.ID, paymentIntentID string) error {
	args := m.Called(ctx, id, paymentIntentID)
	return args.Error(0)
}

func (m *OrderRepository) SetClientSecret(ctx context.Context, id models.ID, clientSecret string) error {
	args := m.Called(ctx, id, clientSecret)
	return args.Error(0)
}

// CartService mocks domain.CartService.
type CartService struct {
	mock.Mock
}

func (m *CartService) GetCart(ctx context.Context, userID models.ID) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *CartService) DeactivateCart(ctx context.Context, userID models.ID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *CartService) ActivateCart(ctx context.Context, userID models.ID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *CartService) ClearCart(ctx context.Context, userID models.ID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// InventoryService mocks domain.InventoryService.
type InventoryService struct {
	mock.Mock
}

func (m *InventoryService) Reserve(ctx context.Context, idempotencyKey, orderID models.ID, items []domain.ReservationItem) ([]models.ID, error) {
	args := m.Called(ctx, idempotencyKey, orderID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ID), args.Error(1)
}

func (m *InventoryService) Confirm(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error {
	args := m.Called(ctx, idempotencyKey, orderID, reservationIDs)
	return args.Error(0)
}

func (m *InventoryService) Release(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error {
	args := m.Called(ctx, idempotencyKey, orderID, reservationIDs)
	return args.Error(0)
}

// PaymentService mocks domain.PaymentService.
type PaymentService struct {
	mock.Mock
}

func (m *PaymentService) Capture(ctx context.Context, orderID models.ID, paymentIntentID string) error {
	args := m.Called(ctx, orderID, paymentIntentID)
	return args.Error(0)
}

func (m *PaymentService) CancelIntent(ctx context.Context, orderID models.ID, paymentIntentID string) error {
	args := m.Called(ctx, orderID, paymentIntentID)
	return args.Error(0)
}

func (m *PaymentService) Refund(ctx context.Context, idempotencyKey, orderID models.ID, paymentIntentID string) error {
	args := m.Called(ctx, idempotencyKey, orderID, paymentIntentID)
	return args.Error(0)
}

// UserService mocks domain.UserService.
type UserService struct {
	mock.Mock
}

func (m *UserService) GetEmail(ctx context.Context, userID models.ID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// ProductService mocks domain.ProductService.
type ProductService struct {
	mock.Mock
}

func (m *ProductService) GetProductsByIDs(ctx context.Context, ids []models.ID) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

// EventPublisher mocks events.Publisher.
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	callArgs := make([]interface{}, 0, len(evts)+1)
	callArgs = append(callArgs, ctx)
	for _, e := range evts {
		callArgs = append(callArgs, e)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}
