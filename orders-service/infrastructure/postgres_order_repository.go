package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/models"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL
//
// Schema:
//
//	CREATE TABLE orders (
//	    id                UUID PRIMARY KEY,
//	    buyer_id          UUID NOT NULL,
//	    type              TEXT NOT NULL,
//	    status            TEXT NOT NULL,
//	    payment_status    TEXT NOT NULL,
//	    items             JSONB NOT NULL,
//	    total_amount      BIGINT NOT NULL,
//	    currency          TEXT NOT NULL,
//	    cart_id           UUID,
//	    auction_id        UUID,
//	    idempotency_key   UUID,
//	    shipping_address  JSONB,
//	    payment_intent_id TEXT,
//	    client_secret     TEXT,
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    updated_at        TIMESTAMPTZ NOT NULL,
//	    deleted_at        TIMESTAMPTZ
//	);
type PostgresOrderRepository struct {
	db *sqlx.DB
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// postgresOrder represents an order in the database
type postgresOrder struct {
	ID              string     `db:"id"`
	BuyerID         string     `db:"buyer_id"`
	Type            string     `db:"type"`
	Status          string     `db:"status"`
	PaymentStatus   string     `db:"payment_status"`
	Items           []byte     `db:"items"`
	TotalAmount     int64      `db:"total_amount"`
	Currency        string     `db:"currency"`
	CartID          *string    `db:"cart_id"`
	AuctionID       *string    `db:"auction_id"`
	IdempotencyKey  *string    `db:"idempotency_key"`
	ShippingAddress []byte     `db:"shipping_address"`
	PaymentIntentID *string    `db:"payment_intent_id"`
	ClientSecret    *string    `db:"client_secret"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
}

// Create inserts a new order
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, buyer_id, type, status, payment_status, items, total_amount,
			currency, cart_id, auction_id, idempotency_key, shipping_address,
			payment_intent_id, client_secret, created_at, updated_at
		) VALUES (
			:id, :buyer_id, :type, :status, :payment_status, :items, :total_amount,
			:currency, :cart_id, :auction_id, :idempotency_key, :shipping_address,
			:payment_intent_id, :client_secret, :created_at, :updated_at
		)`

	pgOrder, err := r.toPostgres(order)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, query, pgOrder); err != nil {
		return errors.Wrap(err, "failed to insert order")
	}

	return nil
}

// FindByID finds an order by ID
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	query := `
		SELECT id, buyer_id, type, status, payment_status, items, total_amount,
			   currency, cart_id, auction_id, idempotency_key, shipping_address,
			   payment_intent_id, client_secret, created_at, updated_at, deleted_at
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL`

	var pgOrder postgresOrder
	err := r.db.GetContext(ctx, &pgOrder, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "failed to find order")
	}

	return r.toDomain(&pgOrder)
}

// UpdateStatus sets the order status
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id models.ID, status domain.OrderStatus) error {
	return r.updateField(ctx, id, "status", string(status))
}

// SetPaymentStatus sets the payment status
func (r *PostgresOrderRepository) SetPaymentStatus(ctx context.Context, id models.ID, status domain.PaymentStatus) error {
	return r.updateField(ctx, id, "payment_status", string(status))
}

// SetAddress sets the shipping address
func (r *PostgresOrderRepository) SetAddress(ctx context.Context, id models.ID, address models.Address) error {
	raw, err := json.Marshal(address)
	if err != nil {
		return errors.Wrap(err, "failed to marshal address")
	}
	return r.updateField(ctx, id, "shipping_address", raw)
}

// SetPaymentIntentID sets the payment intent id
func (r *PostgresOrderRepository) SetPaymentIntentID(ctx context.Context, id models.ID, paymentIntentID string) error {
	return r.updateField(ctx, id, "payment_intent_id", paymentIntentID)
}

// SetClientSecret sets the client secret
func (r *PostgresOrderRepository) SetClientSecret(ctx context.Context, id models.ID, clientSecret string) error {
	return r.updateField(ctx, id, "client_secret", clientSecret)
}

func (r *PostgresOrderRepository) updateField(ctx context.Context, id models.ID, column string, value interface{}) error {
	query := `UPDATE orders SET ` + column + ` = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, value, time.Now(), id.String())
	if err != nil {
		return errors.Wrapf(err, "failed to update order %s", column)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// toPostgres converts domain order to postgres model
func (r *PostgresOrderRepository) toPostgres(order *domain.Order) (*postgresOrder, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal order items")
	}

	pgOrder := &postgresOrder{
		ID:            order.ID.String(),
		BuyerID:       order.BuyerID.String(),
		Type:          string(order.Type),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Items:         items,
		TotalAmount:   order.TotalAmount.Amount,
		Currency:      order.TotalAmount.Currency,
		CreatedAt:     order.Timestamps.CreatedAt,
		UpdatedAt:     order.Timestamps.UpdatedAt,
		DeletedAt:     order.Timestamps.DeletedAt,
	}
	if !order.CartID.IsZero() {
		v := order.CartID.String()
		pgOrder.CartID = &v
	}
	if !order.AuctionID.IsZero() {
		v := order.AuctionID.String()
		pgOrder.AuctionID = &v
	}
	if !order.IdempotencyKey.IsZero() {
		v := order.IdempotencyKey.String()
		pgOrder.IdempotencyKey = &v
	}
	if order.ShippingAddress != nil {
		raw, err := json.Marshal(order.ShippingAddress)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal shipping address")
		}
		pgOrder.ShippingAddress = raw
	}
	if order.PaymentIntentID != "" {
		v := order.PaymentIntentID
		pgOrder.PaymentIntentID = &v
	}
	if order.ClientSecret != "" {
		v := order.ClientSecret
		pgOrder.ClientSecret = &v
	}

	return pgOrder, nil
}

// toDomain converts postgres model to domain order
func (r *PostgresOrderRepository) toDomain(pgOrder *postgresOrder) (*domain.Order, error) {
	id, err := models.NewID(pgOrder.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}

	buyerID, err := models.NewID(pgOrder.BuyerID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid buyer ID")
	}

	var items []domain.OrderItem
	if len(pgOrder.Items) > 0 {
		if err := json.Unmarshal(pgOrder.Items, &items); err != nil {
			return nil, errors.Wrap(err, "invalid order items")
		}
	}

	order := &domain.Order{
		ID:            id,
		BuyerID:       buyerID,
		Type:          domain.OrderType(pgOrder.Type),
		Status:        domain.OrderStatus(pgOrder.Status),
		PaymentStatus: domain.PaymentStatus(pgOrder.PaymentStatus),
		Items:         items,
		TotalAmount:   models.NewMoney(pgOrder.TotalAmount, pgOrder.Currency),
		Timestamps: models.Timestamps{
			CreatedAt: pgOrder.CreatedAt,
			UpdatedAt: pgOrder.UpdatedAt,
			DeletedAt: pgOrder.DeletedAt,
		},
	}
	if pgOrder.CartID != nil {
		order.CartID = models.ID(*pgOrder.CartID)
	}
	if pgOrder.AuctionID != nil {
		order.AuctionID = models.ID(*pgOrder.AuctionID)
	}
	if pgOrder.IdempotencyKey != nil {
		order.IdempotencyKey = models.ID(*pgOrder.IdempotencyKey)
	}
	if len(pgOrder.ShippingAddress) > 0 {
		var address models.Address
		if err := json.Unmarshal(pgOrder.ShippingAddress, &address); err != nil {
			return nil, errors.Wrap(err, "invalid shipping address")
		}
		order.ShippingAddress = &address
	}
	if pgOrder.PaymentIntentID != nil {
		order.PaymentIntentID = *pgOrder.PaymentIntentID
	}
	if pgOrder.ClientSecret != nil {
		order.ClientSecret = *pgOrder.ClientSecret
	}

	return order, nil
}
