package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bidmarket/checkout-system/orders-service/activities"
	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/orders-service/mocks"
	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
	"github.com/bidmarket/checkout-system/workflow"
)

// orderRepoStub is an in-memory order repository. Workflows create orders
// with generated ids, so tests discover them here instead of pre-arranging
// expectations.
type orderRepoStub struct {
	mu     sync.Mutex
	orders map[models.ID]*domain.Order
}

func newOrderRepoStub() *orderRepoStub {
	return &orderRepoStub{orders: make(map[models.ID]*domain.Order)}
}

func (r *orderRepoStub) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *orderRepoStub) FindByID(_ context.Context, id models.ID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *orderRepoStub) UpdateStatus(_ context.Context, id models.ID, status domain.OrderStatus) error {
	return r.update(id, func(o *domain.Order) { o.Status = status })
}

func (r *orderRepoStub) SetPaymentStatus(_ context.Context, id models.ID, status domain.PaymentStatus) error {
	return r.update(id, func(o *domain.Order) { o.PaymentStatus = status })
}

func (r *orderRepoStub) SetAddress(_ context.Context, id models.ID, address models.Address) error {
	return r.update(id, func(o *domain.Order) { o.ShippingAddress = &address })
}

func (r *orderRepoStub) SetPaymentIntentID(_ context.Context, id models.ID, paymentIntentID string) error {
	return r.update(id, func(o *domain.Order) { o.PaymentIntentID = paymentIntentID })
}

func (r *orderRepoStub) SetClientSecret(_ context.Context, id models.ID, clientSecret string) error {
	return r.update(id, func(o *domain.Order) { o.ClientSecret = clientSecret })
}

func (r *orderRepoStub) update(id models.ID, fn func(*domain.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	fn(order)
	return nil
}

// findPending returns the single pending order, if any. Earlier attempts are
// already terminal by the time a new one is created.
func (r *orderRepoStub) findPending() (*domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.Status == domain.OrderStatusPending {
			cp := *order
			return &cp, true
		}
	}
	return nil, false
}

func (r *orderRepoStub) mustGet(t *testing.T, id models.ID) *domain.Order {
	t.Helper()
	order, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

// eventCollector records everything published so tests assert on the
// outbound event stream.
type eventCollector struct {
	mu     sync.Mutex
	events []*events.Event
}

func (c *eventCollector) add(e *events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCollector) countByType(eventType string) int {
	return len(c.byType(eventType))
}

func (c *eventCollector) byType(eventType string) []*events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []*events.Event
	for _, e := range c.events {
		if e.EventType == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type checkoutEnv struct {
	runtime   *workflow.Runtime
	store     *workflow.MemoryStore
	starter   *CheckoutStarter
	orders    *orderRepoStub
	carts     *mocks.CartService
	inventory *mocks.InventoryService
	payments  *mocks.PaymentService
	users     *mocks.UserService
	products  *mocks.ProductService
	published *eventCollector
}

func newCheckoutEnv(t *testing.T, transactionLimit int64) *checkoutEnv {
	t.Helper()
	env := &checkoutEnv{
		orders:    newOrderRepoStub(),
		carts:     &mocks.CartService{},
		inventory: &mocks.InventoryService{},
		payments:  &mocks.PaymentService{},
		users:     &mocks.UserService{},
		products:  &mocks.ProductService{},
		published: &eventCollector{},
	}

	publisher := &mocks.EventPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		env.published.add(args.Get(1).(*events.Event))
	}).Return(nil)

	checkout := activities.NewCheckoutActivities(env.orders, env.users, env.payments, publisher)
	if transactionLimit > 0 {
		checkout.WithTransactionLimit(transactionLimit)
	}
	fixedPrice := activities.NewFixedPriceActivities(env.orders, env.carts, env.products, env.inventory)
	auction := activities.NewAuctionActivities(env.orders, publisher, "https://checkout.test")

	env.store = workflow.NewMemoryStore()
	env.runtime = workflow.NewRuntime(env.store)
	env.runtime.Register(NewFixedPriceCheckout(checkout, fixedPrice))
	env.runtime.Register(NewAuctionCheckout(checkout, auction))
	env.starter = NewCheckoutStarter(env.runtime, env.orders)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		env.runtime.Shutdown(ctx)
	})
	return env
}

// awaitPendingOrder waits until the running workflow has persisted its order.
func (env *checkoutEnv) awaitPendingOrder(t *testing.T) *domain.Order {
	t.Helper()
	var order *domain.Order
	require.Eventually(t, func() bool {
		got, ok := env.orders.findPending()
		if ok {
			order = got
		}
		return ok
	}, 3*time.Second, 5*time.Millisecond)
	return order
}

func (env *checkoutEnv) awaitWorkflowStatus(t *testing.T, id string, want workflow.Status) *workflow.Instance {
	t.Helper()
	var inst *workflow.Instance
	require.Eventually(t, func() bool {
		got, err := env.runtime.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		inst = got
		return got.Status == want
	}, 3*time.Second, 5*time.Millisecond)
	return inst
}

// stubCatalog wires a two-line cart totalling 150.00: one item at 100.00 and
// two at 25.00.
func (env *checkoutEnv) stubCatalog(userID models.ID) {
	productA := models.GenerateUUID()
	productB := models.GenerateUUID()
	seller := models.GenerateUUID()

	cart := &domain.Cart{
		CartID: models.GenerateUUID(),
		UserID: userID,
		Items: []domain.CartItem{
			{ProductID: productA, Quantity: 1},
			{ProductID: productB, Quantity: 2},
		},
	}
	env.carts.On("GetCart", mock.Anything, userID).Return(cart, nil)
	env.carts.On("DeactivateCart", mock.Anything, userID).Return(nil)
	env.carts.On("ActivateCart", mock.Anything, userID).Return(nil)
	env.carts.On("ClearCart", mock.Anything, userID).Return(nil)

	env.products.On("GetProductsByIDs", mock.Anything, mock.Anything).Return([]domain.Product{
		{ProductID: productA, SellerID: seller, Title: "Vintage camera", Price: models.NewMoney(100_00, "USD")},
		{ProductID: productB, SellerID: seller, Title: "Film roll", Price: models.NewMoney(25_00, "USD")},
	}, nil)
}

func testAddress() models.Address {
	return models.Address{
		Line1:      "100 Market St",
		City:       "San Francisco",
		State:      "CA",
		PostalCode: "94105",
		Country:    "US",
	}
}

func TestFixedPriceCheckoutCompletes(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()
	userID := models.GenerateUUID()

	env.stubCatalog(userID)
	reservations := []models.ID{models.GenerateUUID(), models.GenerateUUID()}
	env.inventory.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(reservations, nil)
	env.inventory.On("Confirm", mock.Anything, mock.Anything, mock.Anything, reservations).Return(nil)
	env.payments.On("Capture", mock.Anything, mock.Anything, "pi_123").Return(nil)
	env.users.On("GetEmail", mock.Anything, userID).Return("buyer@example.com", nil)

	workflowID, err := env.starter.StartFixedPriceCheckout(ctx, &CheckoutRequest{
		UserID:         userID,
		IdempotencyKey: models.GenerateUUID(),
		Address:        testAddress(),
	})
	require.NoError(t, err)

	order := env.awaitPendingOrder(t)
	assert.Equal(t, domain.OrderTypeFixedPrice, order.Type)
	assert.Equal(t, models.NewMoney(150_00, "USD"), order.TotalAmount)

	require.NoError(t, env.starter.NotifyIntentCreated(ctx, order.ID, "pi_123", "secret_123"))
	require.NoError(t, env.starter.NotifyPaymentAuthorized(ctx, order.ID, "pi_123"))

	env.awaitWorkflowStatus(t, workflowID, workflow.StatusCompleted)

	status, err := env.starter.GetCheckoutStatus(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, status.Success)
	assert.True(t, *status.Success)
	assert.Equal(t, workflow.SubStatusSuccess, status.SubStatus)

	final := env.orders.mustGet(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, final.Status)
	assert.Equal(t, domain.PaymentStatusCaptured, final.PaymentStatus)
	assert.Equal(t, "pi_123", final.PaymentIntentID)
	assert.Equal(t, "secret_123", final.ClientSecret)

	env.inventory.AssertCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything, reservations)
	env.inventory.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.payments.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.carts.AssertCalled(t, "ClearCart", mock.Anything, userID)
	assert.Equal(t, 1, env.published.countByType(events.CheckoutSuccessfulEvent))
}

func TestFixedPriceCheckoutCancellationReleasesReservations(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()
	userID := models.GenerateUUID()

	env.stubCatalog(userID)
	reservations := []models.ID{models.GenerateUUID()}
	env.inventory.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(reservations, nil)
	env.inventory.On("Release", mock.Anything, mock.Anything, mock.Anything, reservations).Return(nil)
	env.payments.On("CancelIntent", mock.Anything, mock.Anything, "pi_123").Return(nil)

	workflowID, err := env.starter.StartFixedPriceCheckout(ctx, &CheckoutRequest{
		UserID:         userID,
		IdempotencyKey: models.GenerateUUID(),
		Address:        testAddress(),
	})
	require.NoError(t, err)

	order := env.awaitPendingOrder(t)
	require.NoError(t, env.starter.NotifyIntentCreated(ctx, order.ID, "pi_123", "secret_123"))
	require.NoError(t, env.starter.CancelCheckout(ctx, order.ID, "buyer changed their mind"))

	env.awaitWorkflowStatus(t, workflowID, workflow.StatusCancelled)

	status, err := env.starter.GetCheckoutStatus(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, status.Success)
	assert.False(t, *status.Success)
	assert.Equal(t, workflow.SubStatusCancelled, status.SubStatus)
	assert.Contains(t, status.Message, "changed their mind")

	final := env.orders.mustGet(t, order.ID)
	assert.Equal(t, domain.OrderStatusFailed, final.Status)

	env.inventory.AssertCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, reservations)
	env.payments.AssertCalled(t, "CancelIntent", mock.Anything, order.ID, "pi_123")
	env.payments.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
	env.inventory.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	// The saga reactivates the cart it deactivated
	env.carts.AssertCalled(t, "ActivateCart", mock.Anything, userID)
	env.carts.AssertNotCalled(t, "ClearCart", mock.Anything, mock.Anything)
}

func TestFixedPriceCheckoutRejectsAmountOverLimit(t *testing.T) {
	env := newCheckoutEnv(t, 100_00)
	ctx := context.Background()
	userID := models.GenerateUUID()

	// Cart totals 150.00 against a 100.00 limit
	env.stubCatalog(userID)

	workflowID, err := env.starter.StartFixedPriceCheckout(ctx, &CheckoutRequest{
		UserID:         userID,
		IdempotencyKey: models.GenerateUUID(),
		Address:        testAddress(),
	})
	require.NoError(t, err)

	inst := env.awaitWorkflowStatus(t, workflowID, workflow.StatusCompleted)
	require.NotNil(t, inst.Result)
	assert.False(t, inst.Result.Success)
	assert.Equal(t, workflow.SubStatusFailed, inst.Result.SubStatus)
	assert.Contains(t, inst.Result.Message, "AMOUNT_TOO_LARGE")

	order, ok := func() (*domain.Order, bool) {
		for id := range env.orders.orders {
			return env.orders.mustGet(t, id), true
		}
		return nil, false
	}()
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)

	// The limit check fires before any stock is touched
	env.inventory.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.payments.AssertNotCalled(t, "CancelIntent", mock.Anything, mock.Anything, mock.Anything)
	env.carts.AssertCalled(t, "ActivateCart", mock.Anything, userID)
}

func TestFixedPriceCheckoutIgnoresPrematureAuthorization(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()
	userID := models.GenerateUUID()

	env.stubCatalog(userID)
	reservations := []models.ID{models.GenerateUUID()}
	env.inventory.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(reservations, nil)
	env.inventory.On("Confirm", mock.Anything, mock.Anything, mock.Anything, reservations).Return(nil)
	env.payments.On("Capture", mock.Anything, mock.Anything, "pi_123").Return(nil)
	env.users.On("GetEmail", mock.Anything, userID).Return("buyer@example.com", nil)

	workflowID, err := env.starter.StartFixedPriceCheckout(ctx, &CheckoutRequest{
		UserID:         userID,
		IdempotencyKey: models.GenerateUUID(),
		Address:        testAddress(),
	})
	require.NoError(t, err)

	order := env.awaitPendingOrder(t)

	// An authorization before the intent exists must be dropped, not banked
	require.NoError(t, env.starter.NotifyPaymentAuthorized(ctx, order.ID, "pi_123"))
	time.Sleep(50 * time.Millisecond)
	inst, err := env.runtime.GetStatus(ctx, workflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRunning, inst.Status)

	require.NoError(t, env.starter.NotifyIntentCreated(ctx, order.ID, "pi_123", "secret_123"))
	require.NoError(t, env.starter.NotifyPaymentAuthorized(ctx, order.ID, "pi_123"))

	env.awaitWorkflowStatus(t, workflowID, workflow.StatusCompleted)
	final := env.orders.mustGet(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, final.Status)
}

func TestAuctionCheckoutPromotesNextBidder(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()

	auction := domain.Auction{
		ID:        models.GenerateUUID(),
		ProductID: models.GenerateUUID(),
		SellerID:  models.GenerateUUID(),
		Title:     "Signed first edition",
	}
	first := domain.Bidder{ID: models.GenerateUUID(), Amount: models.NewMoney(500_00, "USD")}
	second := domain.Bidder{ID: models.GenerateUUID(), Amount: models.NewMoney(450_00, "USD")}

	env.payments.On("Capture", mock.Anything, mock.Anything, "pi_456").Return(nil)
	env.users.On("GetEmail", mock.Anything, first.ID).Return("first@example.com", nil)
	env.users.On("GetEmail", mock.Anything, second.ID).Return("second@example.com", nil)

	workflowID, err := env.starter.StartAuctionCheckout(ctx, &AuctionCheckoutRequest{
		Auction: auction,
		Bidders: []domain.Bidder{first, second},
	})
	require.NoError(t, err)

	firstOrder := env.awaitPendingOrder(t)
	assert.Equal(t, first.ID, firstOrder.BuyerID)

	// The winner declines; the runner-up gets their own fresh order
	require.NoError(t, env.starter.CancelCheckout(ctx, firstOrder.ID, "winner declined"))

	var secondOrder *domain.Order
	require.Eventually(t, func() bool {
		got, ok := env.orders.findPending()
		if ok && got.ID != firstOrder.ID {
			secondOrder = got
			return true
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, second.ID, secondOrder.BuyerID)
	assert.Equal(t, second.Amount, secondOrder.TotalAmount)

	require.NoError(t, env.starter.SubmitShippingAddress(ctx, secondOrder.ID, testAddress()))
	require.NoError(t, env.starter.NotifyIntentCreated(ctx, secondOrder.ID, "pi_456", "secret_456"))
	require.NoError(t, env.starter.NotifyPaymentAuthorized(ctx, secondOrder.ID, "pi_456"))

	inst := env.awaitWorkflowStatus(t, workflowID, workflow.StatusCompleted)
	require.NotNil(t, inst.Result)
	assert.True(t, inst.Result.Success)

	assert.Equal(t, domain.OrderStatusFailed, env.orders.mustGet(t, firstOrder.ID).Status)
	final := env.orders.mustGet(t, secondOrder.ID)
	assert.Equal(t, domain.OrderStatusCompleted, final.Status)
	assert.Equal(t, domain.PaymentStatusCaptured, final.PaymentStatus)
	require.NotNil(t, final.ShippingAddress)
	assert.Equal(t, testAddress(), *final.ShippingAddress)

	started := env.published.byType(events.AuctionCheckoutStartedEvent)
	require.Len(t, started, 2)
	assert.Equal(t, "first@example.com", started[0].Data.(activities.AuctionCheckoutStartedData).BidderEmail)
	assert.Equal(t, "second@example.com", started[1].Data.(activities.AuctionCheckoutStartedData).BidderEmail)

	abandoned := env.published.byType(events.AuctionCheckoutFailedEvent)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "first@example.com", abandoned[0].Data.(activities.AuctionCheckoutFailedData).BidderEmail)

	assert.Equal(t, 1, env.published.countByType(events.AuctionCompletedEvent))
	assert.Equal(t, 0, env.published.countByType(events.AuctionInvalidEvent))
}

func TestAuctionCheckoutCompletesFromAuthorizedSignalAlone(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()

	auction := domain.Auction{
		ID:        models.GenerateUUID(),
		ProductID: models.GenerateUUID(),
		SellerID:  models.GenerateUUID(),
		Title:     "Signed first edition",
	}
	winner := domain.Bidder{ID: models.GenerateUUID(), Amount: models.NewMoney(500_00, "USD")}

	env.users.On("GetEmail", mock.Anything, winner.ID).Return("winner@example.com", nil)
	env.payments.On("Capture", mock.Anything, mock.Anything, "pi_789").Return(nil)

	workflowID, err := env.starter.StartAuctionCheckout(ctx, &AuctionCheckoutRequest{
		Auction: auction,
		Bidders: []domain.Bidder{winner},
	})
	require.NoError(t, err)

	order := env.awaitPendingOrder(t)

	// An authorization before the address is provided must be dropped
	require.NoError(t, env.starter.NotifyPaymentAuthorized(ctx, order.ID, "pi_789"))
	time.Sleep(50 * time.Millisecond)
	inst, err := env.runtime.GetStatus(ctx, workflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRunning, inst.Status)

	// Address then authorization completes the attempt; no separate
	// intent-created signal is required, the intent id rides the
	// authorization.
	require.NoError(t, env.starter.SubmitShippingAddress(ctx, order.ID, testAddress()))
	require.NoError(t, env.starter.NotifyPaymentAuthorized(ctx, order.ID, "pi_789"))

	env.awaitWorkflowStatus(t, workflowID, workflow.StatusCompleted)
	final := env.orders.mustGet(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, final.Status)
	assert.Equal(t, domain.PaymentStatusCaptured, final.PaymentStatus)
	assert.Equal(t, "pi_789", final.PaymentIntentID)
	env.payments.AssertCalled(t, "Capture", mock.Anything, order.ID, "pi_789")

	assert.Equal(t, 1, env.published.countByType(events.AuctionCompletedEvent))

	// The auction outcome is announced before the order is closed out
	history, err := env.store.ListDecisions(ctx, workflowID)
	require.NoError(t, err)
	published, completed := -1, -1
	for i, d := range history {
		switch d.Name {
		case "PublishAuctionCompleted":
			published = i
		case "MarkOrderCompleted":
			completed = i
		}
	}
	require.GreaterOrEqual(t, published, 0)
	require.GreaterOrEqual(t, completed, 0)
	assert.Less(t, published, completed)
}

func TestAuctionCheckoutDeclaresInvalidWhenAllBiddersFail(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()

	auction := domain.Auction{
		ID:        models.GenerateUUID(),
		ProductID: models.GenerateUUID(),
		SellerID:  models.GenerateUUID(),
		Title:     "Signed first edition",
	}
	only := domain.Bidder{ID: models.GenerateUUID(), Amount: models.NewMoney(500_00, "USD")}
	env.users.On("GetEmail", mock.Anything, only.ID).Return("only@example.com", nil)

	workflowID, err := env.starter.StartAuctionCheckout(ctx, &AuctionCheckoutRequest{
		Auction: auction,
		Bidders: []domain.Bidder{only},
	})
	require.NoError(t, err)

	order := env.awaitPendingOrder(t)
	require.NoError(t, env.starter.CancelCheckout(ctx, order.ID, "winner declined"))

	inst := env.awaitWorkflowStatus(t, workflowID, workflow.StatusCompleted)
	require.NotNil(t, inst.Result)
	assert.False(t, inst.Result.Success)
	assert.Equal(t, workflow.SubStatusFailed, inst.Result.SubStatus)
	assert.Equal(t, "no bidder completed checkout", inst.Result.Message)

	assert.Equal(t, domain.OrderStatusFailed, env.orders.mustGet(t, order.ID).Status)
	assert.Equal(t, 1, env.published.countByType(events.AuctionInvalidEvent))
}

func TestStarterCollapsesDuplicateStarts(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()
	userID := models.GenerateUUID()
	key := models.GenerateUUID()

	env.stubCatalog(userID)
	env.inventory.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.ID{models.GenerateUUID()}, nil)
	env.inventory.On("Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	env.payments.On("CancelIntent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := &CheckoutRequest{UserID: userID, IdempotencyKey: key, Address: testAddress()}
	firstID, err := env.starter.StartFixedPriceCheckout(ctx, req)
	require.NoError(t, err)

	secondID, err := env.starter.StartFixedPriceCheckout(ctx, req)
	require.ErrorIs(t, err, ErrCheckoutAlreadyStarted)
	assert.Equal(t, firstID, secondID)
}

func TestStarterRejectsAddressForFixedPriceOrder(t *testing.T) {
	env := newCheckoutEnv(t, 0)
	ctx := context.Background()

	address := testAddress()
	order := domain.NewFixedPriceOrder(
		models.GenerateUUID(),
		models.GenerateUUID(),
		models.GenerateUUID(),
		nil,
		models.NewMoney(10_00, "USD"),
		&address,
	)
	require.NoError(t, env.orders.Create(ctx, order))

	err := env.starter.SubmitShippingAddress(ctx, order.ID, testAddress())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auction orders")
}
