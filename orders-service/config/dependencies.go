package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bidmarket/checkout-system/orders-service/activities"
	"github.com/bidmarket/checkout-system/orders-service/application"
	"github.com/bidmarket/checkout-system/orders-service/handlers"
	"github.com/bidmarket/checkout-system/orders-service/infrastructure"
	sharedinfra "github.com/bidmarket/checkout-system/shared/infrastructure"
	"github.com/bidmarket/checkout-system/shared/telemetry"
	"github.com/bidmarket/checkout-system/workflow"
)

// workflowShutdownTimeout bounds how long Close waits for running instances
// to reach a suspension point.
const workflowShutdownTimeout = 30 * time.Second

type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Repositories
	OrderRepository *infrastructure.PostgresOrderRepository
	WorkflowStore   *workflow.PostgresStore

	// Workflow runtime
	Runtime *workflow.Runtime

	// Application
	CheckoutStarter *application.CheckoutStarter

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	OrderEventHandlers *handlers.OrderEventHandlers

	// Infrastructure
	EventPublisher  *sharedinfra.SNSPublisherAdapter
	EventJournal    *sharedinfra.PostgresEventJournal
	EventSubscriber *sharedinfra.SQSSubscriberAdapter

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize telemetry first
	if config.Telemetry.Enabled {
		telConfig := telemetry.OrdersServiceConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
		tel, telemetryShutdown, err := telemetry.Init(ctx, telConfig)
		if err != nil {
			log.Printf("Failed to initialize telemetry: %v", err)
			// Continue without telemetry rather than failing
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	// Initialize database
	db, err := sqlx.Connect("postgres", config.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	deps.DB = db

	// Initialize AWS infrastructure
	eventPublisher, err := sharedinfra.NewSNSPublisherAdapter(config.AWS.SNSTopicArn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SNS publisher: %w", err)
	}
	deps.EventPublisher = eventPublisher

	// Every outbound event is journalled before it leaves the service
	deps.EventJournal = sharedinfra.NewPostgresEventJournal(db)
	publisher := sharedinfra.NewJournalingPublisher(deps.EventJournal, eventPublisher)

	eventSubscriber, err := sharedinfra.NewSQSSubscriberAdapter(config.AWS.SQSQueueURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS subscriber: %w", err)
	}
	deps.EventSubscriber = eventSubscriber

	// Initialize repositories
	deps.OrderRepository = infrastructure.NewPostgresOrderRepository(db)
	deps.WorkflowStore = workflow.NewPostgresStore(db)

	// Initialize collaborator clients
	carts := infrastructure.NewHTTPCartService(config.Services.CartURL)
	inventory := infrastructure.NewHTTPInventoryService(config.Services.InventoryURL)
	payments := infrastructure.NewHTTPPaymentService(config.Services.PaymentsURL)
	users := infrastructure.NewHTTPUserService(config.Services.UsersURL)
	products := infrastructure.NewHTTPProductService(config.Services.CatalogURL)

	// Initialize activities
	checkoutActivities := activities.NewCheckoutActivities(deps.OrderRepository, users, payments, publisher)
	fixedPriceActivities := activities.NewFixedPriceActivities(deps.OrderRepository, carts, products, inventory)
	auctionActivities := activities.NewAuctionActivities(deps.OrderRepository, publisher, config.CheckoutURL)

	// Initialize workflow runtime and register definitions
	deps.Runtime = workflow.NewRuntime(deps.WorkflowStore)
	deps.Runtime.Register(application.NewFixedPriceCheckout(checkoutActivities, fixedPriceActivities))
	deps.Runtime.Register(application.NewAuctionCheckout(checkoutActivities, auctionActivities))

	// Resume instances left running by a previous process
	if err := deps.Runtime.Resume(ctx); err != nil {
		return nil, fmt.Errorf("failed to resume workflows: %w", err)
	}

	// Initialize application services
	deps.CheckoutStarter = application.NewCheckoutStarter(deps.Runtime, deps.OrderRepository)

	// Initialize handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(deps.CheckoutStarter, deps.EventJournal)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(deps.CheckoutStarter)

	return deps, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.Runtime != nil {
		ctx, cancel := context.WithTimeout(context.Background(), workflowShutdownTimeout)
		if err := d.Runtime.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down workflow runtime: %w", err))
		}
		cancel()
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.EventPublisher != nil {
		if err := d.EventPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}

	if d.EventSubscriber != nil {
		if err := d.EventSubscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event subscriber: %w", err))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
