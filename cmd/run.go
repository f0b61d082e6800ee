package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"kuri/config"
	"kuri/database"
	"kuri/domain/entities"
	"kuri/domain/interfaces"
	"kuri/domain/services"
	"kuri/handlers"
	"kuri/infrastructure"
	"kuri/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// randomnessDeliveryDelay separates the correlation token hand-out from the
// value delivery, so settlement always runs through the pending-request path
const randomnessDeliveryDelay = 5 * time.Second

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting kuri pool service...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Load or create the pool aggregate
	poolRepo := repository.NewPoolRepository(db)
	pool, err := poolRepo.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pool: %w", err)
	}
	if pool == nil {
		log.Println("No existing pool found, creating one from configuration...")
		pool, err = entities.NewPool(
			cfg.PoolCreator,
			cfg.PoolAmount,
			cfg.RequiredParticipants,
			entities.IntervalType(cfg.IntervalType),
			cfg.LaunchPeriod,
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create pool: %w", err)
		}
		if err := poolRepo.Save(ctx, pool); err != nil {
			return fmt.Errorf("failed to persist new pool: %w", err)
		}
	}
	log.Printf("Pool %d loaded in state %s", pool.ID, pool.State)

	// Connect to NATS for event publishing
	log.Println("Connecting to NATS...")
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	eventPublisher := infrastructure.NewNATSEventPublisher(natsClient, infrastructure.NewEventSubjectMapper())
	if err := eventPublisher.EnsurePoolEventStream(); err != nil {
		return fmt.Errorf("failed to ensure event stream: %w", err)
	}

	// Wire the ports. The randomness source calls back into the service, so
	// the service variable is captured before it is assigned.
	authz := infrastructure.NewStaticAuthorizer(cfg.AdminIDs, cfg.InitializerIDs, cfg.RandomnessSubscriber)
	funds := infrastructure.NewInMemoryFundsLedger()

	var svc interfaces.PoolService
	randomness := infrastructure.NewLocalRandomnessSource(randomnessDeliveryDelay,
		func(ctx context.Context, token uuid.UUID, values []uint64) error {
			return svc.DeliverRandomness(ctx, cfg.RandomnessSubscriber, token, values)
		})
	svc = services.NewPoolService(pool, authz, funds, randomness, poolRepo, eventPublisher)

	// External randomness providers can answer over NATS as well
	randomnessSub := infrastructure.NewNATSRandomnessSubscriber(natsClient,
		func(ctx context.Context, token uuid.UUID, values []uint64) error {
			return svc.DeliverRandomness(ctx, cfg.RandomnessSubscriber, token, values)
		})
	if err := randomnessSub.Start(); err != nil {
		return fmt.Errorf("failed to subscribe to randomness deliveries: %w", err)
	}

	// Set up the HTTP API
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	handlers.NewHTTPHandler(svc).RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown or a server failure
	log.Printf("Service is running in %s mode...", cfg.Environment)
	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	// Cleanup resources
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := natsClient.Close(); err != nil {
		log.Printf("Error closing NATS connection: %v", err)
	}

	log.Println("Closing database connection...")
	db.Close()

	log.Println("Shutdown completed")
	return nil
}
