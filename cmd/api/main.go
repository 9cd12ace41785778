package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/example/coldchain-ledger/internal/api"
	"github.com/example/coldchain-ledger/internal/auth"
	"github.com/example/coldchain-ledger/internal/command"
	"github.com/example/coldchain-ledger/internal/domain/product"
	"github.com/example/coldchain-ledger/internal/domain/shipment"
	"github.com/example/coldchain-ledger/internal/domain/user"
	"github.com/example/coldchain-ledger/internal/infrastructure/kafka"
	"github.com/example/coldchain-ledger/internal/infrastructure/store"
	"github.com/example/coldchain-ledger/internal/oracle"
	"github.com/example/coldchain-ledger/internal/projection"
	"github.com/example/coldchain-ledger/internal/query"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "coldchain-events")
	postgresConnStr := os.Getenv("DATABASE_URL")
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("[API] JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("[API] JWT_SECRET must be at least 32 characters long")
	}
	openWeatherKey := os.Getenv("OPENWEATHER_API_KEY")

	log.Println("[API] ========================================")
	log.Println("[API] Cold-Chain Ledger - CQRS Mode")
	log.Println("[API] ========================================")
	log.Printf("[API] Kafka: %v", kafkaBrokers)
	log.Printf("[API] Topic: %s", kafkaTopic)

	// Initialize Kafka producer
	producer := kafka.NewProducer(kafkaBrokers, kafkaTopic)
	defer producer.Close()

	// Initialize stores: PostgreSQL when DATABASE_URL is set, in-memory otherwise
	var (
		eventStore store.EventStoreInterface
		readStore  store.ReadStoreInterface
	)
	if postgresConnStr != "" {
		db, err := store.ConnectPostgres(postgresConnStr)
		if err != nil {
			log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		if err := store.EnsureSchema(db); err != nil {
			log.Fatalf("[API] Failed to ensure schema: %v", err)
		}
		eventStore = store.NewPostgresEventStore(db, producer)
		readStore = store.NewPostgresReadStore(db)
		log.Println("[API] Write DB: PostgreSQL (events table)")
		log.Println("[API] Read DB:  PostgreSQL (read_models table)")
	} else {
		eventStore = store.NewEventStore(producer)
		readStore = store.NewReadStore()
		log.Println("[API] Stores: in-memory (set DATABASE_URL for PostgreSQL)")
	}

	// Temperature oracle: live OpenWeather when a key is present,
	// deterministic estimates otherwise
	var oracleClient *oracle.Client
	var temps oracle.TemperatureSource
	if openWeatherKey != "" {
		oracleClient = oracle.NewClient(openWeatherKey)
		temps = oracleClient
		log.Println("[API] Oracle: OpenWeather")
	} else {
		log.Println("[API] Oracle: deterministic estimates (set OPENWEATHER_API_KEY for live data)")
	}

	// Initialize domain services
	productSvc := product.NewService(eventStore)
	shipmentSvc := shipment.NewService(eventStore, temps)
	userSvc := user.NewService(eventStore)

	// Initialize JWT service
	jwtService := auth.NewJWTService(
		jwtSecret,
		15*time.Minute, // Access token expiry
		7*24*time.Hour, // Refresh token expiry (7 days)
	)

	// Action gate secrets for the three privileged mutations
	actionGate, err := auth.NewActionGate(map[string]string{
		auth.ActionRegisterProduct: getEnv("ACTION_SECRET_REGISTER_PRODUCT", "manufacturer123"),
		auth.ActionFundEscrow:      getEnv("ACTION_SECRET_FUND_ESCROW", "escrow456"),
		auth.ActionAddEvent:        getEnv("ACTION_SECRET_ADD_EVENT", "logistics789"),
	})
	if err != nil {
		log.Fatalf("[API] Failed to initialize action gate: %v", err)
	}

	// Initialize handlers
	cmdHandler := command.NewHandler(productSvc, shipmentSvc)
	queryHandler := query.NewHandler(readStore)

	// Initialize projector
	projector := projection.NewProjector(readStore)

	// Replay existing events to build read models
	log.Println("[API] Replaying events...")
	replayEvents(eventStore, projector)

	// Start Kafka consumer for new events (async projection)
	consumer := kafka.NewConsumer(kafkaBrokers, kafkaTopic, "api-projector")
	defer consumer.Close()

	// Use WaitGroup to ensure consumer is ready
	var wg sync.WaitGroup
	consumerReady := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("[API] Starting Kafka consumer (async projection)...")
		close(consumerReady) // Signal that consumer is starting
		if err := consumer.Consume(ctx, projector.HandleEvent); err != nil {
			if ctx.Err() == nil {
				log.Printf("[API] Projector error: %v", err)
			}
		}
	}()

	// Wait for consumer to start
	<-consumerReady
	// Give Kafka consumer a moment to establish connection
	time.Sleep(500 * time.Millisecond)
	log.Println("[API] Kafka consumer ready")

	// Optional demo data for local runs
	if getEnv("SEED_DEMO_DATA", "") == "true" {
		seedDemoData(ctx, userSvc, productSvc, shipmentSvc)
	}

	// Initialize API
	handlers := api.NewHandlers(cmdHandler, queryHandler, oracleClient, actionGate)
	authHandlers := api.NewAuthHandlers(userSvc, jwtService, queryHandler)
	router := api.NewRouter(api.RouterConfig{
		Handlers:     handlers,
		AuthHandlers: authHandlers,
		JWTService:   jwtService,
		ActionGate:   actionGate,
	})

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: router,
	}

	go func() {
		log.Println("[API] ========================================")
		log.Printf("[API] Server started on %s", server.Addr)
		log.Println("[API] ========================================")
		log.Println("[API] Note: Using ASYNC projection")
		log.Println("[API] Read model updates may have slight delay")
		log.Println("[API] ========================================")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel() // Cancel context to stop consumer

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	wg.Wait() // Wait for consumer to finish
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// replayEvents replays all stored events to rebuild read models
func replayEvents(eventStore store.EventStoreInterface, projector *projection.Projector) {
	events := eventStore.GetAllEvents()
	log.Printf("[API] Replaying %d events from event store...", len(events))

	ctx := context.Background()
	for _, event := range events {
		data, _ := event.MarshalJSON()
		if err := projector.HandleEvent(ctx, []byte(event.AggregateID), data); err != nil {
			log.Printf("[API] Error replaying event %s: %v", event.ID, err)
		}
	}
	log.Println("[API] Event replay completed - read models rebuilt")
}
