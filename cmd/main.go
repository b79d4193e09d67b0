/**
 * @description
 * This is the main entry point for the wallet-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Background sweep scheduling.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/paymentclient: Client for the external payment provider.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/pouchpay/wallet-service/internal/api"
	"github.com/pouchpay/wallet-service/internal/app"
	"github.com/pouchpay/wallet-service/internal/config"
	"github.com/pouchpay/wallet-service/internal/store"
	"github.com/pouchpay/wallet-service/pkg/paymentclient"
	wsrabbit "github.com/pouchpay/wallet-service/pkg/rabbitmq"
)

func main() {
	// Load an optional .env file before viper reads the environment.
	if err := godotenv.Load(); err == nil {
		log.Println("level=info component=bootstrap msg=\".env file loaded\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Pool sizing for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish notification events. The
	// service degrades to a no-op publisher when the broker is unreachable.
	var producer wsrabbit.Publisher
	eventProducer, err := wsrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &wsrabbit.EventProducerFallback{}
	} else {
		producer = eventProducer
		defer eventProducer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the external payment provider.
	paymentClient := paymentclient.NewClient(
		cfg.PaymentAPIBaseURL,
		cfg.PaymentAPIKey,
		time.Duration(cfg.PaymentTimeoutSeconds)*time.Second,
	)

	// Connect to Redis for the abuse-protection attempt store. A missing or
	// unreachable Redis leaves the guard in fail-open mode.
	var attemptStore app.AttemptStore
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; abuse protection degraded\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; abuse protection degraded\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; abuse protection degraded\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				attemptStore = app.NewRedisAttemptStore(redisClient, cfg.RedisKeyPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	walletService := app.NewService(
		repository,
		paymentClient,
		producer,
		time.Duration(cfg.CodeTTLMinutes)*time.Minute,
		cfg.CodeLength,
	)

	guard := app.NewGuard(attemptStore, app.GuardConfig{
		LoginThreshold:  cfg.LockoutThreshold,
		LockoutDuration: time.Duration(cfg.LockoutSeconds) * time.Second,
		RequestLimit:    cfg.RateLimitPerMinute,
		RequestWindow:   time.Minute,
		BlockDuration:   time.Duration(cfg.RateLimitBlockSeconds) * time.Second,
	})

	// Initialize the API handlers.
	walletHandlers := api.NewWalletHandlers(
		walletService,
		guard,
		cfg.JWTSecret,
		time.Duration(cfg.JWTTTLMinutes)*time.Minute,
	)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.WalletRoutes(walletHandlers, guard, cfg.JWTSecret))

	// Background sweep of expired verification codes as a TTL backstop.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CodeSweepCron, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		removed, sweepErr := walletService.SweepExpiredCodes(sweepCtx)
		if sweepErr != nil {
			log.Printf("level=error component=scheduler msg=\"code sweep failed\" err=%v", sweepErr)
			return
		}
		if removed > 0 {
			log.Printf("level=info component=scheduler msg=\"expired codes swept\" removed=%d", removed)
		}
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"code sweep schedule invalid\" cron=%q err=%v", cfg.CodeSweepCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
