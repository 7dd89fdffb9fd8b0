package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waroenk/commerce/internal/address"
	cartcache "github.com/waroenk/commerce/internal/cart/cache"
	cartrepo "github.com/waroenk/commerce/internal/cart/repository"
	cartservice "github.com/waroenk/commerce/internal/cart/service"
	"github.com/waroenk/commerce/internal/checkout/publisher"
	checkoutrepo "github.com/waroenk/commerce/internal/checkout/repository"
	checkoutservice "github.com/waroenk/commerce/internal/checkout/service"
	"github.com/waroenk/commerce/internal/identity"
	"github.com/waroenk/commerce/internal/inventory"
	"github.com/waroenk/commerce/internal/payment"
	"github.com/waroenk/commerce/internal/server"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDBName     string
	RedisAddr       string
	RedisPassword   string
	PostgresHost    string
	PostgresPort    int
	PostgresUser    string
	PostgresPass    string
	PostgresDB      string
	MigrationsPath  string
	KafkaBrokers    []string
	ReservationTTL  time.Duration
	PaymentTimeout  time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	SeedStock       string
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "commercedb"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		PostgresHost:    getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:    getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:    getEnv("POSTGRES_USER", "postgres"),
		PostgresPass:    getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:      getEnv("POSTGRES_DB", "checkoutdb"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations"),
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		ReservationTTL:  getEnvDuration("RESERVATION_TTL", 15*time.Minute),
		PaymentTimeout:  getEnvDuration("PAYMENT_TIMEOUT", 5*time.Second),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SeedStock:       getEnv("SEED_STOCK", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	// MongoDB holds carts and guest tombstones.
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	cartRepo := cartrepo.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create MongoDB indexes: %v", err)
	}
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	// Postgres holds checkout sessions and their outbox.
	pgCreds := &checkoutrepo.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPass,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	sessionRepo, err := checkoutrepo.NewPostgresRepository(pgCreds)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer sessionRepo.Close()
	if err := sessionRepo.RunMigrations(pgCreds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Connected to Postgres at %s:%d", cfg.PostgresHost, cfg.PostgresPort)

	carts := cartservice.NewCartService(cartRepo, cartcache.NewRedisCache(redisClient))

	locks := inventory.NewMemoryStore()
	defer locks.Close()
	seedStock(ctx, locks, cfg.SeedStock)

	addresses := address.NewMemoryStore()
	payments := payment.NewBreaker(payment.NewStub(payment.RandomStatus{}))

	checkouts := checkoutservice.NewCheckoutService(
		checkoutservice.Config{
			ReservationTTL: cfg.ReservationTTL,
			PaymentTimeout: cfg.PaymentTimeout,
		},
		sessionRepo, carts, locks, addresses, payments,
	)
	defer checkouts.Close()

	pollerCtx, stopPoller := context.WithCancel(ctx)
	poller := publisher.NewOutboxPoller(sessionRepo, cfg.KafkaBrokers...)
	go poller.Run(pollerCtx)

	verifier := identity.NewStaticVerifier(parseTokens(getEnv("AUTH_TOKENS", "")))

	metrics := server.NewMetrics("api")
	router := server.NewRouter(
		verifier,
		server.NewCartHandler(carts),
		server.NewCheckoutHandler(checkouts),
		metrics,
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Commerce server starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	stopPoller()
	mongoDB.Client().Disconnect(shutdownCtx)
	log.Println("server stopped")
}

// seedStock loads on-hand stock from "sku=qty,sku=qty" pairs.
func seedStock(ctx context.Context, locks inventory.LockManager, seed string) {
	if seed == "" {
		return
	}
	for _, pair := range strings.Split(seed, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		qty, err := strconv.Atoi(parts[1])
		if err != nil {
			log.Printf("invalid seed stock entry %q: %v", pair, err)
			continue
		}
		if err := locks.SetStock(ctx, parts[0], qty); err != nil {
			log.Printf("failed to seed stock for %s: %v", parts[0], err)
		}
	}
}

// parseTokens loads the static auth table from "token:userID,token:userID".
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			tokens[parts[0]] = parts[1]
		}
	}
	return tokens
}
