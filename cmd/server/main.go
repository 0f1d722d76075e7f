package main

import (
	"context"
	"delivery-coordination-service/internal/adapters/cache"
	"delivery-coordination-service/internal/adapters/events"
	"delivery-coordination-service/internal/adapters/realtime"
	"delivery-coordination-service/internal/adapters/repositories"
	"delivery-coordination-service/internal/adapters/routing"
	"delivery-coordination-service/internal/api"
	"delivery-coordination-service/internal/config"
	"delivery-coordination-service/internal/platform/db"
	"delivery-coordination-service/internal/ports"
	"delivery-coordination-service/internal/services"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type eventPublisher interface {
	ports.EventPublisher
	Close() error
}

// main is the application composition root.
// It wires concrete adapters (Postgres, Redis, ORS, Kafka) behind ports and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	var provider ports.RouteStrategy
	if cfg.ORS.APIKey != "" {
		ors, err := routing.NewORSOptimizationStrategy(cfg.ORS.APIKey, cfg.ORS.BaseURL)
		if err != nil {
			return err
		}
		provider = ors
	} else {
		log.Println("ORS_API_KEY not set; routes use the nearest-neighbor fallback")
	}

	optimizer := services.NewRouteOptimizer(provider, cache.NewRedisRouteCache(rdb, cfg.RouteCacheTTL))
	optimizer.ProviderTimeout = cfg.ORS.Timeout

	publisher, err := newEventPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	changes := realtime.NewRedisPublisher(rdb)
	planner := &services.RoutePlanner{
		Routes:    repositories.NewPostgresRouteRepository(sqlDB),
		Optimizer: optimizer,
		Origin:    cfg.Origin,
		Changes:   changes,
		Events:    publisher,
	}

	router := api.NewRouter(api.Deps{
		Optimizer: optimizer,
		Planner:   planner,
		Tracking:  repositories.NewPostgresTrackingRepository(sqlDB),
		Changes:   changes,
		Realtime:  realtime.NewGateway(rdb),
		Origin:    cfg.Origin,
	})

	// Timeouts are tuned for cold-cache route planning (external API latency).
	// Websocket connections derive from ctx so they end on shutdown.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server listening addr=:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newEventPublisher(cfg *config.Config) (eventPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Println("KAFKA_BROKERS not set; domain events are dropped")
		return events.NopPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	return p, nil
}
