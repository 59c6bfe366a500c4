package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/adapter/memory"
	"github.com/YelzhanWeb/restaurant/internal/adapter/mongodb"
	"github.com/YelzhanWeb/restaurant/internal/adapter/postgres"
	"github.com/YelzhanWeb/restaurant/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/restaurant/internal/adapter/redis"
	"github.com/YelzhanWeb/restaurant/internal/app/broadcast"
	"github.com/YelzhanWeb/restaurant/internal/app/history"
	"github.com/YelzhanWeb/restaurant/internal/app/order"
	"github.com/YelzhanWeb/restaurant/internal/app/outbox"
	"github.com/YelzhanWeb/restaurant/internal/app/review"
	"github.com/YelzhanWeb/restaurant/internal/app/tracking"
	"github.com/YelzhanWeb/restaurant/internal/config"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"

	amqpAdapter "github.com/YelzhanWeb/restaurant/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/restaurant/internal/adapter/http"
)

func main() {
	mode := flag.String("mode", "order-service", "Service mode: order-service, notification-subscriber, archive-reconciler")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	lgr, err := logger.New(*mode, cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer lgr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, lgr)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, lgr)
	case "archive-reconciler":
		err = runArchiveReconciler(ctx, cfg, lgr)
	default:
		err = fmt.Errorf("invalid mode: %s", *mode)
	}

	if err != nil {
		lgr.Error("service_failed", "Service exited with error", "shutdown", map[string]interface{}{"mode": *mode}, err)
		lgr.Sync()
		os.Exit(1)
	}
}

// stores groups the repositories of one storage driver.
type stores struct {
	orders    interfaces.OrderRepository
	histories interfaces.HistoryRepository
	reviews   interfaces.ReviewRepository
	ratings   interfaces.RatingRepository
	outbox    interfaces.OutboxRepository
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config, lgr logger.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case "mongo":
		client, db, err := mongodb.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		lgr.Info("db_connected", "Connected to MongoDB", "startup", map[string]interface{}{
			"database": cfg.Mongo.Database,
		})
		return &stores{
			orders:    mongodb.NewOrderRepository(db),
			histories: mongodb.NewHistoryRepository(db),
			reviews:   mongodb.NewReviewRepository(db),
			ratings:   mongodb.NewRatingRepository(db),
			outbox:    mongodb.NewOutboxRepository(db),
			close: func() {
				if err := mongodb.Disconnect(client); err != nil {
					lgr.Error("db_disconnect_failed", "Failed to disconnect from MongoDB", "shutdown", nil, err)
				}
			},
		}, nil

	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
			"host": cfg.Database.Host,
			"db":   cfg.Database.Database,
		})
		return &stores{
			orders:    postgres.NewOrderRepository(db),
			histories: postgres.NewHistoryRepository(db),
			reviews:   postgres.NewReviewRepository(db),
			ratings:   postgres.NewRatingRepository(db),
			outbox:    postgres.NewOutboxRepository(db),
			close:     db.Close,
		}, nil
	}

	lgr.Info("db_memory", "Using in-memory storage, data is lost on exit", "startup", nil)
	return &stores{
		orders:    memory.NewOrderRepository(),
		histories: memory.NewHistoryRepository(),
		reviews:   memory.NewReviewRepository(),
		ratings:   memory.NewRatingRepository(),
		outbox:    memory.NewOutboxRepository(),
		close:     func() {},
	}, nil
}

func openRelay(ctx context.Context, cfg *config.Config, lgr logger.Logger) (interfaces.EventRelay, error) {
	switch cfg.Broadcast.Relay {
	case "rabbitmq":
		conn, err := rabbitmq.Connect(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
			"host":     cfg.RabbitMQ.Host,
			"exchange": cfg.RabbitMQ.Exchange,
		})
		return rabbitmq.NewRelay(conn, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Prefetch, lgr), nil

	case "redis":
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		lgr.Info("redis_connected", "Connected to Redis", "startup", map[string]interface{}{
			"channel": cfg.Redis.Channel,
		})
		return redis.NewRelay(client, cfg.Redis.Channel, lgr), nil
	}
	return broadcast.NewLocalRelay(), nil
}

func runOrderService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	st, err := openStores(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer st.close()

	relay, err := openRelay(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer relay.Close()

	dispatcher := outbox.NewDispatcher(st.outbox, lgr, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		Lease:        cfg.Outbox.Lease,
		BaseBackoff:  cfg.Outbox.BaseBackoff,
		MaxBackoff:   cfg.Outbox.MaxBackoff,
		BatchSize:    cfg.Outbox.BatchSize,
	})

	hub := broadcast.NewHub(st.orders, lgr, cfg.Broadcast.Buffer)
	defer hub.Close()

	orderService := order.NewService(st.orders, dispatcher, lgr, cfg.Outbox.MaxAttempts)
	historyService := history.NewService(st.orders, st.histories, st.reviews, lgr)
	reviewService := review.NewService(st.orders, st.reviews, st.ratings, dispatcher, lgr, cfg.Outbox.MaxAttempts)
	trackingService := tracking.NewService(st.orders, hub, lgr)

	dispatcher.Register(domain.TaskBroadcastEvent, broadcast.RelayTask(relay))
	dispatcher.Register(domain.TaskArchiveOrder, historyService.HandleArchiveTask)
	dispatcher.Register(domain.TaskRecomputeRatings, reviewService.HandleRecomputeTask)

	var limiter *httpAdapter.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = httpAdapter.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
	}

	if cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(httpAdapter.Handlers{
		Orders:   httpAdapter.NewOrderHandler(orderService, lgr),
		Tracking: httpAdapter.NewTrackingHandler(trackingService, lgr),
		Kitchen:  httpAdapter.NewKitchenHandler(hub, cfg.Broadcast.HeartbeatInterval, lgr),
		History:  httpAdapter.NewHistoryHandler(historyService, reviewService, lgr),
		Admin:    httpAdapter.NewAdminHandler(dispatcher, lgr),
	}, lgr, limiter)

	// No WriteTimeout: the kitchen stream is long-lived.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lgr.Info("service_started", fmt.Sprintf("Order Service started on port %d", cfg.Server.Port), "startup", map[string]interface{}{
			"port":    cfg.Server.Port,
			"storage": cfg.Storage.Driver,
			"relay":   cfg.Broadcast.Relay,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		return relay.Consume(gctx, hub.HandleRelayed)
	})

	g.Go(func() error {
		<-gctx.Done()
		lgr.Info("shutdown_initiated", "Shutting down Order Service", "shutdown", nil)

		// Ends open kitchen streams so Shutdown does not wait on them.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	if cfg.Broadcast.Relay == "local" {
		return errors.New("notification-subscriber needs broadcast.relay rabbitmq or redis")
	}

	relay, err := openRelay(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer relay.Close()

	handler := amqpAdapter.NewNotificationHandler(lgr, os.Stdout)

	lgr.Info("service_started", "Notification Subscriber started", "startup", map[string]interface{}{
		"relay": cfg.Broadcast.Relay,
	})

	err = relay.Consume(ctx, handler.HandleEvent)
	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
	return err
}

// runArchiveReconciler archives every delivered order still missing from
// history, then exits.
func runArchiveReconciler(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	st, err := openStores(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer st.close()

	historyService := history.NewService(st.orders, st.histories, st.reviews, lgr)

	archived, err := historyService.Reconcile(ctx)
	lgr.Info("reconcile_finished", fmt.Sprintf("Archived %d delivered orders", archived), "reconcile", map[string]interface{}{
		"archived": archived,
	})
	return err
}
