package cmd

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cultureticks/config"
	"cultureticks/handlers"
	"cultureticks/internal/ledger"
	"cultureticks/internal/services"
	"cultureticks/migrations"
	"cultureticks/monitoring"
	"cultureticks/security"
	"cultureticks/utils"

	"github.com/labstack/echo/v5"
	_ "github.com/lib/pq"
	"github.com/pocketbase/dbx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Postgres
	db, err := dbx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.DB().SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.DB().SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.DB().SetConnMaxLifetime(cfg.DBConnLifetime)

	if err := migrations.Apply(ctx, db); err != nil {
		return err
	}

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Realtime publisher
	var publisher services.Publisher = services.NoopPublisher{}
	if cfg.PubNubPublishKey != "" {
		publisher = services.NewPubNubPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubUUID)
	}

	// Payment provider
	provider, err := services.NewPaymentProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer provider.Close(context.Background())

	// Initialize services
	ticketLedger := ledger.New(db)
	store := services.NewReservationStore(redisClient)
	eventService := services.NewEventService(db)
	checkoutService := services.NewCheckoutService(ticketLedger, store, provider, publisher, cfg.Currency, cfg.PendingTTL)

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(eventService, ticketLedger)
	ticketHandler := handlers.NewTicketHandler(ticketLedger, eventService, []byte(cfg.TicketSigningKey))
	paymentHandler := handlers.NewPaymentHandler(checkoutService, []byte(cfg.PaymentWebhookSecret))

	// Start background tasks
	go checkoutService.Run(ctx)
	go sweepExpiredPending(ctx, ticketLedger, cfg)

	// Setup graceful shutdown
	go handleShutdown(cancel)

	e := echo.New()
	if cfg.EnableMetrics {
		e.Use(monitoring.RequestMetrics())
	}

	rateLimiter := security.NewRateLimiter(redisClient)
	handlers.RegisterRoutes(e, eventHandler, ticketHandler, paymentHandler,
		security.AdminKeyMiddleware(cfg.AdminKeyHash),
		rateLimiter.CheckoutRateLimit(), rateLimiter.AntiBotMiddleware())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := db.DB().PingContext(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "healthy"})
	})

	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	log.Printf("Server listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sweepExpiredPending periodically returns abandoned holds to
// available inventory.
func sweepExpiredPending(ctx context.Context, l *ledger.Ledger, cfg *config.Config) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.SweepExpiredPending(ctx, cfg.PendingTTL)
			if err != nil {
				slog.Error("pending sweep failed", "error", err)
				continue
			}
			if n > 0 {
				monitoring.PendingSwept.Add(float64(n))
				slog.Info("pending sweep reclaimed tickets", "count", n)
			}
		}
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
