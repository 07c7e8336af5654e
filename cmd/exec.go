package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"raffle-system/config"
	"raffle-system/internal/handlers"
	"raffle-system/internal/realtime"
	"raffle-system/internal/services"
	"raffle-system/internal/services/provider"
	"raffle-system/internal/services/provider/asaas"
	"raffle-system/internal/services/provider/mercadopago"
	"raffle-system/internal/services/provider/stripe"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/monitoring"
	"raffle-system/utils"

	_ "raffle-system/migrations"
)

func Start() error {
	app := pocketbase.New()
	cfg := config.Load()

	// Redis backs the stats cache and the sweep lock; the system degrades
	// to uncached reads and unlocked sweeps without it.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, err := utils.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, running without cache and sweep lock", "error", err)
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	var notifier realtime.Notifier = realtime.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = realtime.NewPubNubNotifier(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubUUID)
	}

	var alerter monitoring.Alerter = monitoring.NopAlerter{}
	if cfg.AlertWebhookURL != "" {
		alerter = monitoring.NewWebhookAlerter(cfg.AlertWebhookURL)
	}

	var gateways []provider.Gateway
	if cfg.MercadoPagoAccessToken != "" {
		mp, err := mercadopago.New(mercadopago.Config{
			AccessToken:     cfg.MercadoPagoAccessToken,
			WebhookSecret:   cfg.MercadoPagoWebhookSecret,
			BaseURL:         cfg.MercadoPagoBaseURL,
			NotificationURL: cfg.NotificationBaseURL + "/api/v1/webhooks/mercadopago",
			BackURL:         cfg.CheckoutBackURL,
		})
		if err != nil {
			return fmt.Errorf("init mercadopago gateway: %w", err)
		}
		gateways = append(gateways, mp)
	}
	if cfg.AsaasAPIKey != "" {
		gateways = append(gateways, asaas.New(asaas.Config{
			APIKey:       cfg.AsaasAPIKey,
			WebhookToken: cfg.AsaasWebhookToken,
			BaseURL:      cfg.AsaasBaseURL,
		}))
	}
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, stripe.New(stripe.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			BaseURL:       cfg.StripeBaseURL,
			SuccessURL:    cfg.CheckoutBackURL,
			CancelURL:     cfg.CheckoutBackURL,
		}))
	}
	registry := provider.NewRegistry(gateways...)

	st := store.NewDB(app)
	poolService := services.NewPoolService(st, redisClient, cfg.NumbersPageSize, cfg.NumbersPageSizeMax)
	reservationService := services.NewReservationService(st, poolService, notifier, cfg.ReservationTTL, cfg.MaxNumbersPerRequest)
	sweeperService := services.NewSweeperService(st, poolService, notifier, redisClient, cfg.SweepBatchSize, cfg.SweepLockTTL)
	paymentService := services.NewPaymentService(st, registry)
	webhookService := services.NewWebhookService(st, registry, poolService, notifier, alerter)
	affiliateService := services.NewAffiliateService(st)

	raffleHandler := handlers.NewRaffleHandler(poolService, paymentService)
	reserveHandler := handlers.NewReserveHandler(reservationService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	webhookHandler := handlers.NewWebhookHandler(webhookService, sweeperService, cfg.CronSecretHash)
	affiliateHandler := handlers.NewAffiliateHandler(affiliateService)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// The cron sweep is the primary expiration path; the authenticated
	// trigger route funnels into the same idempotent service.
	app.Cron().MustAdd("expire-reservations", "* * * * *", func() {
		if _, err := sweeperService.Sweep(context.Background()); err != nil {
			slog.Error("scheduled sweep failed", "error", err)
		}
	})

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if redisClient != nil {
			syncActiveRafflesToRedis(app, redisClient)
		}

		// Public pool listing
		e.Router.GET("/api/v1/raffles/{slug}/numbers", raffleHandler.Numbers)

		// Reservation and checkout
		e.Router.POST("/api/v1/raffles/{slug}/reserve", reserveHandler.Reserve)
		e.Router.GET("/api/v1/raffles/{slug}/active-checkout", raffleHandler.ActiveCheckout)
		e.Router.POST("/api/v1/payments", paymentHandler.CreateSession)
		e.Router.GET("/api/v1/orders/{orderId}/status", paymentHandler.OrderStatus)

		// Provider callbacks and operations
		e.Router.POST("/api/v1/webhooks/{provider}", webhookHandler.Receive)
		e.Router.POST("/api/v1/cron/expire-reservations", webhookHandler.TriggerSweep)

		// Affiliates
		e.Router.POST("/api/v1/affiliates/enroll", affiliateHandler.Enroll)
		e.Router.GET("/api/v1/affiliates/me", affiliateHandler.Me)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupRaffleHooks(app, poolService, redisClient)

		return e.Next()
	})

	return app.Start()
}

// syncActiveRafflesToRedis rebuilds the active-raffle set on startup so
// stale members from a previous run don't linger.
func syncActiveRafflesToRedis(app core.App, redisClient *redis.Client) {
	ctx := context.Background()

	var ids []string
	if err := app.DB().NewQuery(
		"SELECT id FROM raffles WHERE status = 'active'",
	).Column(&ids); err != nil {
		slog.Error("active raffle sync failed", "error", err)
		return
	}

	redisClient.Del(ctx, "active_raffles")
	if len(ids) > 0 {
		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		redisClient.SAdd(ctx, "active_raffles", members...)
	}
	slog.Info("synced active raffles to redis", "count", len(ids))
}

// setupRaffleHooks keeps the number pool and the redis active-raffle set
// in step with raffle lifecycle changes made through the admin API.
func setupRaffleHooks(app core.App, pool *services.PoolService, redisClient *redis.Client) {
	syncRaffle := func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()
		raffleID := e.Record.Id
		active := e.Record.GetString("status") == string(models.RaffleActive)

		if active {
			raffle := &models.Raffle{
				ID:           raffleID,
				TotalNumbers: int(e.Record.GetInt("total_numbers")),
			}
			if _, err := pool.Generate(ctx, raffle); err != nil {
				slog.Error("pool generation failed", "raffle", raffleID, "error", err)
				return err
			}
		}

		if redisClient != nil {
			var err error
			if active {
				err = redisClient.SAdd(ctx, "active_raffles", raffleID).Err()
			} else {
				err = redisClient.SRem(ctx, "active_raffles", raffleID).Err()
			}
			if err != nil {
				// Redis sync is best-effort; never fail the admin request.
				slog.Error("active raffle sync failed", "raffle", raffleID, "error", err)
			}
		}
		return nil
	}

	app.OnRecordCreateRequest("raffles").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		return syncRaffle(e)
	})

	app.OnRecordUpdateRequest("raffles").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		return syncRaffle(e)
	})

	app.OnRecordDeleteRequest("raffles").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		if redisClient != nil {
			if err := redisClient.SRem(context.Background(), "active_raffles", e.Record.Id).Err(); err != nil {
				slog.Error("active raffle removal failed", "raffle", e.Record.Id, "error", err)
			}
		}
		return nil
	})
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
