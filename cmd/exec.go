package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"github.com/shaunfitzgarald/events-app-sub001/config"
	"github.com/shaunfitzgarald/events-app-sub001/internal/handlers"
	"github.com/shaunfitzgarald/events-app-sub001/internal/notify"
	"github.com/shaunfitzgarald/events-app-sub001/internal/services"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store/pbstore"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store/redisholds"
	"github.com/shaunfitzgarald/events-app-sub001/internal/telemetry"
	_ "github.com/shaunfitzgarald/events-app-sub001/migrations"
	"github.com/shaunfitzgarald/events-app-sub001/monitoring"
	"github.com/shaunfitzgarald/events-app-sub001/security"
	"github.com/shaunfitzgarald/events-app-sub001/utils"
)

const (
	serviceName           = "ticket-service"
	holdMetricsInterval   = 15 * time.Second
	tracingShutdownWindow = 5 * time.Second
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint, cfg.OTLPInsecure)
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), tracingShutdownWindow)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	// Initialize services
	st := pbstore.New(app)
	holdRepo, holdCounter := holdBackend(cfg, st, redisClient)
	monitor := monitoring.NewMonitor(holdCounter)

	holdService := services.NewHoldService(holdRepo,
		services.WithHoldDuration(cfg.HoldDuration),
		services.WithSweepBatch(cfg.HoldSweepBatch),
		services.WithHoldMonitor(monitor),
	)
	oracle := services.NewUniquenessOracle(st.Tickets(), holdService,
		services.WithMaxAttempts(cfg.TicketNumberAttempts),
		services.WithOracleMonitor(monitor),
	)
	ticketService := services.NewTicketService(st, oracle, holdService,
		services.WithNotifier(notify.NewPubNubNotifier(pn)),
		services.WithTicketMonitor(monitor),
		services.WithDefaultCurrency(cfg.DefaultCurrency),
	)
	queryService := services.NewQueryService(st.Tickets(), st)
	limiter := security.NewRateLimiter(redisClient, cfg.CheckInMaxAttempts, cfg.CheckInAttemptWindow)

	// Initialize handlers
	ticketHandler := handlers.NewTicketHandler(ticketService, queryService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Start background tasks
		go holdService.RunSweeper(ctx, cfg.HoldSweepInterval)
		if cfg.EnableMetrics {
			go monitor.Run(ctx, holdMetricsInterval)
			go runOpsServer(ctx, ":"+cfg.MetricsPort, redisClient)
		}

		ticketHandler.Register(e.Router.Group("/api/v1"), limiter)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}

// holdBackend picks where ticket number holds live. Redis holds expire by
// TTL; PocketBase holds are removed by the sweeper.
func holdBackend(cfg *config.Config, st *pbstore.Store, redisClient *redis.Client) (store.HoldRepository, monitoring.HoldCounter) {
	if cfg.HoldBackend == config.HoldBackendRedis {
		holds := redisholds.New(redisClient)
		slog.Info("using redis hold backend")
		return holds, holds
	}
	slog.Info("using pocketbase hold backend")
	return st.Holds(), st
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
