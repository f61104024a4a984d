package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	suggestionRepo := repository.NewSuggestionRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	auditService := service.NewAuditService(auditRepo, logger, metrics)
	policyService := service.NewPolicyService(policyRepo)

	classifierClient := classifier.NewClient(cfg.Triage.AgentServiceURL, cfg.Triage.ClassifyTimeout(), logger, metrics)

	triageService := triage.NewService(triage.Dependencies{
		TicketRepo:     ticketRepo,
		SuggestionRepo: suggestionRepo,
		PolicyRepo:     policyRepo,
		Classifier:     classifierClient,
		Audit:          auditService,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	})

	broker := triage.NewRedisBroker(redis.Client, logger)
	queue := triage.NewQueue(triage.QueueOptions{
		Broker:    broker,
		Handler:   triageService.Process,
		OnFailure: triageService.OnPermanentFailure,
		Retry: func(ctx context.Context) triage.RetryPolicy {
			policy, err := policyService.Get(ctx)
			if err != nil {
				return triage.DefaultRetryPolicy()
			}
			return triage.RetryPolicy{
				MaxAttempts: policy.MaxRetries,
				BaseDelay:   cfg.Triage.BaseBackoff(),
			}
		},
		Workers: cfg.Triage.Workers,
		Logger:  logger,
		Metrics: metrics,
	})
	queue.Start(ctx)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		SuggestionRepo: suggestionRepo,
		Queue:          queue,
		Audit:          auditService,
		Dispatcher:     dispatcher,
	})

	authService := service.NewAuthService(*cfg, userRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Audit:          handlers.NewAuditHandler(auditService),
		Policy:         handlers.NewPolicyHandler(policyService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	_ = broker.Close()
	queue.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
