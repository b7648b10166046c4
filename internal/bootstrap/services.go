package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/convolens/convolens/config"
	"github.com/convolens/convolens/internal/adapters/analysisrunner"
	"github.com/convolens/convolens/internal/adapters/inference"
	"github.com/convolens/convolens/internal/data"
	"github.com/convolens/convolens/internal/observability/errlog"
	"github.com/convolens/convolens/internal/service"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Analysis  *service.AnalysisService
	Ingestion *service.IngestionService
	Pool      *analysisrunner.Pool
	Sweeper   *analysisrunner.Sweeper
	Inference *inference.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	TaskRepo     *data.TaskRepo
	MessageRepo  *data.MessageRepo
	DocumentRepo *data.DocumentRepo
	ArtifactRepo *data.RedisArtifactRepo
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient) *serviceRepositories {
	return &serviceRepositories{
		TaskRepo:     data.NewTaskRepo(db),
		MessageRepo:  data.NewMessageRepo(db),
		DocumentRepo: data.NewDocumentRepo(db),
		ArtifactRepo: data.NewRedisArtifactRepo(redisClient),
	}
}

func buildInferenceClient(cfg config.InferenceConfig, logger *slog.Logger) (*inference.Client, error) {
	errorLog, err := errlog.New(errlog.Options{
		Path:   cfg.UnhandledErrorsPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create error log: %w", err)
	}

	retry := inference.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries

	return inference.NewClient(inference.ClientOptions{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Logger:     logger,
		ErrorLog:   errorLog,
		Retry:      retry,
	})
}

// NewServices wires all application services. The analysis service and the
// worker pool reference each other, so the dispatcher is installed after both
// exist.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repos := buildRepositories(deps.DB, deps.RedisClient)
	client, err := buildInferenceClient(deps.Config.Inference, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create inference client: %w", err)
	}

	analysisSvc, err := service.NewAnalysisService(service.AnalysisServiceOptions{
		Tasks:    repos.TaskRepo,
		Messages: repos.MessageRepo,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create analysis service: %w", err)
	}

	pool, err := analysisrunner.NewPool(analysisrunner.PoolOptions{
		Analysis:  analysisSvc,
		Messages:  repos.MessageRepo,
		Inference: client,
		Logger:    logger,
		Workers:   deps.Config.AnalysisRunner.Workers,
		QueueSize: deps.Config.AnalysisRunner.QueueSize,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create analysis pool: %w", err)
	}
	analysisSvc.SetDispatcher(pool)

	sweeper, err := analysisrunner.NewSweeper(analysisrunner.SweeperOptions{
		Analysis:   analysisSvc,
		Logger:     logger,
		Interval:   deps.Config.Sweeper.Interval,
		StaleAfter: deps.Config.Sweeper.StaleAfter,
		BatchSize:  deps.Config.Sweeper.BatchSize,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create sweeper: %w", err)
	}

	ingestionSvc, err := service.NewIngestionService(service.IngestionServiceOptions{
		Documents: repos.DocumentRepo,
		Messages:  repos.MessageRepo,
		Artifacts: repos.ArtifactRepo,
		Inference: client,
		DraftTTL:  deps.Config.Ingestion.DraftTTL,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create ingestion service: %w", err)
	}

	return ServiceContainer{
		Analysis:  analysisSvc,
		Ingestion: ingestionSvc,
		Pool:      pool,
		Sweeper:   sweeper,
		Inference: client,
	}, nil
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Services    ServiceContainer
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func buildBackgroundServices(svcs ServiceContainer) []backgroundService {
	return []backgroundService{
		{
			mode:  config.ServiceModeAnalysisRunner,
			name:  "analysis runner",
			start: svcs.Pool.Run,
		},
		{
			mode:  config.ServiceModeSweeper,
			name:  "sweeper",
			start: svcs.Sweeper.Run,
		},
	}
}

type serviceStartupDeps struct {
	ctx             context.Context
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

func launchBackground(deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(deps.ctx); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-deps.ctx.Done():
			default:
				deps.logger.WarnContext(deps.ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(deps.ctx, "background service started",
		"service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	handles := make([]backgroundServiceHandle, 0, len(services))
	for _, svc := range services {
		done := launchBackground(deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}
	return handles
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	handles := startBackgroundServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}, buildBackgroundServices(cfg.Services))

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		ingestion:   cfg.Services.Ingestion,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	ingestion   *service.IngestionService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services and in-flight enrichment.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	if cfg.ingestion != nil {
		cfg.ingestion.Wait()
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
