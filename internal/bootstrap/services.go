package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Brettillian123/email-scraper-verifier-sub000/config"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/adapters/bounceimport"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/adapters/pipelinerunner"
	reaperrunner "github.com/Brettillian123/email-scraper-verifier-sub000/internal/adapters/reaper"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/adapters/smtpprobe"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/adapters/smtpsender"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/adapters/verifyrunner"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/data"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs         *service.JobService
	Verification *service.VerificationService
	Evidence     *service.EvidenceService
	Escalator    *service.Escalator
	Pipeline     *service.PipelineService
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
	DB    *sql.DB
	Redis redis.UniversalClient

	JobRepo          *data.JobRepo
	VerificationRepo *data.VerificationRepo
	PersonRepo       *data.PersonRepo
	RunRepo          *data.RunRepo
	CompanyRepo      *data.CompanyRepo
	DeadLetterRepo   *data.DeadLetterRepo
	ActivityRepo     *data.ActivityRepo
	Gate             *data.RedisGate
	Reachability     *data.RedisReachabilityCache
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, rdb redis.UniversalClient, cfg *config.AppConfig, logger *slog.Logger) *serviceRepositories {
	gateLease := 60 * time.Second
	if cfg != nil && cfg.Verifier.JobLease > 0 {
		gateLease = cfg.Verifier.JobLease
	}

	repos := &serviceRepositories{
		DB:               db,
		Redis:            rdb,
		JobRepo:          data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		VerificationRepo: data.NewVerificationRepo(db, logger),
		PersonRepo:       data.NewPersonRepo(db),
		RunRepo:          data.NewRunRepo(db, logger),
		CompanyRepo:      data.NewCompanyRepo(db),
		DeadLetterRepo:   data.NewDeadLetterRepo(db),
		ActivityRepo:     data.NewActivityRepo(db),
	}
	if rdb != nil {
		repos.Gate = data.NewRedisGate(rdb, gateLease)
		repos.Reachability = data.NewRedisReachabilityCache(rdb)
	}
	return repos
}

// NewServices wires the full service graph from config, database, and Redis.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
		cfg.Sanitize()
	}

	repos := buildRepositories(deps.DB, deps.RedisClient, cfg, logger)

	jobService := service.MustNewJobService(service.JobServiceOptions{
		Repo:         repos.JobRepo,
		DefaultLease: cfg.Verifier.JobLease,
		Logger:       logger,
	})

	evidenceService, err := service.NewEvidenceService(service.EvidenceServiceOptions{
		Results:       repos.VerificationRepo,
		WaitingWindow: cfg.TestSend.WaitingWindow,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire evidence service: %w", err)
	}

	prober, err := smtpprobe.New(smtpprobe.Options{
		Cache:          repos.Reachability,
		Logger:         logger,
		HeloDomain:     cfg.Verifier.HeloDomain,
		MailFrom:       cfg.Verifier.MailFrom,
		DNSTimeout:     cfg.Verifier.DNSTimeout,
		ConnectTimeout: cfg.Verifier.ConnectTimeout,
		CommandTimeout: cfg.Verifier.CommandTimeout,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire smtp prober: %w", err)
	}

	if repos.Gate == nil {
		return ServiceContainer{}, errors.New("redis client is required for the verification gate")
	}
	verificationService, err := service.NewVerificationService(service.VerificationServiceOptions{
		Gate:        repos.Gate,
		Resolver:    prober,
		Prober:      prober,
		Results:     repos.VerificationRepo,
		DeadLetters: repos.DeadLetterRepo,
		Classifier:  evidenceService,
		Backoff:     service.NewBackoffPolicy(cfg.Verifier.RetryBaseDelay, cfg.Verifier.RetryMaxDelay),
		Logger:      logger,
		GlobalLimit: cfg.Verifier.GlobalLimit,
		PerMXLimit:  cfg.Verifier.PerMXLimit,
		GlobalRPS:   cfg.Verifier.GlobalRPS,
		PerMXRPS:    cfg.Verifier.PerMXRPS,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire verification service: %w", err)
	}

	sender, err := smtpsender.New(smtpsender.Options{
		Resolver:       prober,
		Logger:         logger,
		HeloDomain:     cfg.Verifier.HeloDomain,
		ConnectTimeout: cfg.Verifier.ConnectTimeout,
		CommandTimeout: cfg.Verifier.CommandTimeout,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire smtp sender: %w", err)
	}

	escalator, err := service.NewEscalator(service.EscalatorOptions{
		Results:      repos.VerificationRepo,
		Sender:       sender,
		People:       repos.PersonRepo,
		Evidence:     evidenceService,
		Logger:       logger,
		BounceDomain: cfg.TestSend.BounceDomain,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire escalator: %w", err)
	}

	pipelineService, err := service.NewPipelineService(service.PipelineServiceOptions{
		Runs:                 repos.RunRepo,
		Jobs:                 repos.JobRepo,
		Companies:            repos.CompanyRepo,
		Results:              repos.VerificationRepo,
		Activity:             repos.ActivityRepo,
		Logger:               logger,
		TenantDailyDomainCap: cfg.Pipeline.TenantDailyDomainCap,
		DefaultCompanyLimit:  cfg.Pipeline.DefaultCompanyLimit,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire pipeline service: %w", err)
	}

	return ServiceContainer{
		Jobs:         jobService,
		Verification: verificationService,
		Evidence:     evidenceService,
		Escalator:    escalator,
		Pipeline:     pipelineService,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newVerifierBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeVerifier,
		name: "verifier",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			verifierCfg := config.VerifierConfig{}
			if deps.cfg.Config != nil {
				verifierCfg = deps.cfg.Config.Verifier
			}

			newRunner := func(jobType model.JobType) (*verifyrunner.Runner, error) {
				return verifyrunner.New(verifyrunner.Options{
					Jobs:         deps.cfg.Services.Jobs,
					Verification: deps.cfg.Services.Verification,
					Results:      data.NewVerificationRepo(deps.cfg.DB, deps.logger),
					Completer:    deps.cfg.Services.Pipeline,
					Logger:       deps.logger,
					JobType:      jobType,
					Lease:        verifierCfg.JobLease,
					Concurrency:  verifierCfg.Concurrency,
				})
			}

			probeRunner, err := newRunner(model.JobTypeProbe)
			if err != nil {
				return fmt.Errorf("wire probe runner: %w", err)
			}
			sweepRunner, err := newRunner(model.JobTypeVerifySweep)
			if err != nil {
				return fmt.Errorf("wire sweep runner: %w", err)
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error { return probeRunner.Run(groupCtx) })
			group.Go(func() error { return sweepRunner.Run(groupCtx) })
			return group.Wait()
		},
	}
}

func newPipelineBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModePipeline,
		name: "pipeline",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			pipelineCfg := config.PipelineConfig{}
			if deps.cfg.Config != nil {
				pipelineCfg = deps.cfg.Config.Pipeline
			}

			runner, err := pipelinerunner.New(pipelinerunner.Options{
				Jobs:        deps.cfg.Services.Jobs,
				Results:     data.NewVerificationRepo(deps.cfg.DB, deps.logger),
				People:      data.NewPersonRepo(deps.cfg.DB),
				Escalator:   deps.cfg.Services.Escalator,
				Completer:   deps.cfg.Services.Pipeline,
				Logger:      deps.logger,
				Lease:       pipelineCfg.JobLease,
				Concurrency: pipelineCfg.Concurrency,
			})
			if err != nil {
				return fmt.Errorf("wire pipeline runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newBounceImporterBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeBounceImporter,
		name: "bounce importer",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			testSendCfg := config.TestSendConfig{}
			if deps.cfg.Config != nil {
				testSendCfg = deps.cfg.Config.TestSend
			}

			importer, err := bounceimport.New(bounceimport.Options{
				Redis:     deps.cfg.RedisClient,
				Jobs:      deps.cfg.Services.Jobs,
				Logger:    deps.logger,
				Queue:     testSendCfg.InboundQueue,
				DeadQueue: testSendCfg.DeadQueue,
			})
			if err != nil {
				return fmt.Errorf("wire bounce importer: %w", err)
			}
			return importer.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			reaperCfg := config.ReaperConfig{}
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}

			runner, err := reaperrunner.NewRunner(reaperrunner.RunnerOptions{
				DB:     deps.cfg.DB,
				Logger: deps.logger,
				Config: service.ReaperConfig{
					Interval:            reaperCfg.Interval,
					JobRetention:        reaperCfg.JobRetention,
					DeadLetterRetention: reaperCfg.DeadLetterRetention,
					CleanupDomains:      reaperCfg.CleanupDomains,
					GeneratedRetention:  reaperCfg.GeneratedRetention,
				},
			})
			if err != nil {
				return fmt.Errorf("wire reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newVerifierBackgroundService(deps),
		newPipelineBackgroundService(deps),
		newBounceImporterBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	jobService  *service.JobService
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

// gracefulStop waits for background services to drain their in-flight work.
func gracefulStop(cfg shutdownConfig) {
	if cfg.jobService != nil {
		cfg.jobService.StopAll()
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
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
