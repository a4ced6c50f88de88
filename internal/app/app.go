// Package app wires configuration, storage, the settlement engine and the
// HTTP surface into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/events"
	adapterHTTP "github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/lock"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/config"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/services"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/workers"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/tracing"
)

const serviceName = "kanso-discipline-engine"

type App struct {
	Cfg *config.Config
	Log *logger.Logger

	DB    *sqlx.DB
	Redis *redis.Client
	Store *repository.PostgresStore

	ConfigProvider domain.ConfigProvider
	Notifier       domain.Notifier
	Processor      *services.ReportProcessor
	Dashboard      *services.DashboardService
	Tokens         *services.TokenService
	Worker         *workers.SettlementWorker

	startTime       time.Time
	shutdownTracing func(context.Context) error
}

// New connects to every backing store and assembles the engine. On error all
// connections opened so far are closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	a = &App{Cfg: cfg, Log: log, startTime: time.Now()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	a.shutdownTracing, err = tracing.Setup(ctx, log, tracing.Config{
		ServiceName: serviceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	log.Info("connecting to database", "host", cfg.Database.Host, "name", cfg.Database.Name)
	a.DB, err = repository.OpenPostgres(ctx, cfg.Database.Driver, cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(a.DB); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	a.Store = repository.NewPostgresStore(a.DB)

	if cfg.Redis.Enabled {
		a.Redis, err = cache.NewRedisClient(ctx, cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	a.ConfigProvider, err = a.wireConfigProvider(ctx)
	if err != nil {
		return nil, err
	}

	a.wireEngine()
	return a, nil
}

func (a *App) wireConfigProvider(ctx context.Context) (domain.ConfigProvider, error) {
	switch a.Cfg.Engine.Source {
	case "database":
		repo := repository.NewPostgresConfigRepository(a.DB)
		_, err := repo.GetCoefficients(ctx)
		switch {
		case errors.Is(err, domain.ErrCoefficientsNotFound):
			a.Log.Info("no coefficients stored, seeding from configuration")
			if err := repo.SaveCoefficients(ctx, a.Cfg.Engine.Coefficients); err != nil {
				return nil, fmt.Errorf("seed coefficients: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("load coefficients: %w", err)
		}
		return repo, nil
	default:
		return repository.NewStaticConfigProvider(a.Cfg.Engine.Coefficients, a.Cfg.Engine.ThresholdSet()), nil
	}
}

func (a *App) locker() domain.UserLocker {
	switch a.Cfg.Engine.LockBackend {
	case "redis":
		return lock.NewRedisLocker(a.Redis, a.Cfg.Redis.LockTTL, a.Log)
	case "postgres":
		return lock.NewPostgresLocker(a.DB, a.Log)
	default:
		return lock.NewMemoryLocker()
	}
}

func (a *App) wireEngine() {
	repos := a.Store.Repositories()
	habits := repos.Habits

	opts := []services.ProcessorOption{services.WithLogger(a.Log)}
	if n := a.Cfg.Worker.EvalConcurrency; n > 0 {
		opts = append(opts, services.WithEvaluationLimit(n))
	}

	a.Notifier = events.NopNotifier{}
	if a.Redis != nil {
		cached := repository.NewCachedTrackedHabitRepository(habits, a.Redis, a.Log)
		habits = cached
		a.Notifier = events.NewRedisNotifier(a.Redis, a.Cfg.Redis.Channel, a.Log)
		opts = append(opts, services.WithCacheInvalidator(cached))
	}
	opts = append(opts, services.WithNotifier(a.Notifier))

	a.Processor = services.NewReportProcessor(repos.Reports, a.Store, a.ConfigProvider, a.locker(), opts...)
	a.Dashboard = services.NewDashboardService(habits, repos.History, repos.Metrics, a.Cfg.Engine.Coefficients.BaselineHealth)
	a.Tokens = services.NewTokenService(a.Cfg.Auth.JWTSecret, a.Cfg.Auth.Issuer, a.Cfg.Auth.TokenTTL)
	a.Worker = workers.NewSettlementWorker(a.Processor, a.Cfg.Worker.Shards, a.Cfg.Worker.QueueSize, a.Log)
}

// Router builds the HTTP surface. The worker must be started separately.
func (a *App) Router() *gin.Engine {
	if a.Cfg.Server.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	return adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		SettlementHandler: adapterHTTP.NewSettlementHandler(a.Store.Repositories().Reports, a.Worker, a.Log),
		HabitHandler:      adapterHTTP.NewHabitHandler(a.Dashboard),
		MetricsHandler:    adapterHTTP.NewMetricsHandler(a.Dashboard),
		TokenValidator:    a.Tokens,
		Log:               a.Log,
		DB:                a.DB,
		Redis:             a.Redis,
		RateLimit:         a.Cfg.Server.RateLimit,
		RateWindow:        a.Cfg.Server.RateWindow,
		StartTime:         a.startTime,
	})
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("tracing shutdown failed", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	a.Log.Sync()
}
