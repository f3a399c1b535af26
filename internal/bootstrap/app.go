package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-interview/internal/ai"
	appsvc "gopherai-interview/internal/app"
	"gopherai-interview/internal/cache"
	"gopherai-interview/internal/config"
	"gopherai-interview/internal/model"
	"gopherai-interview/internal/observability"
	"gopherai-interview/internal/platform/logger"
	mysqlClient "gopherai-interview/internal/platform/mysql"
	rabbitmqClient "gopherai-interview/internal/platform/rabbitmq"
	redisClient "gopherai-interview/internal/platform/redis"
	sqliteClient "gopherai-interview/internal/platform/sqlite"
	"gopherai-interview/internal/repository"
	"gopherai-interview/internal/worker"
)

type App struct {
	Config      *config.Config
	Log         *logger.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Publisher   *rabbitmqClient.EventPublisher
	EventWorker *worker.SessionEventWorker
	Metrics     *observability.Metrics
	Interview   *appsvc.InterviewService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, log)
}

// NewWithConfig wires storage, cache, broker and the interview service.
// Partially opened resources are closed when a later step fails.
func NewWithConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Log:       log,
		Metrics:   observability.NewMetrics(),
		StartedAt: time.Now(),
	}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	deps := appsvc.InterviewServiceDeps{
		Metrics:           a.Metrics,
		Log:               a.Log,
		CASTimeout:        cfg.Session.CASTimeout(),
		GenerationTimeout: cfg.Session.GenerationTimeout(),
		DeleteRetryLimit:  cfg.Session.DeleteRetryLimit,
	}

	var eventRepo *repository.SessionEventRepository
	switch cfg.Storage.Driver {
	case config.StorageMySQL, config.StorageSQLite:
		db, err := a.openDB(ctx)
		if err != nil {
			return err
		}
		a.DB = db
		if err := db.AutoMigrate(&model.InterviewSession{}, &model.OrganizationMember{}, &model.SessionEvent{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		deps.Store = repository.NewSessionStore(db)
		deps.Members = repository.NewMembershipRepository(db)
		eventRepo = repository.NewSessionEventRepository(db)
		deps.Publisher = eventRepo
	default:
		deps.Store = repository.NewMemorySessionStore()
		deps.Members = repository.NewMemoryMembershipStore()
	}

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		deps.Cache = cache.NewSessionCache(
			client,
			time.Duration(cfg.Redis.SessionTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.SessionDirtyTTLSeconds)*time.Second,
		)
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = conn
		a.Publisher = rabbitmqClient.NewEventPublisher(conn, cfg.RabbitMQ.SessionEventQueue)
		deps.Publisher = a.Publisher

		if eventRepo != nil {
			a.EventWorker = worker.NewSessionEventWorker(conn, eventRepo, cfg.RabbitMQ.SessionEventQueue, a.Log)
			if err := a.EventWorker.Start(ctx); err != nil {
				return fmt.Errorf("start session event worker failed: %w", err)
			}
		}
	}

	generator, err := ai.NewGenerator(ai.GeneratorConfig{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		ChunkSize:    cfg.LLM.ChunkSize,
		ChunkOverlap: cfg.LLM.ChunkOverlap,
	})
	switch {
	case err == nil:
		deps.Generator = generator
	case errors.Is(err, ai.ErrLLMConfig):
		a.Log.Warn("llm not configured, finalize will report generation_failed")
	default:
		return fmt.Errorf("init generator failed: %w", err)
	}

	a.Interview = appsvc.NewInterviewService(deps)
	a.Log.Info("interview service ready",
		"storage", cfg.Storage.Driver,
		"redis", cfg.Redis.Enabled,
		"rabbitmq", cfg.RabbitMQ.Enabled,
	)
	return nil
}

func (a *App) openDB(ctx context.Context) (*gorm.DB, error) {
	if a.Config.Storage.Driver == config.StorageSQLite {
		return sqliteClient.New(ctx, a.Config.Storage.SQLitePath, a.Log)
	}
	return mysqlClient.New(ctx, a.Config.MySQLDSN(), a.Log)
}

func (a *App) Close() error {
	var closeErr error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return closeErr
}
