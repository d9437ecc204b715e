package backend

import (
	"context"
	"fmt"

	"penny/internal/amqp"
	"penny/internal/anomaly"
	"penny/internal/categorize"
	applog "penny/internal/log"
	"penny/internal/services"
	"penny/internal/storage"
	"penny/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}

	rules, err := categorize.Load(config.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rule table: %w", err)
	}
	detector, err := anomaly.NewDetector(config.Anomaly)
	if err != nil {
		return nil, fmt.Errorf("anomaly detector: %w", err)
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	opts := services.Options{
		Store:             store,
		Rules:             rules,
		Detector:          detector,
		DashboardCacheTTL: config.DashboardCacheTTL,
		Logger:            f.logger,
	}
	// A typed nil *amqp.Client must not reach the interface field.
	if client := f.createPublisher(ctx, config); client != nil {
		opts.Publisher = client
	}

	svc, err := services.NewExpenseService(opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type,
		"rules", rules.Len(),
		"rules_file", config.RulesFile,
		"amqp_enabled", opts.Publisher != nil,
		"dashboard_cache_ttl", config.DashboardCacheTTL.String())

	return &BackendResult{Service: svc, Cleanup: svc.Close}, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		return repo, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory store, expenses are lost on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createPublisher connects to AMQP when configured. A broker that is down at
// startup disables publishing rather than failing the process.
func (f *DefaultFactory) createPublisher(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
