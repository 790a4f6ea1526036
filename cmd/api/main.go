package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "go-bulkops/internal/common/api"
	"go-bulkops/internal/config"
	"go-bulkops/internal/database"
	"go-bulkops/internal/features/approval"
	"go-bulkops/internal/features/audit"
	"go-bulkops/internal/features/automation"
	"go-bulkops/internal/features/bulk_operation"
	"go-bulkops/internal/features/notification"
	"go-bulkops/internal/features/property"
	"go-bulkops/internal/features/record"
	"go-bulkops/internal/features/report"
	"go-bulkops/internal/features/retention"
	"go-bulkops/internal/features/system"
	"go-bulkops/internal/logger"
	"go-bulkops/internal/middleware"

	_ "go-bulkops/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	return app
}

// AsRoute tags the constructor so Fx adds it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// AsExecutor adds an item executor constructor to the "executors" group.
func AsExecutor(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(bulk_operation.ItemExecutor)),
		fx.ResultTags(`group:"executors"`),
	)
}

// RegisterAllRoutes calls Setup() on every route in the "routes" group.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, log *zap.Logger) {
	log.Info("Registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		log.Debug("Setting up route", zap.String("type", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// NewRegistry registers every executor of the "executors" group.
func NewRegistry(executors []bulk_operation.ItemExecutor, log *zap.Logger) (*bulk_operation.Registry, error) {
	registry, err := bulk_operation.NewRegistryWith(executors...)
	if err != nil {
		return nil, err
	}
	for _, def := range registry.Definitions() {
		log.Info("Operation type registered",
			zap.String("operation_type", def.Type),
			zap.String("inverse_type", def.InverseType),
			zap.Bool("approval_required", def.ApprovalRequired),
		)
	}
	return registry, nil
}

var NewRegistryWithAnnotation = fx.Annotate(
	NewRegistry,
	fx.ParamTags(`group:"executors"`, ``),
)

// NewStore picks the bulk operation store from STORE_DRIVER and prepares its schema on start.
func NewStore(lc fx.Lifecycle, cfg *config.Config, mongodb *database.MongodbDB, pg *database.PostgresDB, log *zap.Logger) (bulk_operation.Store, error) {
	store, err := bulk_operation.SelectStore(cfg, mongodb, pg)
	if err != nil {
		return nil, err
	}
	log.Info("Bulk operation store selected", zap.String("driver", cfg.StoreDriver))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bulk_operation.PrepareStore(ctx, store)
		},
	})
	return store, nil
}

// NewProgressPublisher fans progress out to websocket subscribers and, when configured, Redis.
func NewProgressPublisher(lc fx.Lifecycle, cfg *config.Config, hub *bulk_operation.Hub, log *zap.Logger) bulk_operation.ProgressPublisher {
	redisPublisher, err := bulk_operation.NewRedisPublisher(cfg, log)
	if err != nil {
		log.Warn("Redis progress publishing disabled", zap.Error(err))
		return hub
	}
	if redisPublisher == nil {
		return hub
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return redisPublisher.Close()
		},
	})
	return bulk_operation.MultiPublisher{hub, redisPublisher}
}

// NewWorkerPool builds the shared worker pool and ties it to the app lifecycle.
func NewWorkerPool(lc fx.Lifecycle, cfg *config.Config, store bulk_operation.Store, registry *bulk_operation.Registry, manager *bulk_operation.Manager, log *zap.Logger) *bulk_operation.Pool {
	pool := bulk_operation.NewPool(bulk_operation.PoolConfig{
		Workers:      cfg.WorkerCount,
		PollInterval: cfg.WorkerPollInterval,
		ItemTimeout:  cfg.ItemTimeout,
		StopGrace:    cfg.ItemStopGrace,
		Retry: bulk_operation.RetryPolicy{
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		},
	}, store, registry, manager, log)

	lc.Append(fx.Hook{
		OnStart: pool.Start,
		OnStop:  pool.Stop,
	})
	return pool
}

// StartServer starts Fiber in a goroutine and shuts it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

// InitializeIndexes ensures the notification indexes exist when Mongo is active.
func InitializeIndexes(lc fx.Lifecycle, notificationRepo notification.NotificationRepository, log *zap.Logger) {
	indexed, ok := notificationRepo.(*notification.NotificationRepositoryImpl)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := indexed.EnsureIndexes(ctx); err != nil {
					log.Error("Failed to ensure notification indexes", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

// StartRetention runs the purge scheduler for the lifetime of the app.
func StartRetention(lc fx.Lifecycle, job *retention.RetentionJob) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return job.Start()
		},
		OnStop: job.Stop,
	})
}

// @title           Bulk Operations API
// @version         1.0
// @description     Bulk operation engine: create, approve, run, cancel and roll back operations over large target sets.

// @contact.name    API Support

// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Databases
			database.NewDatabase,
			database.NewPostgres,

			// Initialize Repository
			audit.NewAuditRepository,
			record.NewRecordRepository,
			notification.NewNotificationRepository,
			NewStore,

			// Initialize Services
			audit.NewAuditService,
			audit.NewBulkEmitter,
			record.NewRecordService,
			record.NewSelectionResolver,
			notification.NewNotificationService,
			report.NewExportWriter,

			// Bulk operation engine
			bulk_operation.NewHub,
			NewProgressPublisher,
			NewRegistryWithAnnotation,
			bulk_operation.NewManager,
			bulk_operation.NewRollbackController,
			NewWorkerPool,
			func(pool *bulk_operation.Pool) bulk_operation.Notifier { return pool },
			bulk_operation.NewBulkOperationService,
			bulk_operation.NewProgressStream,
			func(s bulk_operation.BulkOperationService) retention.Purger { return s },
			retention.NewRetentionJob,

			// Item executors
			AsExecutor(approval.NewApprovalExecutor),
			AsExecutor(approval.NewApprovalRevertExecutor),
			AsExecutor(approval.NewRejectionExecutor),
			AsExecutor(approval.NewRejectionRevertExecutor),
			AsExecutor(property.NewAssignmentExecutor),
			AsExecutor(property.NewUnassignmentExecutor),
			AsExecutor(notification.NewBroadcastExecutor),
			AsExecutor(report.NewExportExecutor),
			AsExecutor(automation.NewScriptExecutor),

			// Initialize Controller
			audit.NewAuditController,
			record.NewRecordController,
			notification.NewNotificationController,
			report.NewExportController,
			bulk_operation.NewBulkOperationController,
			retention.NewRetentionController,
			system.NewHealthController,
			system.NewDebugController,

			// Initialize API Routes
			AsRoute(bulk_operation.NewBulkOperationApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(record.NewRecordApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(report.NewExportApi),
			AsRoute(retention.NewRetentionApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewDebugApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			InitializeIndexes,
			StartRetention,
			func(*bulk_operation.Pool) {},
		),
	)

	app.Run()
}
