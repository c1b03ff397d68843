package bootstrap

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"schedule-backend/internal/contributions"
	"schedule-backend/internal/extraction"
	"schedule-backend/internal/extraction/ocr"
	"schedule-backend/internal/extraction/vision"
	"schedule-backend/internal/locations"
	"schedule-backend/internal/queue"
	"schedule-backend/internal/routes"
	"schedule-backend/internal/services/health"
	"schedule-backend/internal/shared/config"
	"schedule-backend/internal/shared/server"
	"schedule-backend/internal/shared/storage/db"
	"schedule-backend/internal/shared/storage/object"
	localstore "schedule-backend/internal/shared/storage/object/local"
	s3store "schedule-backend/internal/shared/storage/object/s3"
	"schedule-backend/internal/shared/telemetry"
	"schedule-backend/internal/workerpool"
)

// App holds shared dependencies.
type App struct {
	Config              config.Config
	Router              *gin.Engine
	DB                  *sql.DB
	Store               object.ObjectStore
	Queue               *queue.SQSClient
	Pool                *workerpool.Pool
	Resolver            *locations.Resolver
	Extractor           extraction.Backend
	ContributionsRepo   contributions.Repo
	CandidatesRepo      routes.Repo
	Contributions       *contributions.Service
	ContributionHandler *contributions.Handler
	Health              *health.Service
}

// Build prepares every dependency and the router. The pool is created but
// not started; callers own its lifecycle.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Pool: workerpool.New(workerpool.Options{
			Name:          "contributions",
			Size:          cfg.Pool.Size,
			QueueSize:     cfg.Pool.QueueSize,
			ShutdownGrace: cfg.Pool.ShutdownGrace,
		}),
		Health: health.NewService(),
	}

	buildServices(app)
	registerHealthChecks(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:              app.Config,
		ContributionHandler: app.ContributionHandler,
		Health:              app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"database":     sqlDB != nil,
		"store":        cfg.Store.Type,
		"queue":        queueClient != nil,
		"extraction":   extraction.IsAvailable(app.Extractor),
		"pool_size":    cfg.Pool.Size,
		"auto_tier":    cfg.Tiers.Auto,
		"review_tier":  cfg.Tiers.Review,
		"ocr_enabled":  cfg.Extraction.OCREnabled,
		"ocr_language": strings.Join(cfg.Extraction.TesseractLanguages, "+"),
	})
	return app, nil
}

// Close drains the pool and releases the database.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = eris.Wrap(err, "close database")
		}
	}
	return firstErr
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, eris.New("database url is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.Database.URL, db.DefaultServerOptions())
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_unavailable", map[string]any{
				"fallback": "memory",
				"error":    err.Error(),
			})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.Store.Type {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:   cfg.Store.AWSRegion,
			Bucket:   cfg.Store.S3Bucket,
			Prefix:   cfg.Store.S3Prefix,
			KMSKeyID: cfg.Store.SSEKMSKeyID,
		})
	default:
		return localstore.New(cfg.Store.LocalDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (*queue.SQSClient, error) {
	if strings.TrimSpace(cfg.Queue.SQSURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, queue.SQSOptions{
		QueueURL:          cfg.Queue.SQSURL,
		Region:            cfg.Queue.Region,
		VisibilitySeconds: cfg.Queue.VisibilitySeconds,
	})
}

func buildServices(app *App) {
	cfg := app.Config

	var (
		contributionRepo contributions.Repo
		candidateRepo    routes.Repo
		registry         locations.Registry = locations.StaticRegistry{}
	)
	if app.DB != nil {
		contributionRepo = &contributions.PGRepo{DB: app.DB}
		candidateRepo = &routes.PGRepo{DB: app.DB}
		registry = locations.ChainRegistry{
			Registries: []locations.Registry{
				locations.NewCachedRegistry(&locations.PGRegistry{DB: app.DB}, cfg.Locations.CacheTTL),
				locations.StaticRegistry{},
			},
			MinConfidence: cfg.Locations.MinConfidence,
		}
	} else {
		contributionRepo = contributions.NewMemoryRepo()
		candidateRepo = routes.NewMemoryRepo()
	}

	app.Resolver = locations.NewResolver(registry, locations.Options{
		MinConfidence: cfg.Locations.MinConfidence,
		CacheTTL:      cfg.Locations.CacheTTL,
	})
	app.Extractor = buildExtractor(cfg.Extraction)

	svc := &contributions.Service{
		Repo:            contributionRepo,
		Candidates:      candidateRepo,
		Store:           app.Store,
		Extractor:       app.Extractor,
		Expander:        routes.NewEngine(app.Resolver),
		Pool:            app.Pool,
		AutoThreshold:   cfg.Tiers.Auto,
		ReviewThreshold: cfg.Tiers.Review,
	}
	if app.Queue != nil {
		svc.Queue = app.Queue
	}

	app.ContributionsRepo = contributionRepo
	app.CandidatesRepo = candidateRepo
	app.Contributions = svc
	app.ContributionHandler = contributions.NewHandler(svc)
}

// buildExtractor chains the vision backend ahead of Tesseract. Only the
// vision backend is rate limited and retried; OCR runs locally.
func buildExtractor(cfg config.ExtractionConfig) extraction.Backend {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	primary := extraction.Guard(vision.New(vision.Options{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.AnthropicModel,
		MaxTokens: cfg.MaxTokens,
	}), extraction.GuardOptions{
		Attempts: cfg.RetryAttempts,
		Timeout:  cfg.Timeout,
		Limiter:  limiter,
	})
	secondary := extraction.Guard(ocr.New(ocr.Options{
		Languages: cfg.TesseractLanguages,
		Enabled:   cfg.OCREnabled,
	}), extraction.GuardOptions{Timeout: cfg.Timeout})

	return extraction.Chain{Primary: primary, Secondary: secondary}
}

func registerHealthChecks(app *App) {
	if app.DB != nil {
		app.Health.Register("database", func(ctx context.Context) error {
			return eris.Wrap(app.DB.PingContext(ctx), "ping database")
		})
	}
	limit := app.Config.Pool.QueueSize
	app.Health.Register("pool", func(ctx context.Context) error {
		queued, _ := app.Pool.Stats()
		if limit > 0 && queued >= limit {
			return eris.Errorf("processing queue saturated (%d queued)", queued)
		}
		return nil
	})
}
