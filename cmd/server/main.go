package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/stock-image-platform/internal/config"
	"github.com/iliyamo/stock-image-platform/internal/database"
	"github.com/iliyamo/stock-image-platform/internal/handler"
	"github.com/iliyamo/stock-image-platform/internal/logger"
	"github.com/iliyamo/stock-image-platform/internal/metrics"
	"github.com/iliyamo/stock-image-platform/internal/middleware"
	"github.com/iliyamo/stock-image-platform/internal/ordering"
	"github.com/iliyamo/stock-image-platform/internal/queue"
	"github.com/iliyamo/stock-image-platform/internal/repository"
	"github.com/iliyamo/stock-image-platform/internal/router"
	"github.com/iliyamo/stock-image-platform/internal/service"
	"github.com/iliyamo/stock-image-platform/internal/storage"
	"github.com/iliyamo/stock-image-platform/internal/validate"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, images, closeStore := openStore(ctx, cfg, zl)
	defer closeStore()

	rdb := config.NewRedisClient(config.LoadRedisConfig(), zl)
	if rdb != nil {
		defer rdb.Close()
	}

	files := openFiles(ctx, config.LoadStorageConfig(), zl)

	qcfg := config.LoadQueueConfig()
	topo := queue.Topology{Exchange: qcfg.Exchange, AuditQueue: qcfg.Queue, MailQueue: qcfg.MailQueue}
	var events queue.Publisher = queue.NopPublisher{}
	if qcfg.Enabled {
		pub := queue.NewAMQPPublisher(qcfg.URL, topo, zl)
		defer pub.Close()
		events = pub
	}
	if qcfg.ConsumerEnabled {
		go func() {
			if err := queue.StartAuditConsumer(ctx, qcfg.URL, topo, qcfg.AuditLogPath, zl); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	cache := middleware.NewUserCache(config.LoadCacheConfig(), rdb)
	var mx *metrics.Metrics
	if cfg.MetricsEnabled {
		mx = metrics.New()
	}
	auth := service.NewAuthService(users, events, service.AuthConfig{
		JWTSecret:  cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		ResetTTL:   cfg.ResetTokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, zl)
	imgs := service.NewImageService(service.ImageDeps{
		Images:   images,
		Files:    files,
		Lease:    ordering.New(rdb, cfg.UploadLeaseTTL),
		Events:   events,
		Cache:    cache,
		Recorder: mx,
		MaxFiles: cfg.MaxFilesPerUpload,
		Log:      zl,
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = validate.New()
	router.RegisterRoutes(e, router.Deps{
		Cfg:       cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Storage:   config.LoadStorageConfig(),
		Redis:     rdb,
		Cache:     cache,
		Metrics:   mx,
		Log:       zl,
		Health:    users,
		Auth:      handler.NewAuthHandler(auth, zl, cfg.IsDev()),
		Images:    handler.NewImageHandler(imgs, zl),
	})

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

// openStore connects the configured database and returns both repositories
// plus a close function.
func openStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (repository.UserStore, repository.ImageStore, func()) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		db, client, err := database.ConnectMongo(cfg.MongoURI, cfg.MongoDB, zl)
		if err != nil {
			zl.Fatal("mongo connect", zap.Error(err))
		}
		users, err := repository.NewMongoUserRepo(ctx, db, "users")
		if err != nil {
			zl.Fatal("mongo users index", zap.Error(err))
		}
		images, err := repository.NewMongoImageRepo(ctx, db, "images")
		if err != nil {
			zl.Fatal("mongo images index", zap.Error(err))
		}
		return users, images, func() { _ = client.Disconnect(context.Background()) }
	default:
		// OpenMySQL applies the embedded schema before returning.
		db, err := database.OpenMySQL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, zl)
		if err != nil {
			zl.Fatal("mysql connect", zap.Error(err))
		}
		return repository.NewMySQLUserRepo(db), repository.NewMySQLImageRepo(db), func() { _ = db.Close() }
	}
}

// openFiles builds the file processor on top of local disk or S3.
func openFiles(ctx context.Context, scfg config.StorageConfig, zl *zap.Logger) *storage.Processor {
	var store storage.FileStore
	switch scfg.Driver {
	case config.StorageS3:
		s3, err := storage.NewS3Store(ctx, scfg.S3Region, scfg.S3Bucket, scfg.S3Endpoint, scfg.S3PublicBaseURL)
		if err != nil {
			zl.Fatal("s3 store", zap.Error(err))
		}
		store = s3
	default:
		local, err := storage.NewLocalStore(scfg.Dir, scfg.PublicPrefix)
		if err != nil {
			zl.Fatal("local store", zap.Error(err))
		}
		store = local
	}
	zl.Info("file storage ready", zap.String("driver", scfg.Driver), zap.Bool("thumbnails", scfg.ThumbnailsEnabled))
	return storage.NewProcessor(store, scfg.ThumbnailsEnabled, zl)
}
