// Package app assembles the pipeline service and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/joshsymonds/advisor/internal/analysis"
	"github.com/joshsymonds/advisor/internal/artifacts"
	"github.com/joshsymonds/advisor/internal/cache"
	"github.com/joshsymonds/advisor/internal/classifier"
	"github.com/joshsymonds/advisor/internal/config"
	"github.com/joshsymonds/advisor/internal/convert"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/lock"
	"github.com/joshsymonds/advisor/internal/normalize"
	"github.com/joshsymonds/advisor/internal/pipeline"
	"github.com/joshsymonds/advisor/internal/queue"
	"github.com/joshsymonds/advisor/internal/report"
	"github.com/joshsymonds/advisor/internal/tabular"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// App holds the assembled service and everything that must be closed with it.
type App struct {
	Config  *config.Config
	DB      *database.DB
	Blobs   artifacts.Store
	Cache   cache.Cache
	Locker  lock.Locker
	Service *pipeline.Service
	Logger  logger.Logger
	closers []func() error
}

// New connects every backend named by cfg and builds the service.
// On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (a *App, err error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	a = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := ensureSQLiteDir(cfg.Database); err != nil {
		return nil, err
	}
	a.DB, err = database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.onClose(a.DB.Close)

	if a.Blobs, err = openBlobs(ctx, cfg.Artifacts, log); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Cache.Backend == "redis" || cfg.Lock.Backend == "redis" {
		rdb, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}, log)
		if err != nil {
			return nil, err
		}
		a.onClose(rdb.Close)
	}

	if a.Cache, err = openCache(cfg.Cache, rdb); err != nil {
		return nil, err
	}

	switch cfg.Lock.Backend {
	case "redis":
		a.Locker = lock.NewRedisLocker(rdb, "", log)
	default:
		a.Locker = lock.NewMemoryLocker()
	}

	cls, err := newClassifier(cfg, a.Cache, log)
	if err != nil {
		return nil, err
	}

	renderer, err := report.NewRendererWithLogger(log)
	if err != nil {
		return nil, fmt.Errorf("loading report templates: %w", err)
	}

	converter, err := NewConverter(cfg.Converter, log)
	if err != nil {
		return nil, err
	}

	a.Service, err = pipeline.NewService(pipeline.Deps{
		DB:     a.DB,
		Blobs:  a.Blobs,
		Locker: a.Locker,
		Parser: tabular.New(tabular.Options{
			MaxBytes: cfg.Parser.MaxBytes,
			MaxRows:  cfg.Parser.MaxRows,
		}, log),
		Normalizer: normalize.New(cfg.Report.DefaultCurrency),
		Classifier: cls,
		Builder:    analysis.NewBuilderWithLogger(BuilderOptions(cfg.Report), log),
		Renderer:   renderer,
		Converter:  converter,
		Logger:     log,
		LockTTL:    cfg.Lock.TTL,
		BatchSize:  cfg.Classifier.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Application assembled",
		"database", cfg.Database.Driver,
		"artifacts", cfg.Artifacts.Backend,
		"cache", cfg.Cache.Backend,
		"lock", cfg.Lock.Backend,
		"converter_mode", cfg.Converter.Mode)
	return a, nil
}

// Producer creates a job producer from the queue configuration.
func (a *App) Producer() (*queue.Producer, error) {
	return queue.NewProducer(a.queueConfig(), a.Logger)
}

// Consumer creates a job consumer running against the service.
// Retryable failures are requeued through requeue.
func (a *App) Consumer(requeue *queue.Producer) (*queue.Consumer, error) {
	return queue.NewConsumer(a.queueConfig(), a.Service, requeue, a.Logger)
}

func (a *App) queueConfig() queue.Config {
	return queue.Config{
		Brokers: a.Config.Queue.Brokers,
		Topic:   a.Config.Queue.Topic,
		GroupID: a.Config.Queue.GroupID,
	}
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// BuilderOptions maps report configuration onto builder options.
func BuilderOptions(rc config.ReportConfig) analysis.Options {
	opts := analysis.DefaultOptions()
	opts.DefaultCurrency = rc.DefaultCurrency
	opts.TopN = rc.TopN
	opts.QuickWinPercentile = rc.QuickWinPercentile
	opts.HourlyRate = rc.HourlyRate
	opts.CostMultiplier = rc.CostMultiplier
	if len(rc.SecurityWeights) > 0 {
		weights := make(map[string]float64, len(rc.SecurityWeights))
		for severity, w := range rc.SecurityWeights {
			weights[strings.ToLower(severity)] = w
		}
		opts.SecurityWeights = weights
	}
	return opts
}

// NewConverter builds the document converter for cc.
func NewConverter(cc config.ConverterConfig, log logger.Logger) (*convert.Converter, error) {
	mode, err := convert.ParseMode(cc.Mode)
	if err != nil {
		return nil, err
	}
	var primary, fallback convert.Engine
	if mode != convert.ModeFallback {
		primary = convert.NewChromeEngine(cc.ChromePath, log)
	}
	if mode != convert.ModePrimary {
		fallback = convert.NewWkhtmltopdfEngine(cc.WkhtmltopdfBin, log)
	}
	return convert.NewWithLogger(primary, fallback, convert.Options{
		Mode:           mode,
		Timeout:        cc.Timeout,
		PrimaryRetries: cc.PrimaryRetries,
	}, log)
}

func newClassifier(cfg *config.Config, c cache.Cache, log logger.Logger) (pipeline.Classifier, error) {
	opts := []classifier.Option{
		classifier.WithDefaultTerm(cfg.Classifier.DefaultTermYears),
		classifier.WithLogger(log),
	}
	if cfg.Classifier.Dictionary != "" {
		dict, err := classifier.LoadDictionary(cfg.Classifier.Dictionary)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classifier.WithDictionary(dict))
	}
	inner := classifier.New(opts...)
	if c == nil {
		return inner, nil
	}
	return classifier.NewCached(inner, c, cfg.Cache.TTL, log), nil
}

func openBlobs(ctx context.Context, ac config.ArtifactsConfig, log logger.Logger) (artifacts.Store, error) {
	switch ac.Backend {
	case "s3":
		return artifacts.NewS3Store(ctx, artifacts.S3Options{
			Bucket:       ac.S3.Bucket,
			Region:       ac.S3.Region,
			Prefix:       ac.S3.Prefix,
			Endpoint:     ac.S3.Endpoint,
			UsePathStyle: ac.S3.UsePathStyle,
		}, log)
	default:
		return artifacts.NewFileStoreWithLogger(ac.BaseDir, log)
	}
}

// openCache returns nil when caching is disabled.
func openCache(cc config.CacheConfig, rdb *redis.Client) (cache.Cache, error) {
	switch cc.Backend {
	case "memory":
		return cache.NewMemoryCache(), nil
	case "file":
		return cache.NewFileCache(cc.Dir)
	case "redis":
		return cache.NewRedisCache(rdb, ""), nil
	default:
		return nil, nil
	}
}

func ensureSQLiteDir(dc config.DatabaseConfig) error {
	if dc.Driver != database.DriverSQLite || strings.HasPrefix(dc.DSN, "file:") || dc.DSN == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dc.DSN)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	return nil
}
