// Package runtime turns a config.Config into a running server: it opens the
// configured backends, wires the application, and owns the HTTP listener.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	app "github.com/campusmess/messhall/internal/app"
	"github.com/campusmess/messhall/internal/app/httpapi"
	"github.com/campusmess/messhall/internal/app/services/analytics"
	"github.com/campusmess/messhall/internal/app/services/uploads"
	"github.com/campusmess/messhall/internal/app/storage/memory"
	"github.com/campusmess/messhall/internal/app/storage/mongo"
	"github.com/campusmess/messhall/internal/app/storage/postgres"
	"github.com/campusmess/messhall/internal/config"
	"github.com/campusmess/messhall/internal/mealtime"
	"github.com/campusmess/messhall/internal/platform/migrations"
	"github.com/campusmess/messhall/pkg/logger"
)

// limiterIdle is how long a client address may stay quiet before its limiter
// is pruned.
const limiterIdle = 15 * time.Minute

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	app     *app.Application
	handler http.Handler
	server  *http.Server
	closers []func(context.Context) error
}

// NewApplication opens every configured backend and builds the HTTP handler.
// Backends opened before a failure are closed again.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Application, err error) {
	if log == nil {
		log = logger.NewDefault("runtime")
	}
	a := &Application{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.closeBackends(context.Background())
		}
	}()

	stores, db, err := a.buildStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	cache, err := a.buildCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure analytics cache: %w", err)
	}
	objects, err := a.buildObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure uploads: %w", err)
	}

	loc, err := cfg.Meals.Location()
	if err != nil {
		return nil, fmt.Errorf("meal timezone: %w", err)
	}
	windows := mealtime.Default(loc)
	var watcher *mealtime.Watcher
	if cfg.Meals.WindowsFile != "" {
		watcher, err = mealtime.NewWatcher(cfg.Meals.WindowsFile, loc, windows, log.Component("mealtime"))
		if err != nil {
			return nil, fmt.Errorf("meal windows: %w", err)
		}
	}

	application, err := app.New(stores, app.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		TokenTTL:       cfg.Auth.TokenTTL,
		Windows:        windows,
		Cache:          cache,
		CacheTTL:       cfg.Analytics.CacheTTL,
		Objects:        objects,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
	}, log)
	if err != nil {
		if watcher != nil {
			watcher.Stop()
		}
		return nil, err
	}
	if watcher != nil {
		if err := application.Attach(watcherService{watcher}); err != nil {
			watcher.Stop()
			return nil, err
		}
	}

	var limiter, authLimiter *httpapi.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		if cfg.RateLimit.AuthPerMinute > 0 {
			authLimiter = httpapi.NewPerMinuteLimiter(cfg.RateLimit.AuthPerMinute, log)
		}
	}

	keeper, err := NewHousekeeper(cfg.Housekeeping.Schedule, log.Component("housekeeping"))
	if err != nil {
		return nil, err
	}
	registerJobs(keeper, application, cache, db, log, limiter, authLimiter)
	if err := application.Attach(keeper); err != nil {
		return nil, err
	}

	a.app = application
	a.handler = httpapi.NewHandler(application, httpapi.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
		AuthLimiter:    authLimiter,
		AuditLogPath:   cfg.Server.AuditLogPath,
		Log:            log.Component("httpapi"),
	})
	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return a, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler { return a.handler }

// App exposes the wired application services.
func (a *Application) App() *app.Application { return a.app }

// Run starts the lifecycle services and the HTTP server and blocks until the
// context is cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the HTTP server, stops lifecycle services and closes the
// backends. It keeps going after a failing step and joins the errors.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.closeBackends(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Application) closeBackends(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.WithError(err).Warn("error closing backend")
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) buildStores(ctx context.Context) (app.Stores, *sqlx.DB, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnectTimeout, cfg.Database.IdleTimeout)
		if err != nil {
			return app.Stores{}, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(ctx, db.DB); err != nil {
				return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
			}
			a.log.Info("database migrations applied")
		}
		store := postgres.New(db)
		return app.Stores{Facilities: store, Users: store, MenuItems: store, DailyMenus: store, Ratings: store}, db, nil

	case config.DriverMongo:
		store, err := mongo.Open(ctx, mongo.Options{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
			MaxIdleTime:    cfg.Mongo.IdleTimeout,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return app.Stores{}, nil, err
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureIndexes(ctx); err != nil {
			return app.Stores{}, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return app.Stores{Facilities: store, Users: store, MenuItems: store, DailyMenus: store, Ratings: store}, nil, nil

	default:
		a.log.Warn("using in-memory store; data is lost on restart")
		store := memory.New()
		return app.Stores{Facilities: store, Users: store, MenuItems: store, DailyMenus: store, Ratings: store}, nil, nil
	}
}

func (a *Application) buildCache(ctx context.Context) (analytics.Cache, error) {
	if a.cfg.Redis.Addr == "" {
		return analytics.NewMemoryCache(), nil
	}
	cache, err := analytics.NewRedisCache(ctx, analytics.RedisOptions{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
	return cache, nil
}

func (a *Application) buildObjects(ctx context.Context) (uploads.ObjectStore, error) {
	u := a.cfg.Uploads
	if u.Backend != config.UploadsGCS {
		return uploads.NewMemoryStore("/uploads"), nil
	}
	store, err := uploads.NewGCSStore(ctx, u.Bucket, u.CredentialsFile, u.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return store, nil
}

// registerJobs wires the periodic maintenance that keeps in-process state
// bounded and reports pool health.
func registerJobs(keeper *Housekeeper, application *app.Application, cache analytics.Cache, db *sqlx.DB, log *logger.Logger, limiters ...*httpapi.RateLimiter) {
	for i, rl := range limiters {
		if rl == nil {
			continue
		}
		rl := rl
		name := "prune-rate-limiter"
		if i > 0 {
			name = "prune-auth-rate-limiter"
		}
		keeper.Add(name, func(context.Context) error {
			if n := rl.Prune(limiterIdle); n > 0 {
				log.WithField("removed", n).Debug("pruned idle rate limiters")
			}
			return nil
		})
	}
	if mc, ok := cache.(*analytics.MemoryCache); ok {
		keeper.Add("prune-analytics-cache", func(context.Context) error {
			if n := mc.Prune(); n > 0 {
				log.WithField("removed", n).Debug("pruned expired analytics reports")
			}
			return nil
		})
	}
	keeper.Add("check-stores", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return application.Ping(pingCtx)
	})
	if db != nil {
		keeper.Add("database-stats", func(context.Context) error {
			st := db.Stats()
			log.WithField("open", st.OpenConnections).
				WithField("in_use", st.InUse).
				WithField("idle", st.Idle).
				WithField("wait_count", st.WaitCount).
				Debug("database pool")
			return nil
		})
	}
	keeper.Add("live-feed-stats", func(context.Context) error {
		log.WithField("subscribers", application.Feed.Subscribers()).
			WithField("dropped", application.Feed.Dropped()).
			Debug("live feed")
		return nil
	})
}

// watcherService adapts the meal window watcher to the lifecycle manager.
type watcherService struct {
	w *mealtime.Watcher
}

func (s watcherService) Name() string { return "meal-windows-watcher" }

// Start detaches from ctx; the watcher runs until Stop.
func (s watcherService) Start(context.Context) error {
	s.w.Start(context.Background())
	return nil
}

func (s watcherService) Stop(context.Context) error {
	s.w.Stop()
	return nil
}
