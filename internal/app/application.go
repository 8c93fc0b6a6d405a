package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campusmess/messhall/internal/app/metrics"
	"github.com/campusmess/messhall/internal/app/services/analytics"
	"github.com/campusmess/messhall/internal/app/services/catalog"
	"github.com/campusmess/messhall/internal/app/services/directory"
	"github.com/campusmess/messhall/internal/app/services/feedback"
	"github.com/campusmess/messhall/internal/app/services/identity"
	"github.com/campusmess/messhall/internal/app/services/scheduling"
	"github.com/campusmess/messhall/internal/app/services/uploads"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/internal/app/storage/memory"
	"github.com/campusmess/messhall/internal/app/system"
	"github.com/campusmess/messhall/internal/mealtime"
	"github.com/campusmess/messhall/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Facilities storage.FacilityStore
	Users      storage.UserStore
	MenuItems  storage.MenuItemStore
	DailyMenus storage.DailyMenuStore
	Ratings    storage.RatingStore
}

// Options carries the collaborators that are not stores. Zero values select
// in-process defaults.
type Options struct {
	JWTSecret string
	TokenTTL  time.Duration

	Windows *mealtime.Windows

	Cache    analytics.Cache
	CacheTTL time.Duration

	Objects        uploads.ObjectStore
	MaxUploadBytes int64
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	pingers []storage.Pinger

	Directory  *directory.Service
	Identity   *identity.Service
	Catalog    *catalog.Service
	Scheduling *scheduling.Service
	Feedback   *feedback.Service
	Analytics  *analytics.Service
	Uploads    *uploads.Service

	Windows *mealtime.Windows
	Feed    *feedback.Hub
	Objects uploads.ObjectStore
	Cache   analytics.Cache
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Facilities == nil {
		stores.Facilities = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.MenuItems == nil {
		stores.MenuItems = mem
	}
	if stores.DailyMenus == nil {
		stores.DailyMenus = mem
	}
	if stores.Ratings == nil {
		stores.Ratings = mem
	}

	if opts.JWTSecret == "" {
		log.Warn("JWT secret not set; using an ephemeral secret, sessions will not survive a restart")
		opts.JWTSecret = uuid.NewString() + uuid.NewString()
	}
	if opts.Windows == nil {
		opts.Windows = mealtime.Default(time.UTC)
	}
	if opts.Cache == nil {
		opts.Cache = analytics.NewMemoryCache()
	}
	if opts.Objects == nil {
		opts.Objects = uploads.NewMemoryStore("/uploads")
	}

	storage.RetryObserver = metrics.RecordRetry

	tokens, err := identity.NewTokens(opts.JWTSecret, opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("configure tokens: %w", err)
	}

	hub := feedback.NewHub(feedback.DefaultBuffer)
	dirService := directory.New(stores.Facilities, log)
	identityService := identity.New(stores.Users, dirService, tokens, log)
	catalogService := catalog.New(stores.MenuItems, log)
	schedulingService := scheduling.New(stores.DailyMenus, catalogService, log)
	feedbackService := feedback.New(stores.Ratings, catalogService, schedulingService, opts.Windows, hub, log)
	analyticsService := analytics.New(stores.Ratings, stores.MenuItems, stores.DailyMenus, opts.Cache, opts.CacheTTL, log)
	uploadService := uploads.New(opts.Objects, opts.MaxUploadBytes, log)

	var pingers []storage.Pinger
	seen := map[any]bool{}
	for _, s := range []any{stores.Facilities, stores.Users, stores.MenuItems, stores.DailyMenus, stores.Ratings} {
		if p, ok := s.(storage.Pinger); ok && !seen[s] {
			seen[s] = true
			pingers = append(pingers, p)
		}
	}

	manager := system.NewManager()
	for _, name := range []string{"directory", "identity", "catalog", "scheduling", "feedback", "analytics", "uploads"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		pingers:    pingers,
		Directory:  dirService,
		Identity:   identityService,
		Catalog:    catalogService,
		Scheduling: schedulingService,
		Feedback:   feedbackService,
		Analytics:  analyticsService,
		Uploads:    uploadService,
		Windows:    opts.Windows,
		Feed:       hub,
		Objects:    opts.Objects,
		Cache:      opts.Cache,
	}, nil
}

// Ping checks every remote store. In-memory stores are always healthy.
func (a *Application) Ping(ctx context.Context) error {
	for _, p := range a.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Services lists the registered lifecycle services in start order.
func (a *Application) Services() []string {
	return a.manager.Names()
}
