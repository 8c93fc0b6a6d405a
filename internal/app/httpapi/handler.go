package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/campusmess/messhall/internal/app"
	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/metrics"
	"github.com/campusmess/messhall/internal/app/services/uploads"
	"github.com/campusmess/messhall/pkg/logger"
)

// Options tunes the HTTP surface. Nil limiters disable rate limiting.
type Options struct {
	AllowedOrigins []string
	Limiter        *RateLimiter
	AuthLimiter    *RateLimiter
	AuditLogPath   string
	Log            *logger.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app     *app.Application
	log     *logger.Logger
	audit   *auditTrail
	origins []string
}

// NewHandler returns a router exposing the REST API, the live feed, health
// and metrics.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	var journal func(auditEntry) error
	if opts.AuditLogPath != "" {
		if j, err := openAuditJournal(opts.AuditLogPath); err != nil {
			log.WithError(err).Warn("open audit journal; keeping audit entries in memory only")
		} else if err := application.Attach(j); err != nil {
			log.WithError(err).Warn("audit journal not attached")
			_ = j.Stop(context.Background())
		} else {
			journal = j.append
		}
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	trail := newAuditTrail(0, journal, func(err error) {
		log.WithError(err).Warn("audit journal write failed")
	})
	h := &handler{app: application, log: log, audit: trail, origins: origins}

	r := mux.NewRouter()
	r.Use(h.logRequests, h.recoverPanics)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if mem, ok := application.Objects.(*uploads.MemoryStore); ok {
		r.PathPrefix("/uploads/").Handler(mem).Methods(http.MethodGet, http.MethodHead)
	}

	api := r.PathPrefix("/api").Subrouter()
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Handler)
	}

	authLimited := func(fn http.HandlerFunc) http.Handler {
		if opts.AuthLimiter == nil {
			return fn
		}
		return opts.AuthLimiter.Handler(fn)
	}
	api.Handle("/auth/register", authLimited(h.register)).Methods(http.MethodPost)
	api.Handle("/auth/login", authLimited(h.login)).Methods(http.MethodPost)
	api.HandleFunc("/facilities", h.listFacilities).Methods(http.MethodGet)

	p := api.NewRoute().Subrouter()
	p.Use(h.authenticate)

	p.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	p.HandleFunc("/auth/password", h.changePassword).Methods(http.MethodPut)

	p.HandleFunc("/facilities/{facilityId}", h.getFacility).Methods(http.MethodGet)
	p.HandleFunc("/facilities/{facilityId}/messes", h.addMess).Methods(http.MethodPost)
	p.HandleFunc("/facilities/{facilityId}/messes/name-available", h.messNameAvailable).Methods(http.MethodGet)
	p.HandleFunc("/facilities/{facilityId}/messes/{messId}", h.updateMess).Methods(http.MethodPatch)
	p.HandleFunc("/facilities/{facilityId}/messes/{messId}", h.deactivateMess).Methods(http.MethodDelete)

	p.HandleFunc("/menu-items", h.createItem).Methods(http.MethodPost)
	p.HandleFunc("/menu-items", h.listItems).Methods(http.MethodGet)
	p.HandleFunc("/menu-items/{id}", h.getItem).Methods(http.MethodGet)
	p.HandleFunc("/menu-items/{id}", h.updateItem).Methods(http.MethodPatch)
	p.HandleFunc("/menu-items/{id}", h.deleteItem).Methods(http.MethodDelete)
	p.HandleFunc("/menu-items/{id}/ratings", h.itemRatings).Methods(http.MethodGet)
	p.HandleFunc("/menu-items/{id}/ratings/reconcile", h.reconcileItem).Methods(http.MethodPost)

	p.HandleFunc("/daily-menus", h.createMenu).Methods(http.MethodPost)
	p.HandleFunc("/daily-menus", h.listMenus).Methods(http.MethodGet)
	p.HandleFunc("/daily-menus/{id}", h.getMenu).Methods(http.MethodGet)
	p.HandleFunc("/daily-menus/{id}", h.updateMenuDetails).Methods(http.MethodPatch)
	p.HandleFunc("/daily-menus/{id}/items", h.addMenuItem).Methods(http.MethodPost)
	p.HandleFunc("/daily-menus/{id}/items/{itemId}", h.updateMenuItemStatus).Methods(http.MethodPatch)
	p.HandleFunc("/daily-menus/{id}/items/{itemId}", h.removeMenuItem).Methods(http.MethodDelete)
	p.HandleFunc("/daily-menus/{id}/{action:publish|activate|complete|cancel}", h.transitionMenu).Methods(http.MethodPost)
	p.HandleFunc("/daily-menus/{id}/ratings/reconcile", h.reconcileMenu).Methods(http.MethodPost)

	p.HandleFunc("/ratings", h.submitRating).Methods(http.MethodPost)
	p.HandleFunc("/ratings/mine", h.myRatings).Methods(http.MethodGet)
	p.HandleFunc("/ratings/{id}", h.getRating).Methods(http.MethodGet)
	p.HandleFunc("/ratings/{id}", h.updateRating).Methods(http.MethodPatch)
	p.HandleFunc("/ratings/{id}", h.deleteRating).Methods(http.MethodDelete)
	p.HandleFunc("/ratings/{id}/vote", h.voteRating).Methods(http.MethodPost)

	p.HandleFunc("/analytics/dashboard", h.dashboard).Methods(http.MethodGet)
	p.HandleFunc("/analytics/items/{id}/trend", h.itemTrend).Methods(http.MethodGet)

	p.HandleFunc("/uploads", h.upload).Methods(http.MethodPost)
	p.HandleFunc("/uploads/{key:.+}", h.deleteUpload).Methods(http.MethodDelete)

	p.HandleFunc("/meal-windows", h.mealWindows).Methods(http.MethodGet)
	p.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)
	p.HandleFunc("/live", h.liveFeed).Methods(http.MethodGet)

	// Request ids and CORS must also cover unmatched routes such as preflights.
	return metrics.InstrumentHandler(h.requestID(h.cors(r)))
}

// fail writes the classified error. Server-side failures are logged with
// their cause since the response never carries it.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", requestIDFrom(r.Context())).
			WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

// caller returns the authenticated principal. Routes behind authenticate
// always have one.
func caller(r *http.Request) user.Principal {
	p, _ := principalFrom(r.Context())
	return p
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, core.NewValidationError(name, "must be true or false")
	}
	return v, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

// bind decodes a JSON body and validates its tags.
func bind(r *http.Request, dst interface{}) error {
	if err := decodeJSON(r.Body, dst); err != nil {
		return core.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return validateRequest(dst)
}
