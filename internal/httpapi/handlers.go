package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"qmark.app/internal/auth"
	"qmark.app/internal/config"
	"qmark.app/internal/obs"
	"qmark.app/internal/oauth"
	"qmark.app/internal/store"
)

const (
	serviceName     = "qmark-api"
	defaultMaxBody  = 1 << 20
	readyCheckLimit = 2 * time.Second
)

// ReadyProbe reports whether the store answers.
type ReadyProbe struct {
	Store interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyCheckLimit)
	defer cancel()
	return rp.Store.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	store   *store.Store
	gate    *auth.Gate
	oauth   *oauth.Registry
	cfg     *config.Config
	ready   ReadyProbe
	version string
	started time.Time
	now     func() time.Time

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

func New(cfg *config.Config, st *store.Store, gate *auth.Gate, reg *oauth.Registry, version string) *API {
	return &API{
		store:      st,
		gate:       gate,
		oauth:      reg,
		cfg:        cfg,
		ready:      ReadyProbe{Store: st},
		version:    version,
		started:    time.Now(),
		now:        time.Now,
		rateBurst:  cfg.Rate.Burst,
		ratePerSec: cfg.Rate.PerSecond,
		maxBody:    defaultMaxBody,
	}
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return ClientIP(next, a.cfg.Server.TrustedProxies) })
	r.Use(RequestID)
	r.Use(Recover)
	r.Use(LoggingJSON)
	r.Use(func(next http.Handler) http.Handler { return obs.Instrument(next, routePattern) })
	r.Use(SecurityHeaders)
	r.Use(func(next http.Handler) http.Handler {
		return CORS(next, a.cfg.Development(), a.cfg.Server.ClientURL)
	})
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBody) })
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.Status)
		r.Get("/environment/check", a.EnvironmentCheck)

		r.Post("/auth/register", a.register)
		r.Post("/auth/login", a.login)
		r.Post("/auth/logout", a.logout)
		r.Get("/oauth/callback", a.oauthCallback)

		r.Group(func(r chi.Router) {
			r.Use(a.requireUser)

			r.Get("/auth/user", a.currentUser)
			r.Delete("/auth/user", a.deleteAccount)

			r.Get("/dashboard/stats", a.dashboardStats)
			r.Get("/dashboard/activities", a.listActivities)
			r.Post("/dashboard/activities", a.createActivity)

			r.Get("/oauth/connections", a.listConnections)
			r.Patch("/oauth/connections/{id}", a.updateConnection)
			r.Delete("/oauth/connections/{id}", a.deleteConnection)
			r.Get("/oauth/initiate/{platform}", a.initiateOAuth)

			r.Route("/leads", func(r chi.Router) {
				r.Get("/", a.listLeads)
				r.Post("/", a.createLead)
				r.Get("/{id}", a.getLead)
				r.Patch("/{id}", a.updateLead)
				r.Delete("/{id}", a.deleteLead)
			})

			r.Route("/automations", func(r chi.Router) {
				r.Get("/", a.listAutomations)
				r.Post("/", a.createAutomation)
				r.Get("/{id}", a.getAutomation)
				r.Patch("/{id}", a.updateAutomation)
				r.Delete("/{id}", a.deleteAutomation)
			})

			r.Get("/metrics", a.listMetrics)
			r.Put("/metrics", a.putMetric)
		})
	})
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		logFailure(r, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "running",
		"port":        a.cfg.Server.Port,
		"uptime":      time.Since(a.started).Seconds(),
		"timestamp":   a.now().UTC().Format(time.RFC3339),
		"environment": a.cfg.Env,
		"version":     a.version,
	})
}

// EnvironmentCheck lists which operator secrets are missing. Values are never echoed.
func (a *API) EnvironmentCheck(w http.ResponseWriter, r *http.Request) {
	missing, total := a.cfg.MissingSecrets()
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":       len(missing) == 0,
		"missingVariables": missing,
		"totalRequired":    total,
		"totalConfigured":  total - len(missing),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type successResponse struct {
	Success bool `json:"success"`
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// pageFromQuery reads limit and offset. Absent values leave the store defaults in place.
func pageFromQuery(r *http.Request) (store.Page, error) {
	var page store.Page
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, errors.New("limit must be a positive integer")
		}
		page.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	return page, nil
}

// currentUserOf returns the caller resolved by requireUser.
func currentUserOf(r *http.Request) store.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

// owned loads a row by id and hides rows of other users behind ErrNotFound.
func owned[T any](ctx context.Context, get func(context.Context, string) (T, bool, error), ownerOf func(T) string, userID, id string) (T, error) {
	var zero T
	v, ok, err := get(ctx, id)
	if err != nil {
		return zero, err
	}
	if !ok || ownerOf(v) != userID {
		return zero, store.ErrNotFound
	}
	return v, nil
}
