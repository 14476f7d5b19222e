package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/routerx/route"
	"github.com/rickgao/routerx/router"
)

// connChecker reports whether the remote host is reachable.
type connChecker interface {
	IsConnected() bool
}

// admin serves health, metrics, route listings and navigation over HTTP.
type admin struct {
	router      *router.Router
	gatherer    prometheus.Gatherer
	metricsPath string
	remote      connChecker // nil when launches stay in process
	logger      *slog.Logger
}

func (a *app) admin() *admin {
	adm := &admin{
		router:      a.router,
		gatherer:    a.registry,
		metricsPath: a.cfg.Metrics.Path,
		logger:      a.logger,
	}
	if a.remote != nil {
		adm.remote = a.remote
	}
	return adm
}

func (a *admin) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.health)
	r.Method(http.MethodGet, a.metricsPath, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	r.Get("/debug/routes", a.routes)
	r.Post("/navigate", a.navigate)
	return r
}

func (a *admin) health(w http.ResponseWriter, r *http.Request) {
	stats := a.router.Stats()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	health.Components["registry"] = map[string]any{
		"routes":         stats.Registry.Routes,
		"pending_groups": stats.Registry.PendingGroups,
		"providers":      stats.Registry.Providers,
		"interceptors":   stats.Registry.Interceptors,
		"load_failures":  stats.Registry.LoadFailures,
	}
	health.Components["executor"] = map[string]any{
		"workers":  stats.Pool.Workers,
		"queued":   stats.Pool.Queued,
		"rejected": stats.Pool.Rejected,
	}
	health.Components["main_loop"] = map[string]any{
		"queued": stats.Loop.Len,
	}

	switch {
	case a.remote == nil:
		health.Components["host"] = "in_process"
	case a.remote.IsConnected():
		health.Components["host"] = "connected"
	default:
		health.Status = "unhealthy"
		health.Components["host"] = "disconnected"
	}

	if health.Status == "healthy" && stats.Registry.LoadFailures > 0 {
		health.Status = "degraded"
	}

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	a.writeJSON(w, code, health)
}

type routeView struct {
	Path     string            `json:"path"`
	Group    string            `json:"group"`
	Kind     route.Kind        `json:"kind"`
	Target   string            `json:"target"`
	Priority int               `json:"priority"`
	Extras   int               `json:"extras"`
	Params   map[string]string `json:"params,omitempty"`
}

func newRouteView(m route.Meta) routeView {
	v := routeView{
		Path:     m.Path,
		Group:    m.Group,
		Kind:     m.Kind,
		Target:   m.Target,
		Priority: m.Priority,
		Extras:   m.Extras,
	}
	if len(m.Params) > 0 {
		v.Params = make(map[string]string, len(m.Params))
		for name, kind := range m.Params {
			v.Params[name] = kind.String()
		}
	}
	return v
}

// routes lists materialized routes. ?all=true loads every pending group first.
func (a *admin) routes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if err := a.router.LoadAll(r.Context()); err != nil {
			a.logger.Warn("some groups failed to load", "error", err)
		}
	}

	metas := a.router.Routes()
	views := make([]routeView, 0, len(metas))
	for _, m := range metas {
		views = append(views, newRouteView(m))
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"count":          len(views),
		"pending_groups": a.router.PendingGroups(),
		"routes":         views,
	})
}

type navigateRequest struct {
	Path         string         `json:"path"`
	URI          string         `json:"uri"`
	Params       map[string]any `json:"params"`
	RequestCode  int            `json:"request_code"`
	GreenChannel bool           `json:"green_channel"`
	TimeoutMs    int            `json:"timeout_ms"`
}

type navigateResponse struct {
	RequestID string     `json:"request_id"`
	Path      string     `json:"path"`
	State     string     `json:"state"`
	Kind      route.Kind `json:"kind"`
	Target    string     `json:"target,omitempty"`
	Result    string     `json:"result,omitempty"` // type of the returned instance
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func (a *admin) navigate(w http.ResponseWriter, r *http.Request) {
	var body navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	req, err := a.build(r.Context(), body)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.router.Navigate(r.Context(), req, nil)

	resp := navigateResponse{
		RequestID: req.ID.String(),
		Path:      req.Path,
		State:     req.State().String(),
		Kind:      req.Kind,
		Target:    req.Target,
		Reason:    req.InterruptReason,
	}
	if result != nil {
		resp.Result = fmt.Sprintf("%T", result)
	}

	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = navigateStatus(err)
	}
	a.writeJSON(w, code, resp)
}

func (a *admin) build(ctx context.Context, body navigateRequest) (*route.Request, error) {
	var (
		req *route.Request
		err error
	)
	switch {
	case body.URI != "":
		uri, perr := url.Parse(body.URI)
		if perr != nil {
			return nil, fmt.Errorf("parse uri: %w", perr)
		}
		req, err = a.router.BuildURI(ctx, uri)
	case body.Path != "":
		req, err = a.router.Build(ctx, body.Path)
	default:
		return nil, errors.New("path or uri is required")
	}
	if err != nil {
		return nil, err
	}

	for k, v := range body.Params {
		req.WithObject(k, v)
	}
	if body.RequestCode > 0 {
		req.ForResult(body.RequestCode)
	}
	if body.GreenChannel {
		req.WithGreenChannel()
	}
	if body.TimeoutMs > 0 {
		req.WithTimeout(time.Duration(body.TimeoutMs) * time.Millisecond)
	}
	return req, nil
}

func navigateStatus(err error) int {
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, route.ErrInterrupted):
		return http.StatusConflict
	case errors.Is(err, route.ErrInitialization):
		return http.StatusServiceUnavailable
	case errors.Is(err, route.ErrHandler):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *admin) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("failed to write response", "error", err)
	}
}

func (a *admin) writeError(w http.ResponseWriter, code int, err error) {
	a.writeJSON(w, code, map[string]string{"error": err.Error()})
}
