// Package httpapi exposes the engine and memory tiers over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shahincodev/Sofware-AI-English/internal/core"
	"github.com/shahincodev/Sofware-AI-English/internal/engine"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

var validate = validator.New()

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr           string
	APIKey         string       // if set, require X-API-Key header or query api_key
	MetricsHandler http.Handler // if set, served at /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // wrap the handler with otelhttp for request metrics
	MaxBodyBytes   int64        // 0 = models.DefaultMaxRequestBodyBytes
	Logger         *slog.Logger
}

// App holds the HTTP server, the SSE hub and the wired engine.
type App struct {
	Server *http.Server
	Hub    *SSEHub
	Core   *core.App

	logger  *slog.Logger
	pending sync.Map // task id -> *engine.Handle, running or recently finished
}

// NewApp builds the router for c. hub should be the same hub passed to
// core.WithEvents so /stream sees engine events.
func NewApp(c *core.App, hub *SSEHub, opts ServerOptions) *App {
	if hub == nil {
		hub = NewSSEHub()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = models.DefaultMaxRequestBodyBytes
	}
	a := &App{Hub: hub, Core: c, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogMiddleware(logger))
	r.Use(bodyLimitMiddleware(opts.MaxBodyBytes))
	if opts.APIKey != "" {
		r.Use(apiKeyMiddleware(opts.APIKey))
	}

	r.Get("/health", a.handleHealth)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	} else {
		r.Get("/metrics", a.handlePlainMetrics)
	}
	r.Get("/stream", hub.Handler())

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", a.handleSubmit)
		r.Post("/batch", a.handleBatch)
		r.Get("/{id}", a.handleTaskStatus)
	})
	r.Route("/memory", func(r chi.Router) {
		r.Get("/", a.handleQuery)
		r.Post("/sweep", a.handleSweep)
		r.Get("/{id}", a.handleRecall)
		r.Post("/{id}/promote", a.handlePromote)
	})

	var handler http.Handler = r
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "software-ai")
	}
	a.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Core.Memory.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{
		"ok":          true,
		"in_flight":   a.Core.Engine.InFlight(),
		"concurrency": a.Core.Engine.Concurrency(),
		"stm_entries": a.Core.Memory.ShortTerm().Len(),
	})
}

func (a *App) handlePlainMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "# TYPE software_ai_tasks_inflight gauge\n")
	_, _ = fmt.Fprintf(w, "software_ai_tasks_inflight %d\n", a.Core.Engine.InFlight())
	_, _ = fmt.Fprintf(w, "# TYPE software_ai_stm_entries gauge\n")
	_, _ = fmt.Fprintf(w, "software_ai_stm_entries %d\n", a.Core.Memory.ShortTerm().Len())
	_, _ = fmt.Fprintf(w, "# TYPE software_ai_sse_connections gauge\n")
	_, _ = fmt.Fprintf(w, "software_ai_sse_connections %d\n", a.Hub.Subscribers())
}

func (a *App) taskFrom(req models.SubmitTaskRequest) (models.Task, error) {
	mode := models.Mode(a.Core.Config.Mode)
	if req.Mode != "" {
		m, err := models.ParseMode(req.Mode)
		if err != nil {
			return models.Task{}, err
		}
		mode = m
	}
	return models.NewTask(req.Text, mode), nil
}

// handleSubmit blocks until the task is admitted, then answers 202.
func (a *App) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	task, err := a.taskFrom(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h, err := a.Core.Engine.Submit(r.Context(), task)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	a.track(h)
	w.Header().Set("Location", "/tasks/"+task.ID)
	writeJSONStatus(w, http.StatusAccepted, models.SubmitTaskResponse{TaskID: task.ID, Mode: task.Mode})
}

// track keeps h reachable from GET /tasks/{id} while it runs and for one
// short-term TTL after, so a memory write error stays visible to pollers.
func (a *App) track(h *engine.Handle) {
	a.pending.Store(h.Task.ID, h)
	go func() {
		<-h.Done()
		time.AfterFunc(a.Core.Config.Memory.STMTTL, func() {
			a.pending.CompareAndDelete(h.Task.ID, h)
		})
	}()
}

func (a *App) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if v, ok := a.pending.Load(id); ok {
		h := v.(*engine.Handle)
		if r.URL.Query().Get("wait") != "" {
			o, err := h.Wait(r.Context())
			if err != nil && r.Context().Err() != nil {
				return
			}
			writeJSON(w, models.TaskStatus{TaskID: id, Result: taskResult(o, err)})
			return
		}
		if h.Pending() {
			writeJSON(w, models.TaskStatus{TaskID: id, Pending: true})
			return
		}
		o, err := h.Result()
		writeJSON(w, models.TaskStatus{TaskID: id, Result: taskResult(o, err)})
		return
	}
	rec, ok, err := a.Core.Memory.Recall(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, models.TaskStatus{TaskID: id, Result: &models.TaskResult{Outcome: rec.Outcome}})
}

func (a *App) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	tasks := make([]models.Task, len(req.Tasks))
	for i, tr := range req.Tasks {
		t, err := a.taskFrom(tr)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("tasks[%d]: %v", i, err))
			return
		}
		tasks[i] = t
	}
	if a.Core.Engine.Closed() {
		writeEngineError(w, models.ErrEngineClosed)
		return
	}
	// A shutdown racing the batch still yields one outcome per task.
	outcomes, err := a.Core.Engine.RunAll(r.Context(), tasks)
	memErrs := memoryErrors(err)
	resp := models.BatchResponse{Results: make([]models.TaskResult, len(outcomes))}
	for i, o := range outcomes {
		resp.Results[i] = models.TaskResult{Outcome: o, MemoryError: memErrs[o.TaskID]}
	}
	writeJSON(w, resp)
}

func (a *App) handleRecall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok, err := a.Core.Memory.Recall(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not in memory")
		return
	}
	writeJSON(w, models.RecallResponse{Tier: rec.Tier, Outcome: rec.Outcome})
}

func (a *App) handlePromote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	promoted, err := a.Core.Memory.Promote(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !promoted {
		writeJSONStatus(w, http.StatusNotFound, models.PromoteResponse{TaskID: id})
		return
	}
	writeJSON(w, models.PromoteResponse{TaskID: id, Promoted: true})
}

func (a *App) handleQuery(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := store.Collect(a.Core.Memory.Query(r.Context(), f))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []models.MemoryRecord{}
	}
	writeJSON(w, recs)
}

func (a *App) handleSweep(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, models.SweepResponse{Removed: a.Core.Memory.Sweep()})
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{Limit: models.DefaultQueryLimit}
	if s := q.Get("mode"); s != "" {
		m, err := models.ParseMode(s)
		if err != nil {
			return f, err
		}
		f.Mode = m
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		if s := q.Get(p.key); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return f, fmt.Errorf("%s: %w", p.key, err)
			}
			*p.dst = t
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit: must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func taskResult(o models.Outcome, err error) *models.TaskResult {
	res := &models.TaskResult{Outcome: o}
	if err != nil {
		res.MemoryError = err.Error()
	}
	return res
}

// memoryErrors indexes the memory write failures joined in err by task id.
func memoryErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}
	// A lone MemoryWriteError also has Unwrap() []error; it is not a join.
	if mwe, ok := err.(*models.MemoryWriteError); ok {
		out[mwe.TaskID] = mwe.Error()
		return out
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var mwe *models.MemoryWriteError
		if errors.As(e, &mwe) {
			out[mwe.TaskID] = mwe.Error()
		}
	}
	return out
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrEngineClosed):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
