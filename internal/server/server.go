package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"spycat/internal/apperr"
	"spycat/internal/metrics"
	"spycat/internal/service"
)

// Config for the HTTP API handler.
type Config struct {
	Services     service.Services
	BasePath     string
	Production   bool
	AllowOrigins []string
	// DB is pinged by the health check when set.
	DB      *sql.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// apiError is the error envelope every failed request carries.
type apiError struct {
	status int
	Msg    string `json:"msg" example:"Cat with given identifier - id=6f1c2a4e-0000-4000-8000-000000000000 not found"`
	Alias  string `json:"alias" example:"object_not_found"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Msg }

type server struct {
	svc    service.Services
	logger *slog.Logger
}

// New returns an HTTP handler exposing the agency API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", joinDetails(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Request schema violations are reported as 400 bad_request.
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", joinDetails(msg, errs))
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger, cfg.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(corsHandler(cfg.AllowOrigins))
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, newAPIError(http.StatusNotFound, "", "Not Found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, newAPIError(http.StatusMethodNotAllowed, "", "Method Not Allowed"))
	})

	hcfg := huma.DefaultConfig("SpyCatAgency_API", "0.1.0")
	hcfg.OpenAPIPath = "" // served below, development only
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	// Bodies carry no $schema links.
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	s := &server{svc: cfg.Services, logger: logger}
	registerHealth(api, cfg.DB)
	s.registerCats(group)
	s.registerMissions(group)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler())
	}
	if !cfg.Production {
		registerDocs(router)
		registerOpenAPI(router, api)
	}
	return router, nil
}

func newAPIError(status int, alias apperr.Kind, msg string) *apiError {
	if alias == "" {
		alias = defaultAliasForStatus(status)
	}
	return &apiError{status: status, Msg: msg, Alias: string(alias)}
}

func joinDetails(msg string, errs []error) string {
	if len(errs) == 0 {
		return msg
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			parts = append(parts, e.Error())
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func defaultAliasForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.BadRequest
	case http.StatusNotFound:
		return apperr.NotFound
	case http.StatusConflict:
		return apperr.AlreadyExists
	case http.StatusGone:
		return apperr.Gone
	case http.StatusForbidden:
		return apperr.Forbidden
	case http.StatusServiceUnavailable:
		return apperr.Unavailable
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return apperr.Kind(strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")))
	}
}

func (s *server) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return newAPIError(ae.Kind.Status(), ae.Kind, ae.Msg)
	}
	s.logger.ErrorContext(ctx, "request failed", "err", err, "request_id", middleware.GetReqID(ctx))
	return newAPIError(http.StatusInternalServerError, "", "Internal server error")
}

func writeEnvelope(w http.ResponseWriter, e *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	json.NewEncoder(w).Encode(e)
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.NewBadRequest("%s must be a valid UUID, got %q.", name, raw)
	}
	return id, nil
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func requestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			m.ObserveRequest(r.Method, route, status, elapsed)
			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func registerDocs(r chi.Router) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML("/openapi.json"))
	})
}

func registerOpenAPI(r chi.Router, api huma.API) {
	var spec []byte
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(specURL string) string {
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>SpyCatAgency_API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, conn *sql.DB) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if conn != nil {
			if err := conn.PingContext(ctx); err != nil {
				return nil, newAPIError(http.StatusServiceUnavailable, "", "Database is unavailable")
			}
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
