package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	Enabled  bool
	SpecPath string
	// ValidateResponses impacts performance and only logs failures.
	ValidateRequests  bool
	ValidateResponses bool
	// SkipPaths entries ending in "/" skip every path below them; other
	// entries must match exactly.
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig enables request validation outside production.
func DefaultOpenAPIValidatorConfig() *OpenAPIValidatorConfig {
	env := os.Getenv("ENVIRONMENT")
	isDev := env != "production" && env != "prod"

	return &OpenAPIValidatorConfig{
		Enabled:           isDev,
		SpecPath:          "api/openapi.yaml",
		ValidateRequests:  true,
		ValidateResponses: false,
		SkipPaths: []string{
			"/",
			"/health",
			"/health/ready",
			"/metrics",
			"/ws/",
			"/static/",
		},
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// OpenAPIValidator creates a middleware that validates HTTP requests, and
// optionally responses, against an OpenAPI 3 document. A document that
// cannot be loaded disables validation rather than failing requests.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultOpenAPIValidatorConfig()
	}

	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return passthrough
	}

	router, err := loadRouter(config.SpecPath)
	if err != nil {
		slog.Error("OpenAPI validation unavailable",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return passthrough
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("spec_path", config.SpecPath))

	options := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if config.ValidateRequests {
					slog.Warn("request path not found in OpenAPI spec",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path))
					writeValidationError(w, fmt.Sprintf("Path not found in OpenAPI spec: %s %s", r.Method, r.URL.Path))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			requestInput := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), requestInput); err != nil {
					slog.Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeValidationError(w, fmt.Sprintf("Request validation failed: %s", err.Error()))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			responseInput := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: requestInput,
				Status:                 recorder.statusCode,
				Header:                 recorder.Header(),
				Body:                   io.NopCloser(bytes.NewReader(recorder.body)),
				Options:                options,
			}

			// The response is already written; failures are only logged.
			if err := openapi3filter.ValidateResponse(r.Context(), responseInput); err != nil {
				slog.Warn("response validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.statusCode),
					slog.String("error", err.Error()))
			}
		})
	}
}

func loadRouter(specPath string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}
	return router, nil
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath {
			return true
		}
		if len(skipPath) > 1 && strings.HasSuffix(skipPath, "/") && strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

func writeValidationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// responseRecorder tees the response so it can be validated after the
// handler returns.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
