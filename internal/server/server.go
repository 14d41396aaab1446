package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/store"

	_ "github.com/cipherlens/cipherlens/internal/server/docs" // registers the swagger spec
)

const (
	// maxBodyBytes caps JSON, CSV and raw message request bodies.
	maxBodyBytes = 10 << 20

	// maxLoggedBody is how much of a request body the access log keeps.
	maxLoggedBody = 2048
)

// Server is the HTTP + WebSocket API surface for CipherLens.
type Server struct {
	cfg      app.ServerConfig
	svc      *app.Service
	router   chi.Router
	upgrader websocket.Upgrader
	limiter  *clientLimiter
	logger   logging.Logger
}

// NewServer routes the API over svc. The Service is owned by the caller.
func NewServer(svc *app.Service, cfg app.ServerConfig, logger logging.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server: nil service")
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		router:  r,
		limiter: newClientLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the dashboard origin once it has a fixed host
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

// Service returns the underlying service for advanced use (tests, etc.).
func (s *Server) Service() *app.Service {
	return s.svc
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	for _, p := range []string{"url", "content", "batch", "email"} {
		r.Options("/api/detect/"+p, s.optionsHandler("POST"))
	}
	r.Options("/api/detect/status/{taskID}", s.optionsHandler("GET"))
	for _, p := range []string{"features", "html", "elements"} {
		r.Options("/api/explain/"+p, s.optionsHandler("POST"))
	}
	r.Options("/api/feedback/submit", s.optionsHandler("POST"))
	r.Options("/api/dataset/load", s.optionsHandler("POST"))
	r.Options("/api/compare", s.optionsHandler("POST"))
	r.Options("/api/jobs", s.optionsHandler("GET"))
	r.Options("/api/jobs/{jobID}", s.optionsHandler("GET, DELETE"))

	r.Get("/health", s.handleHealth)
	r.Get("/api/info", s.handleInfo)

	// Detection, rate limited per client
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/api/detect/url", s.handleDetectURL)
		r.Post("/api/detect/content", s.handleDetectContent)
		r.Post("/api/detect/batch", s.handleDetectBatch)
		r.Post("/api/detect/email", s.handleDetectEmail)
	})
	r.Get("/api/detect/status/{taskID}", s.handleTaskStatus)

	// Explanations
	r.Post("/api/explain/features", s.handleExplainFeatures)
	r.Post("/api/explain/html", s.handleExplainHTML)
	r.Post("/api/explain/elements", s.handleExplainElements)

	// Feedback and reporting
	r.Post("/api/feedback/submit", s.handleSubmitFeedback)
	r.Get("/api/statistics", s.handleStatistics)
	r.Get("/api/recent-detections", s.handleRecentDetections)
	r.Post("/api/compare", s.handleCompare)
	r.Get("/api/snapshots/{snapshotID}", s.handleSnapshot)

	// Jobs over REST
	r.Post("/api/dataset/load", s.handleLoadDataset)
	r.Get("/api/jobs", s.handleListJobs)
	r.Get("/api/jobs/{jobID}", s.handleGetJob)
	r.Delete("/api/jobs/{jobID}", s.handleCancelJob)

	// WebSocket for job progress
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)

	r.Handle("/metrics", s.svc.Metrics().Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			s.logger.Warn("rate limited", logging.Field{Key: "client", Value: clientKey(r)}, logging.Field{Key: "path", Value: r.URL.Path})
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1)); err == nil {
			logged := bodyBytes
			if len(logged) > maxLoggedBody {
				logged = logged[:maxLoggedBody]
			}
			fields = append(fields, logging.Field{Key: "body", Value: string(logged)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	readTimeout := s.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case app.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrTaskNotFound),
		errors.Is(err, app.ErrJobNotFound),
		errors.Is(err, app.ErrDatasetNotFound),
		errors.Is(err, store.ErrDetectionNotFound),
		errors.Is(err, store.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrClosed), errors.Is(err, app.ErrFetchUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err at a level matching its status and writes it.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	fields := []logging.Field{{Key: "op", Value: op}, {Key: "error", Value: err.Error()}}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Warn("request rejected", fields...)
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched so
// the service reports the missing field.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
