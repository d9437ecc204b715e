package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"penny/internal/categorize"
	"penny/internal/core"
	"penny/internal/csvimport"
	applog "penny/internal/log"
	"penny/internal/middleware/ratelimit"
	"penny/internal/middleware/security"
	"penny/internal/middleware/trace"
	"penny/internal/services"
)

// DefaultMaxUploadBytes bounds a CSV upload when Options leaves it unset.
const DefaultMaxUploadBytes = 10 << 20

// ExpenseAPI is what the handlers need from the service layer.
type ExpenseAPI interface {
	CreateExpense(ctx context.Context, n core.NewExpense) (core.Expense, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	ImportCSV(ctx context.Context, r io.Reader) (csvimport.Result, error)
	Dashboard(ctx context.Context) (core.DashboardView, error)
	Rules() *categorize.RuleTable
	Ping(ctx context.Context) error
	Metrics() services.Metrics
}

type Options struct {
	Logger         *applog.Logger
	MaxUploadBytes int64
	RateLimit      ratelimit.Config
	TrustedProxies []string
}

type Server struct {
	http.Server
	api            ExpenseAPI
	logger         *applog.Logger
	maxUploadBytes int64
	limiter        *ratelimit.Limiter
	traceMw        *trace.Middleware
	started        time.Time
	shutdownOnce   sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
// Routes are served both at the root and under /api.
func NewServer(addr string, api ExpenseAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}

	clientIP := security.NewClientIPResolver()
	for _, cidr := range opts.TrustedProxies {
		if err := clientIP.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}

	s := &Server{
		api:            api,
		logger:         logger.WithComponent(applog.ComponentHTTP),
		maxUploadBytes: opts.MaxUploadBytes,
		limiter:        ratelimit.NewLimiter(opts.RateLimit),
		traceMw:        trace.NewMiddleware(logger, clientIP.ExtractClientIP),
		started:        time.Now(),
	}

	routes := http.NewServeMux()
	routes.HandleFunc("GET /expenses", s.handleListExpenses)
	routes.HandleFunc("POST /expenses", s.handleCreateExpense)
	routes.HandleFunc("GET /expenses/dashboard", s.handleDashboard)
	routes.HandleFunc("GET /expenses/categories", s.handleCategories)
	routes.HandleFunc("POST /expenses/upload-csv", s.handleUploadCSV)
	routes.HandleFunc("GET /expenses/{id}", s.handleGetExpense)
	routes.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)
	routes.HandleFunc("GET /healthz", s.handleHealth)
	routes.HandleFunc("GET /readyz", s.handleReady)
	routes.HandleFunc("GET /metrics", s.handleMetrics)

	handler := jsonMuxErrors(routes)
	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", handler))
	root.Handle("/", handler)

	var h http.Handler = root
	h = s.limiter.Middleware(clientIP.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMw.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "HTTP server shutting down", applog.FieldOperation, applog.OpShutdown)
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// jsonMuxErrors turns the mux's own plain-text 404 and 405 replies into the
// JSON error body. Handler-written errors are already JSON and pass through.
func jsonMuxErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&muxErrorWriter{ResponseWriter: w}, r)
	})
}

type muxErrorWriter struct {
	http.ResponseWriter
	swallow bool
}

func (mw *muxErrorWriter) WriteHeader(code int) {
	plain := strings.HasPrefix(mw.Header().Get("Content-Type"), "text/plain")
	if !plain || (code != http.StatusNotFound && code != http.StatusMethodNotAllowed) {
		mw.ResponseWriter.WriteHeader(code)
		return
	}
	mw.swallow = true
	mw.Header().Del("Content-Length")
	if code == http.StatusMethodNotAllowed {
		MethodNotAllowedError(mw.Header().Get("Allow")).Write(mw.ResponseWriter)
		return
	}
	NotFoundError("Resource not found").Write(mw.ResponseWriter)
}

func (mw *muxErrorWriter) Write(b []byte) (int, error) {
	if mw.swallow {
		return len(b), nil
	}
	return mw.ResponseWriter.Write(b)
}
