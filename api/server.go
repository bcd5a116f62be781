// Package api serves the HTTP surface: the narrative proxy that keeps the
// provider key off the browser, hydrated reports, entity listings for
// selection, health, and Prometheus metrics.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"qbrreport/dataset"
	"qbrreport/internal/openaiutil"
	"qbrreport/internal/ratelimit"
	"qbrreport/narrative"
)

// Logger is the subset of *log.Logger the server uses.
type Logger interface {
	Printf(format string, args ...any)
}

// Options wires the server's collaborators. Only Hydrator is required for
// report routes; a nil Limiter disables rate limiting.
type Options struct {
	Dataset           *dataset.Dataset
	Hydrator          *narrative.Hydrator
	Provider          openaiutil.Config
	ProxyLimiter      *ratelimit.Limiter
	ReportLimiter     *ratelimit.Limiter
	Metrics           *Metrics
	History           History
	AllowedOrigins    []string
	TrustProxyHeaders bool
	// InternalToken, when set, exempts requests carrying it in
	// openaiutil.InternalTokenHeader from rate limiting. The service's own
	// gateway sends it.
	InternalToken string
	AccessLog     io.Writer
	Logger        Logger
}

// Server holds the handlers. The dataset can be swapped at runtime.
type Server struct {
	opts Options
	data atomic.Pointer[dataset.Dataset]
}

// NewServer constructs a Server.
func NewServer(opts Options) *Server {
	if opts.Provider.Model == "" {
		opts.Provider.Model = openaiutil.DefaultModel
	}
	s := &Server{opts: opts}
	if opts.Dataset != nil {
		s.data.Store(opts.Dataset)
	}
	return s
}

// SetDataset replaces the dataset served by report routes.
func (s *Server) SetDataset(ds *dataset.Dataset) {
	s.data.Store(ds)
}

// Dataset returns the dataset currently served.
func (s *Server) Dataset() *dataset.Dataset {
	return s.data.Load()
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.opts.Metrics.Middleware, requestID)

	r.HandleFunc("/api/qbr-narrative", s.handleProxy).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/api/entities", s.handleEntities).Methods(http.MethodGet)
	r.HandleFunc("/api/hydrations", s.handleHydrations).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if len(s.opts.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.opts.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
			handlers.AllowCredentials(),
		)(h)
	}
	if s.opts.AccessLog != nil {
		h = handlers.LoggingHandler(s.opts.AccessLog, h)
	}
	if s.opts.TrustProxyHeaders {
		h = handlers.ProxyHeaders(h)
	}
	return h
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}

// allow applies a per-client limiter. Calls from the service's own gateway
// are exempt so they are not counted twice; they are recognized by the
// internal token, never by address.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, l *ratelimit.Limiter) bool {
	if l == nil || s.internal(r) {
		return true
	}
	ok, retry := l.Allow(clientHost(r))
	if ok {
		return true
	}
	secs := int(retry.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", itoa(secs))
	writeDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func (s *Server) internal(r *http.Request) bool {
	token := s.opts.InternalToken
	got := r.Header.Get(openaiutil.InternalTokenHeader)
	if token == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, openaiutil.ProxyError{Detail: detail})
}
