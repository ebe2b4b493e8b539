// Package api exposes swaps, monitor status and the notification stream
// over HTTP.
package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/monitor"
	"htlc-relayer/internal/observability"
	"htlc-relayer/internal/storage"
	"htlc-relayer/internal/swap"
)

// Swaps is the coordinator surface served by the API.
type Swaps interface {
	CreateSwap(ctx context.Context, p swap.CreateParams) (*domain.Swap, error)
	GetSwap(ctx context.Context, id string) (*domain.Swap, error)
	GetSwapByOrderID(ctx context.Context, orderID string) (*domain.Swap, error)
	ListSwaps(ctx context.Context, filter storage.SwapFilter) (*storage.SwapPage, error)
	SwapEvents(ctx context.Context, id string) ([]*domain.SwapEvent, error)
	UpdateSwapStatus(ctx context.Context, orderID string, u swap.StatusUpdate) (*domain.Swap, error)
	DeleteSwap(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*swap.Stats, error)
	ExpiredSwaps(ctx context.Context, now time.Time, limit int) (*storage.SwapPage, error)
}

var _ Swaps = (*swap.Coordinator)(nil)

// StatusSource reports the monitor state.
type StatusSource interface {
	Status() monitor.Status
}

// Options configures a Server.
type Options struct {
	Swaps   Swaps        // required
	Monitor StatusSource // optional
	Stream  http.Handler // websocket endpoint, optional
	Metrics http.Handler // defaults to observability.Handler()
	Logger  *zap.Logger
	Now     func() time.Time
}

// Server serves the REST surface.
type Server struct {
	swaps   Swaps
	monitor StatusSource
	stream  http.Handler
	metrics http.Handler
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Swaps == nil {
		return nil, errors.New("api: swaps service is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Handler()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		swaps:   opts.Swaps,
		monitor: opts.Monitor,
		stream:  opts.Stream,
		metrics: opts.Metrics,
		logger:  opts.Logger.Named("api"),
		now:     opts.Now,
	}, nil
}

// Handler returns the routed handler wrapped in logging and recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/swaps", s.handleCreate)
	mux.HandleFunc("GET /api/v1/swaps", s.handleList)
	mux.HandleFunc("GET /api/v1/swaps/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/swaps/order/{orderId}", s.handleGetByOrder)
	mux.HandleFunc("GET /api/v1/swaps/{id}", s.handleGet)
	// {sub} keeps this pattern strictly wider than order/{orderId}.
	mux.HandleFunc("GET /api/v1/swaps/{id}/{sub}", s.handleSubresource)
	mux.HandleFunc("PATCH /api/v1/swaps/{id}/status", s.handleUpdateStatus)
	mux.HandleFunc("DELETE /api/v1/swaps/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/v1/monitor/status", s.handleMonitorStatus)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", s.metrics)
	if s.stream != nil {
		mux.Handle("GET /ws", s.stream)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	return s.instrument(mux)
}

// statusRecorder captures the response code for logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the connection through for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panic",
					zap.Any("panic", p),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				writeError(rec, http.StatusInternalServerError, codeInternal, "internal error")
			}

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			observability.RecordHTTPRequest(route, rec.code, elapsed.Seconds())
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.code),
				zap.Duration("duration", elapsed),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}
