// Package mock is an in-memory PVZ API used to smoke-test load scenarios
// without the real service.
//
// It implements the endpoints the built-in scenario drives:
//
//	POST /dummyLogin                         {role} -> {jwt}
//	POST /pvz                                moderator, {city} -> 201 PVZ
//	POST /receptions                         employee, {pvzId} -> 201 Reception
//	POST /products                           employee, {pvzId, type} -> 201 Product
//	POST /pvz/:pvzId/close_last_reception    employee
//	POST /pvz/:pvzId/delete_last_product     employee
//	GET  /pvz?startDate&endDate&page&limit   employee or moderator
package mock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Server is the fake PVZ API.
type Server struct {
	store    *store
	tokens   *tokenIssuer
	validate *validator.Validate
	logger   *zap.Logger

	failureRate float64
	latency     time.Duration
	jitter      time.Duration

	rngMu sync.Mutex
	rng   *gofakeit.Faker

	requests atomic.Int64
	injected atomic.Int64

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HS256 signing key for tokens.
func WithSecret(secret string) Option {
	return func(s *Server) { s.tokens.secret = []byte(secret) }
}

// WithFailureRate makes the given fraction of requests fail with 500.
func WithFailureRate(rate float64) Option {
	return func(s *Server) { s.failureRate = rate }
}

// WithLatency delays every response by d plus a random jitter up to jitter.
func WithLatency(d, jitter time.Duration) Option {
	return func(s *Server) {
		s.latency = d
		s.jitter = jitter
	}
}

// WithSeed makes injected failures and jitter reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Server) { s.rng = gofakeit.New(seed) }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source for registration dates and tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.store.now = now
		s.tokens.now = now
	}
}

// New creates a Server.
func New(options ...Option) *Server {
	s := &Server{
		store:    newStore(time.Now),
		tokens:   &tokenIssuer{secret: []byte("pvzload-mock"), ttl: time.Hour, now: time.Now},
		validate: newValidator(),
		logger:   zap.NewNop(),
		rng:      gofakeit.New(0),
	}
	for _, opt := range options {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Requests returns how many requests were served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// InjectedFailures returns how many requests were failed on purpose.
func (s *Server) InjectedFailures() int64 {
	return s.injected.Load()
}

// PVZCount returns how many PVZs exist.
func (s *Server) PVZCount() int {
	return s.store.count()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("Mock PVZ API listening", zap.String("addr", ln.Addr().String()))
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), s.injectFaults())

	r.POST("/dummyLogin", s.dummyLogin)
	r.GET("/healthz", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	authed := r.Group("/", s.authenticate())
	authed.POST("/pvz", requireRole(RoleModerator), s.createPVZ)
	authed.GET("/pvz", requireRole(RoleEmployee, RoleModerator), s.listPVZ)
	authed.POST("/receptions", requireRole(RoleEmployee), s.openReception)
	authed.POST("/products", requireRole(RoleEmployee), s.addProduct)
	authed.POST("/pvz/:pvzId/close_last_reception", requireRole(RoleEmployee), s.closeReception)
	authed.POST("/pvz/:pvzId/delete_last_product", requireRole(RoleEmployee), s.deleteLastProduct)

	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		s.requests.Add(1)
		ctx.Next()
		s.logger.Debug("Request served",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) injectFaults() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if s.latency > 0 || s.jitter > 0 {
			delay := s.latency
			if s.jitter > 0 {
				s.rngMu.Lock()
				delay += time.Duration(s.rng.IntRange(0, int(s.jitter)))
				s.rngMu.Unlock()
			}
			select {
			case <-time.After(delay):
			case <-ctx.Request.Context().Done():
				ctx.Abort()
				return
			}
		}

		if s.failureRate > 0 {
			s.rngMu.Lock()
			fail := s.rng.Float64() < s.failureRate
			s.rngMu.Unlock()
			if fail {
				s.injected.Add(1)
				abort(ctx, http.StatusInternalServerError, "injected failure")
				return
			}
		}
		ctx.Next()
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

func abort(ctx *gin.Context, status int, msg string) {
	ctx.AbortWithStatusJSON(status, errorResponse{Message: msg})
}
