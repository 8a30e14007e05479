package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dutch-auction-engine/core"
	"dutch-auction-engine/core/model"
	"dutch-auction-engine/store"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const HeaderRequestID = "X-Request-ID"

type Option func(*Server)

// History serves what the store recorded: event logs by topic and indexed
// inscription outcomes.
type History interface {
	Logs(topic common.Hash) ([]store.LogRow, error)
	Ops(from string) ([]*model.AuctionOp, error)
}

// WithReadOnly rejects every mutating route. Used when the engine is driven
// by the chain indexer.
func WithReadOnly() Option {
	return func(s *Server) { s.readOnly = true }
}

func WithMetrics(m *core.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPrometheus records HTTP metrics on reg and serves it on /metrics.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithNonceStore keeps accepted request nonces in ns instead of memory, so
// signed requests cannot be replayed after a restart.
func WithNonceStore(ns NonceStore) Option {
	return func(s *Server) { s.nonces = ns }
}

// WithHistory serves /v1/events and /v1/ops from h.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

type Server struct {
	engine   *core.Engine
	balances *core.Balances
	clock    core.Clock
	metrics  *core.Metrics
	registry *prometheus.Registry
	history  History
	readOnly bool
	nonces   NonceStore

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	router *gin.Engine
}

func NewServer(engine *core.Engine, balances *core.Balances, clock core.Clock, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		balances: balances,
		clock:    clock,
		nonces:   newNonceTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry != nil {
		factory := promauto.With(s.registry)
		s.requests = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "code"})
		s.latency = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of response latency (seconds) for HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"})
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.observe())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	v1.GET("/owner", s.getOwner)
	v1.GET("/treasury", s.getTreasury)
	v1.GET("/balances/:address", s.getBalance)
	v1.GET("/auctions", s.listAuctions)
	v1.GET("/auctions/:index", s.getAuction)
	v1.GET("/auctions/:index/price", s.getPrice)
	if s.history != nil {
		v1.GET("/events", s.listEvents)
		v1.GET("/ops", s.listOps)
	}

	signed := v1.Group("", s.writable, s.authenticate)
	signed.POST("/auctions", s.createAuction)
	signed.POST("/auctions/:index/buy", s.buy)
	signed.POST("/withdraw", s.withdraw)

	s.router = router
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("http listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) writable(c *gin.Context) {
	if s.readOnly {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"code": "ReadOnly", "error": "engine is driven by the chain indexer"})
		return
	}
	c.Next()
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Set(HeaderRequestID, id)
		c.Next()
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		if s.requests != nil {
			s.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
			s.latency.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())
		}
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString(HeaderRequestID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    elapsed,
		}).Info("http request")
	}
}
