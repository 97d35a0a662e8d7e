package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"reconledger/internal/config"
	"reconledger/internal/domain"
	"reconledger/internal/infra/metrics"
	"reconledger/internal/infra/ratelimit"
	"reconledger/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg     config.Config
	gateway *usecase.Gateway
	store   Pinger
	log     *zap.Logger
	metrics *metrics.Collector
	r       *gin.Engine

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Gateway     *usecase.Gateway
	Store       Pinger
	Log         *zap.Logger
	Metrics     *metrics.Collector
	RateLimiter domain.RateLimiter
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), GinLogger(log))

	s := &Server{
		cfg:     cfg,
		gateway: deps.Gateway,
		store:   deps.Store,
		log:     log,
		metrics: deps.Metrics,
		r:       r,
	}
	if s.metrics != nil {
		r.Use(s.countRequests)
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimit.Requests > 0 {
		if s.cfg.Redis.Addr != "" {
			client, err := ratelimit.NewRedisClient(s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.DB)
			if err == nil {
				if limiter, err := ratelimit.NewRedisLimiter(client, nil); err == nil {
					s.rateLimiter = limiter
				}
			}
			if s.rateLimiter == nil {
				s.log.Warn("redis rate limiter unavailable, using in-memory limiter", zap.String("addr", s.cfg.Redis.Addr))
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{
				MaxKeys: s.cfg.RateLimit.MaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimit.Requests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimit.FailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1")
	{
		tickets := v1.Group("/tickets")
		tickets.POST("", s.limit(routeTicketsWrite), s.handleIngestTicket)
		tickets.GET("", s.limit(routeTicketsRead), s.handleListTickets)
		tickets.POST("/heartbeat", s.limit(routeTicketsWrite), s.handleTicketHeartbeat)
		tickets.GET("/:id", s.limit(routeTicketsRead), s.handleGetTicket)
		tickets.PUT("/:id", s.limit(routeTicketsWrite), s.handleModifyTicket)
		tickets.POST("/:id/close", s.limit(routeTicketsWrite), s.handleCloseTicket)
		tickets.GET("/:id/history", s.limit(routeTicketsRead), s.handleTicketHistory)
		tickets.GET("/:id/consistency", s.limit(routeTicketsRead), s.handleTicketConsistency)

		audits := v1.Group("/payment-audits")
		audits.GET("", s.limit(routeAuditsRead), s.handleListAudits)
		audits.GET("/report", s.limit(routeAuditsRead), s.handleAuditReport)
		audits.PUT("/:date", s.limit(routeAuditsWrite), s.handleRecordAudit)
		audits.GET("/:date", s.limit(routeAuditsRead), s.handleGetAudit)
		audits.GET("/:date/revisions", s.limit(routeAuditsRead), s.handleAuditRevisions)

		bags := v1.Group("/cash-bags")
		bags.POST("", s.limit(routeBagsWrite), s.handleAssignBag)
		bags.POST("/batch", s.limit(routeBagsWrite), s.handleAssignBags)
		bags.GET("/unverified", s.limit(routeBagsRead), s.handleUnverifiedBags)
		bags.GET("/discrepancies", s.limit(routeBagsRead), s.handleDiscrepancies)
		bags.GET("/:bag_id", s.limit(routeBagsRead), s.handleGetBag)
		bags.DELETE("/:bag_id", s.limit(routeBagsWrite), s.handleDeleteBag)
		bags.POST("/:bag_id/verification", s.limit(routeBagsWrite), s.handleVerifyBag)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Handler is the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.r, "reconledger",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
}
