package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/ratelimit"
)

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type Server struct {
	gin     *gin.Engine
	config  config.Config
	log     *zap.SugaredLogger
	limiter *ratelimit.ClientRateLimiter
}

func NewServer(log *zap.Logger, cfg config.Config) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if cfg.Server.Debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "127.0.0.1:8080"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar().Named("api"),
	}
	if rl := cfg.Server.RateLimit; !rl.Disabled {
		limits := ratelimit.DefaultAdminConfig()
		if rl.RequestsPerSecond > 0 {
			limits.Rate = rl.RequestsPerSecond
		}
		if rl.Burst > 0 {
			limits.Burst = rl.Burst
		}
		s.limiter = ratelimit.New(limits)
	}

	engine.GET("metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	return s
}

// RegisterAll mounts the controllers below /admin.
func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("admin", s.adminAuth()...)
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) adminAuth() []gin.HandlerFunc {
	var handlers []gin.HandlerFunc
	if s.config.Server.AdminUser != "" && s.config.Server.AdminPassword != "" {
		handlers = append(handlers, gin.BasicAuth(gin.Accounts{s.config.Server.AdminUser: s.config.Server.AdminPassword}))
	}
	if s.limiter != nil {
		handlers = append(handlers, s.limiter.Middleware())
	}
	return handlers
}

// Close releases background resources. Listen calls it on return.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	defer s.Close()
	timeouts := s.config.Server.GetServerTimeouts()
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadTimeout:       timeouts.GetReadTimeout(),
		ReadHeaderTimeout: timeouts.GetReadHeaderTimeout(),
		WriteTimeout:      timeouts.GetWriteTimeout(),
		IdleTimeout:       timeouts.GetIdleTimeout(),
		MaxHeaderBytes:    timeouts.GetMaxHeaderBytes(),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	s.log.Infow("Admin server listening", "address", srv.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.GetShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.log.Info("Admin server stopped")
		return nil
	}
}
