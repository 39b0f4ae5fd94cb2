// Package server wires the HTTP surface: the webhook route, health and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/chatdigest/internal/profile"
	"github.com/hrygo/chatdigest/internal/version"
	"github.com/hrygo/chatdigest/plugin/ai/timeout"
	"github.com/hrygo/chatdigest/server/internal/observability"
	"github.com/hrygo/chatdigest/server/middleware"
	"github.com/hrygo/chatdigest/server/router/webhook"
	"github.com/hrygo/chatdigest/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store
	Metrics *observability.Metrics

	echoServer *echo.Echo
}

// NewMetrics creates the collectors shared by the HTTP layer and the digest service.
func NewMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

// NewServer registers every route. handler receives the verified text messages.
func NewServer(profile *profile.Profile, store *store.Store, handler webhook.MessageHandler, metrics *observability.Metrics) *Server {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	s := &Server{
		Profile: profile,
		Store:   store,
		Metrics: metrics,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.RequestID())
	echoServer.Use(middleware.Metrics(metrics))
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.handleHealthz)
	echoServer.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	limiter := middleware.NewRateLimiter(profile.RateLimitPerSecond, profile.RateLimitBurst)
	webhookService := webhook.NewService(profile.ChannelSecret, handler, metrics, slog.Default())
	webhookService.Register(echoServer, profile.WebhookPath,
		limiter.Middleware(),
		echomiddleware.BodyLimit("1M"),
	)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	address := net.JoinHostPort(s.Profile.Addr, fmt.Sprint(s.Profile.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	slog.InfoContext(ctx, "chatdigest started",
		slog.String("address", listener.Addr().String()),
		slog.String("version", version.GetCurrentVersion(s.Profile.Mode)),
		slog.String("webhook_path", s.Profile.WebhookPath))
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start server")
	}
	return nil
}

// Shutdown stops accepting webhooks, waits for in-flight handlers, then closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeout.ShutdownTimeout)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			slog.Error("failed to close database", slog.String("error", err.Error()))
		}
	}
	slog.Info("chatdigest stopped properly")
}

func (s *Server) handleHealthz(c echo.Context) error {
	if s.Store != nil {
		if err := s.Store.GetDriver().GetDB().PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
