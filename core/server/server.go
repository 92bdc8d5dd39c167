// Package server hosts the operational HTTP surface and the push endpoint mount.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/m3rciful/weatherbot/core/buildinfo"
	"github.com/m3rciful/weatherbot/core/logger"
)

const shutdownTimeout = 10 * time.Second

// Options configures New.
type Options struct {
	Listen string
	Port   int
	// WebhookPath is where push deliveries are accepted; empty disables the route.
	WebhookPath string
	// ReadTimeout and WriteTimeout default to 15s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the fiber app serving health probes and, while attached, the push endpoint.
type Server struct {
	app      *fiber.App
	addr     string
	path     string
	endpoint atomic.Pointer[fiber.Handler]
}

// New builds the app and registers its routes. Nothing listens until Run.
func New(opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	s := &Server{
		addr: net.JoinHostPort(opts.Listen, strconv.Itoa(opts.Port)),
		path: opts.WebhookPath,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               buildinfo.Name,
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(requestLog)

	for _, route := range []string{"/", "/health", "/healthz", "/ready", "/alive"} {
		s.app.Get(route, health)
	}
	if s.path != "" {
		s.app.Post(s.path, s.webhook)
	}
	return s
}

// App exposes the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Addr reports the listen address.
func (s *Server) Addr() string { return s.addr }

// WebhookPath reports the path push deliveries are accepted on.
func (s *Server) WebhookPath() string { return s.path }

// Attach routes push deliveries to h until Detach.
func (s *Server) Attach(h fiber.Handler) {
	if h == nil {
		s.endpoint.Store(nil)
		return
	}
	s.endpoint.Store(&h)
}

// Detach stops routing push deliveries; the route answers 503 again.
func (s *Server) Detach() { s.endpoint.Store(nil) }

// Attached reports whether a push endpoint is currently mounted.
func (s *Server) Attached() bool { return s.endpoint.Load() != nil }

func (s *Server) webhook(c *fiber.Ctx) error {
	h := s.endpoint.Load()
	if h == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "push endpoint not attached")
	}
	return (*h)(c)
}

// Run listens until ctx is done, then shuts the app down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.addr)
	}()
	logger.HTTP.Info("http listening",
		slog.String("event", "http.listen"),
		slog.String("addr", s.addr),
		slog.Bool("webhook_route", s.path != ""),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	start := time.Now()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.HTTP.Warn("http shutdown failed",
			slog.String("event", "http.shutdown"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("server: shutdown: %w", err)
	}
	logger.HTTP.Info("http stopped",
		slog.String("event", "http.shutdown"),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    buildinfo.Name,
		"version": buildinfo.Version,
		"status":  "ok",
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func requestLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if !logger.ShouldSampleDebug() && err == nil {
		return nil
	}
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	level := slog.LevelDebug
	if status >= fiber.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logger.LogEvent(c.UserContext(), logger.HTTP, level, "http.request",
		slog.String("method", c.Method()),
		slog.String("path", c.Route().Path),
		slog.Int("code", status),
		slog.Duration("duration", logger.Took(start)),
	)
	return err
}
