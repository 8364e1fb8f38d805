package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/akave-ai/apicapture/internal/capture"
	"github.com/akave-ai/apicapture/internal/config"
	"github.com/akave-ai/apicapture/internal/forwarder"
	"github.com/akave-ai/apicapture/internal/handler"
	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
	_ "github.com/akave-ai/apicapture/internal/infrastructure/outputs/httpoutput"
	_ "github.com/akave-ai/apicapture/internal/infrastructure/outputs/logoutput"
	_ "github.com/akave-ai/apicapture/internal/infrastructure/outputs/o3output"
	"github.com/akave-ai/apicapture/internal/messaging"
	"github.com/akave-ai/apicapture/internal/relay"
	"github.com/akave-ai/apicapture/internal/response"
	"github.com/akave-ai/apicapture/internal/storage"
	"github.com/akave-ai/apicapture/internal/window"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Deps are the running pipeline pieces the server exposes.
type Deps struct {
	Logger      zerolog.Logger
	Interceptor *capture.Interceptor
	Window      *window.Window
	Channel     *messaging.Channel
	Relay       *relay.Relay
	Forwarder   *forwarder.Forwarder
	Outputs     *handler.OutputHandler
	// O3 backs the /uploads routes; nil when storage is not configured.
	O3 *storage.O3Client
}

// Server holds the Echo app and dependencies.
type Server struct {
	Echo    *echo.Echo
	Config  *config.Config
	Proxies *ProxyDispatcher
	deps    Deps
	log     zerolog.Logger
	started time.Time
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	logger := deps.Logger.With().Str("component", "server").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(), requestLogger(logger))
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.Server.CORSAllowedOrigins}))
	}

	e.Server.Addr = ":" + cfg.Server.Port
	if t := cfg.Server.ReadTimeout; t > 0 {
		e.Server.ReadTimeout = time.Duration(t) * time.Second
	}
	if t := cfg.Server.WriteTimeout; t > 0 {
		e.Server.WriteTimeout = time.Duration(t) * time.Second
	}
	if t := cfg.Server.IdleTimeout; t > 0 {
		e.Server.IdleTimeout = time.Duration(t) * time.Second
	}

	s := &Server{
		Echo:    e,
		Config:  cfg,
		Proxies: NewProxyDispatcher(deps.Logger),
		deps:    deps,
		log:     logger,
		started: time.Now().UTC(),
	}

	if len(cfg.Proxy.Targets) > 0 && deps.Interceptor == nil {
		return nil, errors.New("proxy targets configured without an interceptor")
	}
	for name, raw := range cfg.Proxy.Targets {
		target, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy target %q: %w", name, err)
		}
		s.Proxies.Mount(name, target, deps.Interceptor.Transport(http.DefaultTransport.(*http.Transport).Clone()))
		logger.Info().Str("name", name).Str("target", target.String()).Msg("capturing proxy mounted")
	}

	e.GET("/health", s.health)

	// Management API
	if h := deps.Outputs; h != nil {
		e.GET("/outputs/types", h.ListTypes)
		e.GET("/outputs/types/:type", h.GetTypeInfo)
		e.GET("/outputs/info", h.GetAllTypesInfo)
		e.GET("/outputs", h.ListOutputs)
		e.POST("/outputs", h.CreateOutput)
		e.DELETE("/outputs/:id", h.DeleteOutput)
	}

	e.GET("/captures/recent", s.recent)
	e.GET("/captures/status", s.status)

	// List objects uploaded to O3 (record batches)
	e.GET("/uploads", s.listUploads)
	e.GET("/uploads/content", s.uploadContent)

	e.Any(ProxyPrefix+"/*", echo.WrapHandler(s.Proxies))

	types := outputs.GlobalRegistry.ListRegistered()
	sort.Strings(types)
	logger.Info().Strs("types", types).Msg("registered output types")

	return s, nil
}

func (s *Server) health(c echo.Context) error {
	return response.OK(c, map[string]any{
		"status":  "ok",
		"env":     s.Config.Primary.Env,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"proxies": s.Proxies.Names(),
	}, "")
}

func (s *Server) recent(c echo.Context) error {
	if s.deps.Forwarder == nil {
		return response.List[any](c, "records", nil, "forwarder not running")
	}
	limit := 0
	if q := c.QueryParam("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return response.BadRequest(c, "invalid limit", "limit must be a non-negative integer")
		}
		limit = n
	}
	return response.List(c, "records", s.deps.Forwarder.Recent().Recent(limit), "")
}

func (s *Server) status(c echo.Context) error {
	out := map[string]any{
		"proxies": s.Proxies.Targets(),
	}
	if s.deps.Window != nil {
		out["window"] = s.deps.Window.Stats()
	}
	if s.deps.Channel != nil {
		out["channel"] = s.deps.Channel.Stats()
	}
	if s.deps.Relay != nil {
		out["relay"] = s.deps.Relay.Stats()
	}
	if s.deps.Forwarder != nil {
		out["forwarder"] = s.deps.Forwarder.Stats()
	}
	if s.deps.Outputs != nil {
		out["active_outputs"] = len(s.deps.Outputs.Active())
	}
	out["o3_enabled"] = s.deps.O3 != nil
	return response.OK(c, out, "")
}

func (s *Server) listUploads(c echo.Context) error {
	if s.deps.O3 == nil {
		return response.List[any](c, "objects", nil, "O3 not configured")
	}
	prefix := c.QueryParam("prefix")
	if prefix == "" {
		prefix = storage.BatchPrefix
	}
	list, err := s.deps.O3.ListObjects(c.Request().Context(), prefix)
	if err != nil {
		return response.InternalError(c, "list uploads failed", err.Error())
	}
	return response.List(c, "objects", list, "")
}

// uploadContent returns the records stored in a single batch object (gzip JSON by key).
func (s *Server) uploadContent(c echo.Context) error {
	if s.deps.O3 == nil {
		return response.Unavailable(c, "O3 not configured", "set O3 endpoint and bucket to read uploads")
	}
	key := c.QueryParam("key")
	if key == "" {
		return response.BadRequest(c, "missing key", "query param key is required")
	}
	if !storage.IsBatchKey(key) {
		return response.BadRequest(c, "invalid key", "key must name a capture batch under "+storage.BatchPrefix)
	}
	records, err := s.deps.O3.GetObjectRecords(c.Request().Context(), key)
	if err != nil {
		return response.InternalError(c, "get upload content failed", err.Error())
	}
	return response.OK(c, map[string]any{"records": records, "key": key}, "")
}

// Start starts the HTTP server. Blocks until the context is cancelled or the server fails.
// On context cancel, Shutdown is called so outputs flush what they buffered.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("shutdown")
		}
	}()

	srv := s.Echo.Server
	s.log.Info().Str("addr", srv.Addr).Msg("listening")
	err := s.Echo.StartServer(srv)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and stops the outputs.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	if s.deps.Outputs != nil {
		s.deps.Outputs.StopAll()
	}
	return err
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
