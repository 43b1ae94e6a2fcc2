package server

import (
	"context"
	stdtls "crypto/tls"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/tls"
	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// HTTPServer is the interception boundary: it fronts the application
// origin and feeds every incoming request through the caching layer.
// Health, metrics and stats endpoints are served locally and never
// intercepted.
type HTTPServer struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	cfg      *types.ServiceConfig
	handler  types.RequestHandler
	health   types.HealthManager
	metrics  types.MetricsManager
	server   *fasthttp.Server
	listener net.Listener
	baseURL  string
	state    atomic.Value
}

func NewHTTPServer(ctx context.Context, logger types.Logger, cfg *types.ServiceConfig, handler types.RequestHandler, healthManager types.HealthManager, metricsManager types.MetricsManager) *HTTPServer {
	serverCtx, cancel := context.WithCancel(ctx)

	s := &HTTPServer{
		ctx:     serverCtx,
		cancel:  cancel,
		logger:  logger,
		cfg:     cfg,
		handler: handler,
		health:  healthManager,
		metrics: metricsManager,
		baseURL: strings.TrimSuffix(cfg.Upstream.BaseURL, "/"),
	}

	s.server = &fasthttp.Server{
		Handler:      s.handleRequest,
		Name:         cfg.Name,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	s.state.Store(StateStopped)
	return s
}

func (s *HTTPServer) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.state.Store(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "listen %s: %v", addr, err)
	}

	tlsConfig, err := tls.BuildConfig(s.cfg.Server.TLS)
	if err != nil {
		listener.Close()
		s.state.Store(StateStopped)
		return err
	}

	if tlsConfig != nil {
		listener = stdtls.NewListener(listener, tlsConfig)
	}

	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil {
			if s.state.Load().(State) == StateRunning {
				s.logger.Error("Gateway server failed", zap.Error(err))
			}
		}
	}()

	s.state.Store(StateRunning)
	s.logger.Info("Gateway server started",
		zap.String("addr", addr),
		zap.Bool("tls", tlsConfig != nil),
		zap.String("upstream", s.baseURL))
	return nil
}

func (s *HTTPServer) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.server.ShutdownWithContext(shutdownCtx); err != nil {
		return types.WrapError(err, "gateway shutdown failed")
	}

	s.logger.Info("Gateway server stopped gracefully")
	return nil
}

func (s *HTTPServer) IsRunning() bool {
	return s.state.Load().(State) == StateRunning
}

func (s *HTTPServer) handleRequest(ctx *fasthttp.RequestCtx) {
	requestID := uuid.New().String()
	ctx.Response.Header.Set("X-Request-ID", requestID)

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("Panic while handling request",
				zap.String("request_id", requestID),
				zap.Any("panic", recovered),
				zap.String("stack", string(debug.Stack())))

			ctx.Response.Reset()
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"internal","message":"unexpected failure"}`)
		}
	}()

	path := string(ctx.Path())

	if s.cfg.Health != nil && s.cfg.Health.Enabled && path == s.cfg.Health.Path {
		s.serveHealth(ctx)
		return
	}

	if s.metrics != nil && s.cfg.Metrics.Enabled && path == s.cfg.Metrics.Path {
		s.serveMetrics(ctx)
		return
	}

	request := &types.Request{
		Method: string(ctx.Method()),
		URL:    s.requestURL(ctx),
	}

	start := time.Now()
	response := s.handler.Handle(s.ctx, request)
	s.writeResponse(ctx, response)

	s.logger.Debug("Request handled",
		zap.String("request_id", requestID),
		zap.String("method", request.Method),
		zap.String("path", path),
		zap.String("source", response.Source),
		zap.Int("status", response.Status),
		zap.Duration("duration", time.Since(start)))
}

func (s *HTTPServer) requestURL(ctx *fasthttp.RequestCtx) string {
	target := s.baseURL + string(ctx.Path())
	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		target += "?" + string(query)
	}
	return target
}

func (s *HTTPServer) writeResponse(ctx *fasthttp.RequestCtx, response *types.Response) {
	ctx.SetStatusCode(response.Status)

	for key, value := range response.Headers {
		switch strings.ToLower(key) {
		case "connection", "transfer-encoding", "content-length":
			// Hop-by-hop headers are the transport's business.
			continue
		}
		ctx.Response.Header.Set(key, value)
	}

	ctx.Response.Header.Set("X-Cache-Source", response.Source)
	ctx.SetBody(response.Body)
}

func (s *HTTPServer) serveHealth(ctx *fasthttp.RequestCtx) {
	report := s.health.Check(s.ctx)

	body, err := utils.Marshal(report)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	status := fasthttp.StatusOK
	if report.Status != types.StatusHealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *HTTPServer) serveMetrics(ctx *fasthttp.RequestCtx) {
	body, err := s.metrics.Export()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
