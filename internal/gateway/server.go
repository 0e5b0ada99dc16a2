package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lhdbsbz/chatrelay/internal/config"
	"github.com/lhdbsbz/chatrelay/internal/cron"
	"github.com/lhdbsbz/chatrelay/internal/llm"
	"github.com/lhdbsbz/chatrelay/internal/message"
	"github.com/prometheus/client_golang/prometheus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	shutdownTimeout = 10 * time.Second
	statsJobName    = "relay-stats"
)

// Server is the chat relay: static frontend, WebSocket endpoint and the relay handler.
type Server struct {
	Config  *config.Config
	Conns   *ConnManager
	Relay   *Relay
	Metrics *Metrics
	Cron    *cron.Scheduler

	engine   *gin.Engine
	httpSrv  *http.Server
	startAt  time.Time
	baseCtx  context.Context
	cancel   context.CancelFunc
	handlers sync.WaitGroup
	inflight atomic.Int64
}

// NewServer wires the relay around answers. Metrics are registered on reg;
// pass nil to use a fresh registry.
func NewServer(cfg *config.Config, answers llm.Client, reg *prometheus.Registry) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := NewMetrics(reg)
	conns := NewConnManager(metrics)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		Config:  cfg,
		Conns:   conns,
		Relay:   &Relay{Peers: conns, Answers: answers, Metrics: metrics},
		Metrics: metrics,
		Cron:    cron.NewScheduler(),
		startAt: time.Now(),
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.engine = s.buildEngine()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/ws", s.ginWebSocket)
	engine.GET("/health", s.ginHealth)
	engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	s.registerAPIRoutes(engine)
	engine.NoRoute(s.ginStatic())
	return engine
}

// Start begins listening for connections and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Config.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if spec := s.Config.Gateway.StatsSchedule; spec != "" {
		if _, err := s.Cron.Add(statsJobName, spec, s.logStats); err != nil {
			slog.Warn("stats job disabled", "schedule", spec, "error", err)
		}
	}
	s.Cron.Start()

	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("chatrelay listening", "addr", ln.Addr().String(), "static", s.Config.Gateway.StaticDir)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.shutdown()
	}()

	err := s.httpSrv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		s.cancel()
		s.Cron.Stop()
		return err
	}
	<-done
	return nil
}

func (s *Server) shutdown() {
	slog.Info("chatrelay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	// hijacked WebSocket connections are not tracked by http.Server
	closed := s.Conns.CloseAll()
	s.cancel()
	s.Cron.Stop()

	waited := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		slog.Warn("message handlers still running at shutdown", "inflight", s.inflight.Load())
	}
	slog.Info("chatrelay stopped", "closedConnections", closed)
}

func (s *Server) logStats(context.Context) error {
	slog.Info("relay stats",
		"clients", s.Conns.Count(),
		"inflight", s.inflight.Load(),
		"uptime", time.Since(s.startAt).Round(time.Second).String(),
	)
	return nil
}

func (s *Server) ginWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}

	conn := NewConn(uuid.NewString(), ws, c.Request.RemoteAddr)
	s.Conns.Add(conn)
	slog.Info("client connected", "conn", conn.ID, "remote", conn.RemoteAddr, "clients", s.Conns.Count())

	defer func() {
		s.Conns.Remove(conn.ID)
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection", "conn", conn.ID, "error", err)
		}
		slog.Info("client disconnected", "conn", conn.ID, "clients", s.Conns.Count())
	}()

	limit := s.maxMessageBytes()
	ws.SetReadLimit(limit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go keepAlive(conn, stopPing)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			logReadError(conn, err, limit)
			return
		}

		in := s.Relay.Accept(conn, raw)

		s.handlers.Add(1)
		s.inflight.Add(1)
		go func(in message.Inbound) {
			defer s.handlers.Done()
			defer s.inflight.Add(-1)
			s.Relay.Respond(s.baseCtx, conn, in)
		}(in)
	}
}

func (s *Server) maxMessageBytes() int64 {
	if n := s.Config.Gateway.MaxMessageBytes; n > 0 {
		return n
	}
	return config.DefaultMaxMessageBytes
}

func keepAlive(conn *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				slog.Debug("ping failed", "conn", conn.ID, "error", err)
				return
			}
		}
	}
}

func logReadError(conn *Conn, err error, limit int64) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("message exceeded size limit", "conn", conn.ID, "limit", limit)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		slog.Debug("client closed connection", "conn", conn.ID, "error", err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), isExpectedCloseError(err):
		slog.Debug("connection closed", "conn", conn.ID, "error", err)
	default:
		slog.Warn("websocket read error", "conn", conn.ID, "error", err)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
