package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/musher-dev/idehost/internal/observability"
	"github.com/musher-dev/idehost/internal/session"
)

const (
	// TerminalPath is the WebSocket endpoint.
	TerminalPath = "/terminal"

	defaultSendBuffer   = 256
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Config configures a Server.
type Config struct {
	Addr string

	// Session is the template for each connection's bridge.
	Session session.Config

	// OriginPatterns are passed to websocket.Accept. Empty means same-origin only.
	OriginPatterns []string

	SendBuffer   int
	PingInterval time.Duration
	// WriteTimeout bounds each frame write and ping. A client that cannot
	// keep up within it is disconnected.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Server serves terminal sessions over WebSocket.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// NewServer returns a Server.
func NewServer(cfg Config) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}

	return &Server{
		cfg:    cfg,
		logger: observability.Component(cfg.Logger, "rpc"),
	}
}

// Handler returns the HTTP handler serving TerminalPath and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(TerminalPath, otelhttp.NewHandler(http.HandlerFunc(s.handleTerminal), "terminal"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// ListenAndServe listens on cfg.Addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info(
		"terminal endpoint listening",
		slog.String("event.type", "rpc.listen"),
		slog.String("rpc.addr", ln.Addr().String()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve terminal endpoint: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		conn:         conn,
		send:         make(chan []byte, s.cfg.SendBuffer),
		done:         make(chan struct{}),
		ctxDone:      ctx.Done(),
		cancel:       cancel,
		writeTimeout: s.cfg.WriteTimeout,
		logger:       s.logger.With(slog.String("rpc.remote", r.RemoteAddr)),
	}

	bridge := session.NewBridge(s.cfg.Session)
	bridge.Bind(c)

	c.logger.Info("terminal client connected", slog.String("event.type", "rpc.connect"))

	go c.writePump(ctx)
	go c.pingLoop(ctx, s.cfg.PingInterval)

	c.readPump(ctx, bridge)

	bridge.Unbind()
	bridge.Dispose()
	close(c.done)
	_ = conn.Close(websocket.StatusNormalClosure, "")

	c.logger.Info(
		"terminal client disconnected",
		slog.String("event.type", "rpc.disconnect"),
		slog.Int64("session.dropped", bridge.Dropped()),
	)
}

// client is the bound consumer for one connection.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	// ctxDone closes when the connection is torn down, including when the
	// writer gives up and nothing drains send any more.
	ctxDone      <-chan struct{}
	cancel       context.CancelFunc
	writeTimeout time.Duration
	logger       *slog.Logger
}

// OnMessage pushes pty output. It blocks while the send queue is full so a
// slow client back-pressures the pty reader.
func (c *client) OnMessage(data []byte) {
	frame, err := json.Marshal(Push{Method: MethodOnMessage, Params: DataParams{Data: data}})
	if err != nil {
		c.logger.Error("encode push failed", slog.String("error", err.Error()))
		return
	}

	c.enqueue(frame)
}

func (c *client) respond(resp Response) {
	frame, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("encode response failed", slog.String("error", err.Error()))
		return
	}

	c.enqueue(frame)
}

func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.ctxDone:
	case <-c.done:
	}
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()

			if err != nil {
				c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				c.cancel()

				return
			}
		}
	}
}

func (c *client) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()

			if err != nil {
				c.logger.Warn("websocket ping failed", slog.String("error", err.Error()))
				c.cancel()

				return
			}
		}
	}
}

// readPump handles requests in arrival order until the connection or the
// session ends.
func (c *client) readPump(ctx context.Context, bridge *session.Bridge) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}

			return
		}

		c.respond(c.handle(ctx, bridge, data))
	}
}

func (c *client) handle(ctx context.Context, bridge *session.Bridge, data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse("", CodeBadRequest, err.Error())
	}

	switch req.Method {
	case MethodInit:
		var params InitParams
		if err := decodeParams(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, err.Error())
		}

		if err := bridge.Init(params.Rows, params.Cols, params.Cwd); err != nil {
			return errorResponse(req.ID, sessionErrorCode(err, CodeInitFailed), err.Error())
		}

		go c.closeWhenDone(ctx, bridge.Done())

		return okResponse(req.ID)
	case MethodOnMessage:
		var params DataParams
		if err := decodeParams(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, err.Error())
		}

		bridge.OnMessage(params.Data)

		return okResponse(req.ID)
	case MethodResize:
		var params ResizeParams
		if err := decodeParams(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, err.Error())
		}

		if err := bridge.Resize(params.Rows, params.Cols); err != nil {
			return errorResponse(req.ID, sessionErrorCode(err, CodeResizeFailed), err.Error())
		}

		return okResponse(req.ID)
	default:
		return errorResponse(req.ID, CodeUnknownMethod, fmt.Sprintf("unknown method %q", req.Method))
	}
}

// closeWhenDone closes the connection once the pty child exits.
func (c *client) closeWhenDone(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		// Let queued output drain before the close frame.
		c.flush(ctx)
		_ = c.conn.Close(websocket.StatusNormalClosure, "session ended")
	}
}

func (c *client) flush(ctx context.Context) {
	deadline := time.NewTimer(c.writeTimeout)
	defer deadline.Stop()

	for len(c.send) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}

	return json.Unmarshal(raw, v)
}
