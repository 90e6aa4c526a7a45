package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"OneBotCAI/internal/metrics"
	"OneBotCAI/internal/onebot"
)

// WSConfig 正向 WebSocket 配置
type WSConfig struct {
	Addr        string // 监听地址
	AccessToken string // 鉴权令牌
}

// WS 正向 WebSocket 服务端，应用端主动连接
type WS struct {
	cfg      WSConfig
	disp     Dispatcher
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

// NewWS 创建正向 WebSocket 传输
func NewWS(cfg WSConfig, disp Dispatcher) *WS {
	return &WS{
		cfg:      cfg,
		disp:     disp,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*wsConn]struct{}),
	}
}

func (s *WS) Name() string { return "ws" }

// Handler 返回路由，鉴权在升级之前进行
func (s *WS) Handler() http.Handler {
	r := chi.NewRouter()
	r.With(requireToken(s.cfg.AccessToken)).Get("/", s.serveWS)
	return r
}

func (s *WS) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听 %s: %w", s.cfg.Addr, err)
	}
	s.server = &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("正向 WebSocket 服务异常退出", "addr", s.cfg.Addr, "error", err)
		}
	}()
	slog.Info("正向 WebSocket 服务已启动", "addr", ln.Addr().String())
	return nil
}

// Stop 关闭监听并断开所有连接
func (s *WS) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*wsConn]struct{})
	s.mu.Unlock()
	for c := range conns {
		c.closeWith(websocket.CloseGoingAway, "")
	}
	return err
}

// Push 并发广播事件到所有连接，单个连接失败不影响其余连接
func (s *WS) Push(_ context.Context, ev onebot.Event) error {
	data, err := onebot.Marshal(onebot.JSON, ev)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var g errgroup.Group
	for _, c := range conns {
		g.Go(func() error {
			if err := c.write(websocket.TextMessage, data); err != nil {
				metrics.PushFailed(s.Name())
				slog.Debug("正向 WebSocket 推送失败", "remote", c.RemoteAddr().String(), "error", err)
				return err
			}
			metrics.EventPushed(s.Name())
			return nil
		})
	}
	return g.Wait()
}

// Connections 当前连接数
func (s *WS) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *WS) serveWS(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("正向 WebSocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := &wsConn{Conn: raw}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	slog.Info("正向 WebSocket 客户端已连接", "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		slog.Info("正向 WebSocket 客户端已断开", "remote", r.RemoteAddr)
	}()

	if err := serveConn(r.Context(), s.disp, conn); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Debug("正向 WebSocket 连接结束", "remote", r.RemoteAddr, "error", err)
	}
}
