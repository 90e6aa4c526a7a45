package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"OneBotCAI/internal/metrics"
	"OneBotCAI/internal/onebot"
)

// State 反向 WebSocket 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "disconnected"
}

// errPolicyViolation 服务端以 1008 关闭连接，不再重连
var errPolicyViolation = errors.New("服务端拒绝连接")

// dialFunc 建立 WebSocket 连接
type dialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

func defaultDial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// ReverseConfig 反向 WebSocket 配置
type ReverseConfig struct {
	URL         string          // 应用端地址
	AccessToken string          // 鉴权令牌
	Interval    time.Duration   // 重连间隔，不大于 0 时为 3 秒
	Encoding    onebot.Encoding // 事件帧编码
	SelfID      int64           // 机器人账号
}

// Reverse 反向 WebSocket 客户端，主动连接应用端并在断开后按固定间隔重连
// 断线期间的事件保存在队列中，重连后按顺序发送
type Reverse struct {
	cfg   ReverseConfig
	disp  Dispatcher
	dial  dialFunc
	queue *queue[onebot.Event]
	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReverse 创建反向 WebSocket 传输
func NewReverse(cfg ReverseConfig, disp Dispatcher) *Reverse {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	return &Reverse{cfg: cfg, disp: disp, dial: defaultDial, queue: newQueue[onebot.Event]()}
}

func (r *Reverse) Name() string { return "ws_reverse" }

// State 当前连接状态
func (r *Reverse) State() State { return State(r.state.Load()) }

func (r *Reverse) setState(s State) {
	r.state.Store(int32(s))
}

// Start 在后台开始连接循环
func (r *Reverse) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("反向 WebSocket 已启动")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
	return nil
}

// Stop 取消重连等待并关闭当前连接
func (r *Reverse) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		r.setState(StateClosed)
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push 将事件加入发送队列，未连接时丢弃元事件
func (r *Reverse) Push(_ context.Context, ev onebot.Event) error {
	switch st := r.State(); {
	case st == StateClosed:
		return ErrClosed
	case st != StateConnected && ev.Header().Type == onebot.TypeMeta:
		return nil
	}
	metrics.ReverseQueue(r.queue.Push(ev))
	return nil
}

// Pending 尚未发送的事件数
func (r *Reverse) Pending() int { return r.queue.Len() }

func (r *Reverse) run(ctx context.Context) {
	defer close(r.done)
	defer r.setState(StateClosed)

	op := func() error {
		err := r.session(ctx)
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, errPolicyViolation):
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		slog.Warn("反向 WebSocket 连接断开，稍后重连", "url", r.cfg.URL, "error", err, "retry_in", d)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(r.cfg.Interval), ctx)
	err := backoff.RetryNotify(op, b, notify)
	switch {
	case errors.Is(err, errPolicyViolation):
		slog.Error("反向 WebSocket 被服务端拒绝，停止重连", "url", r.cfg.URL, "error", err)
	case ctx.Err() != nil:
		slog.Info("反向 WebSocket 已停止", "url", r.cfg.URL)
	}
}

// session 建立一次连接并运行收发协程，直到连接断开或 ctx 结束
func (r *Reverse) session(ctx context.Context) error {
	r.setState(StateConnecting)
	defer r.setState(StateDisconnected)

	slog.Info("尝试连接反向 WebSocket", "url", r.cfg.URL)
	raw, err := r.dial(ctx, r.cfg.URL, onebot.MakeHeader(r.cfg.SelfID, r.cfg.AccessToken, false))
	metrics.ReverseConnect(err == nil)
	if err != nil {
		return fmt.Errorf("连接 %s: %w", r.cfg.URL, err)
	}
	conn := &wsConn{Conn: raw}
	r.setState(StateConnected)
	slog.Info("反向 WebSocket 已连接", "url", r.cfg.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.guard("receive", func() error { return r.receive(gctx, conn) }))
	g.Go(r.guard("send", func() error { return r.send(gctx, conn) }))
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			r.setState(StateDraining)
			conn.closeWith(websocket.CloseNormalClosure, "")
			return nil
		}
		_ = conn.Close()
		return nil
	})
	return g.Wait()
}

// guard 将协程中的 panic 转为错误，触发重连
func (r *Reverse) guard(duty string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("反向 WebSocket 协程 panic", "duty", duty, "panic", p, "stack", string(debug.Stack()))
				err = fmt.Errorf("%s panic: %v", duty, p)
			}
		}()
		return fn()
	}
}

func (r *Reverse) receive(ctx context.Context, conn *wsConn) error {
	err := serveConn(ctx, r.disp, conn)
	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		return fmt.Errorf("%w: %v", errPolicyViolation, err)
	}
	return err
}

func (r *Reverse) send(ctx context.Context, conn *wsConn) error {
	mt := frameType(r.cfg.Encoding)
	for {
		ev, err := r.queue.Pop(ctx)
		if err != nil {
			return err
		}
		data, err := onebot.Marshal(r.cfg.Encoding, ev)
		if err != nil {
			slog.Error("编码事件失败，已丢弃", "event", ev.Header().Kind(), "error", err)
			continue
		}
		if err := conn.write(mt, data); err != nil {
			metrics.ReverseQueue(r.queue.PushFront(ev))
			metrics.PushFailed(r.Name())
			return err
		}
		metrics.EventPushed(r.Name())
		metrics.ReverseQueue(r.queue.Len())
	}
}
