// Package bridge 组装会话、存储、转换器与传输，管理应用生命周期
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"OneBotCAI/internal/action"
	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/config"
	"OneBotCAI/internal/event"
	"OneBotCAI/internal/media"
	"OneBotCAI/internal/message"
	"OneBotCAI/internal/metrics"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/retention"
	"OneBotCAI/internal/store"
	"OneBotCAI/internal/transport"
)

// memberTTL 群成员列表缓存时间
const memberTTL = 5 * time.Minute

// Core 应用核心，持有所有组件
type Core struct {
	Cfg        *config.Config
	Sessions   *chat.Holder
	Store      *store.Store
	Members    *message.Members
	Messages   *message.Translator
	Dispatcher *action.Dispatcher
	Router     *Router
	Buffer     *transport.Buffer // 未启用 event_enabled 时为 nil

	newTransports func(selfID int64) ([]transport.Transport, error)
	cancel        context.CancelFunc // 传输全部停止后才取消后台任务
	transports    []transport.Transport
	heartbeat     *transport.Heartbeat
	retention  *retention.Job
	metrics    *http.Server
}

// NewCore 创建核心实例，打开存储并建立动作注册表
// 参数:
//   - cfg: 已校验的配置
//
// 返回:
//   - *Core: 核心实例
//   - error: 存储打开失败
func NewCore(cfg *config.Config) (*Core, error) {
	dir := filepath.Join(cfg.DataDir, "store")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录: %w", err)
	}
	slog.Info("初始化存储", "driver", cfg.Storage.Driver, "path", dir)
	st, err := store.Open(cfg.Storage.Driver, dir)
	if err != nil {
		return nil, fmt.Errorf("初始化存储: %w", err)
	}

	members := message.NewMembers(memberTTL)
	fetcher := media.NewFetcher(time.Minute, cfg.Media.MaxSize)
	transcoder := &media.FFmpeg{Path: cfg.Media.FFmpeg, SilkEncoder: cfg.Media.SilkEncoder}
	messages := message.NewTranslator(st, fetcher, transcoder, members)

	c := &Core{
		Cfg:      cfg,
		Sessions: &chat.Holder{},
		Store:    st,
		Members:  members,
		Messages: messages,
		Router:   NewRouter(event.NewTranslator(messages), st, 0),
	}

	env := &action.Env{
		Sessions: c.Sessions,
		Store:    st,
		Messages: messages,
		Fetcher:  fetcher,
	}
	if cfg.SendRate > 0 {
		env.Limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), int(math.Max(1, math.Ceil(cfg.SendRate))))
	}
	if cfg.HTTP.Enabled && cfg.HTTP.EventEnabled {
		c.Buffer = transport.NewBuffer(cfg.HTTP.EventBufferSize)
		env.Events = c.Buffer
	}
	c.Dispatcher = action.NewDispatcher(env)
	c.newTransports = c.buildTransports
	return c, nil
}

// Login 通过配置的驱动登录并保存会话，失败视为致命错误
func (c *Core) Login(ctx context.Context) (chat.Session, error) {
	acc := c.Cfg.Account
	conn, ok := chat.Lookup(acc.Driver)
	if !ok {
		return nil, fmt.Errorf("未知的协议驱动: %s", acc.Driver)
	}
	slog.Info("登录账号", "driver", acc.Driver, "uin", acc.UIN, "protocol", acc.Protocol)
	sess, err := conn.Connect(ctx, chat.Account{
		Uin:      acc.UIN,
		Password: acc.Password,
		Status:   acc.Status,
		Protocol: chat.ParseProtocol(acc.Protocol),
	})
	if err != nil {
		return nil, fmt.Errorf("登录 %d: %w", acc.UIN, err)
	}
	c.Sessions.Set(sess)
	slog.Info("登录成功", "uin", sess.UIN(), "nickname", sess.Nickname())
	return sess, nil
}

// buildTransports 按配置创建已启用的传输
func (c *Core) buildTransports(selfID int64) ([]transport.Transport, error) {
	cfg := c.Cfg
	var ts []transport.Transport
	if cfg.HTTP.Enabled {
		hc := transport.HTTPConfig{
			Addr:        config.Addr(cfg.HTTP.Host, cfg.HTTP.Port),
			AccessToken: cfg.AccessToken,
			Buffer:      c.Buffer,
		}
		if cfg.HTTP.Webhook.URL != "" {
			hc.Webhook = transport.NewWebhook(cfg.HTTP.Webhook.URL, cfg.AccessToken, selfID, config.Millis(cfg.HTTP.Webhook.Timeout))
		}
		ts = append(ts, transport.NewHTTP(hc, c.Dispatcher))
	}
	if cfg.WS.Enabled {
		ts = append(ts, transport.NewWS(transport.WSConfig{
			Addr:        config.Addr(cfg.WS.Host, cfg.WS.Port),
			AccessToken: cfg.AccessToken,
		}, c.Dispatcher))
	}
	if cfg.WSReverse.Enabled {
		enc, err := onebot.ParseEncoding(cfg.WSReverse.Encoding)
		if err != nil {
			return nil, err
		}
		ts = append(ts, transport.NewReverse(transport.ReverseConfig{
			URL:         cfg.WSReverse.URL,
			AccessToken: cfg.AccessToken,
			Interval:    config.Millis(cfg.WSReverse.ReconnectInterval),
			Encoding:    enc,
			SelfID:      selfID,
		}, c.Dispatcher))
	}
	return ts, nil
}

// Start 登录、启动所有传输及后台任务
// 传输并发启动，至少一个成功即可
// 传入的 ctx 取消时后台任务随之结束，正常关闭应调用 Stop
func (c *Core) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	sess, err := c.Login(ctx)
	if err != nil {
		return err
	}

	ts, err := c.newTransports(sess.UIN())
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		return errors.New("未启用任何连接方式")
	}

	slog.Info("开始启动传输", "count", len(ts))
	type result struct {
		t   transport.Transport
		err error
	}
	results := make(chan result, len(ts))
	var wg sync.WaitGroup
	for _, t := range ts {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			results <- result{t: t, err: t.Start(ctx)}
		}(t)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			slog.Warn("传输启动失败", "transport", res.t.Name(), "error", res.err)
			continue
		}
		c.transports = append(c.transports, res.t)
		slog.Info("传输启动成功", "transport", res.t.Name())
	}
	if len(c.transports) == 0 {
		return errors.New("无可用的连接方式")
	}
	slog.Info("传输启动完成", "success", len(c.transports), "total", len(ts))

	c.Router.SetTransports(c.transports)
	sess.AddEventListener(func(ev chat.Event) {
		c.Router.Receive(ctx, sess, ev)
	})

	if hb := c.Cfg.Heartbeat; hb.Enabled {
		c.heartbeat = transport.NewHeartbeat(sess.UIN(), config.Millis(hb.Interval), c.status, c.Router.Broadcast)
		c.heartbeat.Start(ctx)
	}
	if r := c.Cfg.Storage.Retention; r.Enabled {
		if c.retention, err = retention.New(r.Cron, r.Days, c.Store); err != nil {
			return err
		}
		c.retention.Start(ctx)
	}
	if addr := c.Cfg.Metrics.Listen; addr != "" {
		c.startMetrics(addr)
	}
	return nil
}

// status 心跳与 get_status 使用的运行状态
func (c *Core) status() onebot.HeartbeatStatus {
	sess := c.Sessions.Get()
	online := sess != nil && sess.Online()
	return onebot.HeartbeatStatus{Good: online, Online: online}
}

func (c *Core) startMetrics(addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	c.metrics = &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := c.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("指标服务异常退出", "addr", addr, "error", err)
		}
	}()
	slog.Info("指标服务已启动", "addr", addr)
}

// Stop 依次停止传输、后台任务、会话与存储，每一步失败都不影响后续步骤
// 传输停止之后才取消 Start 时的上下文
func (c *Core) Stop(ctx context.Context) error {
	slog.Info("停止所有传输")
	var wg sync.WaitGroup
	for _, t := range c.transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			if err := t.Stop(ctx); err != nil {
				slog.Warn("传输停止失败", "transport", t.Name(), "error", err)
			} else {
				slog.Info("传输已停止", "transport", t.Name())
			}
		}(t)
	}
	wg.Wait()
	if c.cancel != nil {
		c.cancel()
	}

	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	if c.retention != nil {
		c.retention.Stop()
	}
	if c.metrics != nil {
		_ = c.metrics.Shutdown(ctx)
	}
	c.Members.Stop()

	if sess := c.Sessions.Take(); sess != nil {
		if err := sess.Close(); err != nil {
			slog.Warn("关闭会话失败", "error", err)
		} else {
			slog.Info("会话已关闭")
		}
	}

	slog.Debug("关闭存储")
	if err := c.Store.Close(); err != nil {
		slog.Error("关闭存储失败", "error", err)
		return err
	}
	slog.Info("存储已关闭")
	return nil
}
