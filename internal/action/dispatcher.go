// Package action 将 OneBot 动作请求分发到对应的处理函数
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/media"
	"OneBotCAI/internal/message"
	"OneBotCAI/internal/metrics"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
)

// EventSource 提供最近事件，用于 get_latest_events
type EventSource interface {
	Latest(ctx context.Context, limit int, timeout time.Duration) []onebot.Event
}

// Env 处理函数可访问的桥接上下文
type Env struct {
	Sessions *chat.Holder        // 当前会话
	Store    *store.Store        // 持久化存储
	Messages *message.Translator // 消息转换
	Fetcher  *media.Fetcher      // 读取文件内容，用于 get_file 的 data 形式
	Limiter  *rate.Limiter       // 发送限速，为 nil 时不限速
	Events   EventSource         // 最近事件，为 nil 时不提供 get_latest_events
}

// Call 单次调用的上下文
type Call struct {
	*Env
	Session chat.Session // 仅在处理函数声明需要会话时非空
}

// descriptor 动作描述
type descriptor struct {
	name            string // 对外名称
	requiresSession bool   // 是否需要已登录的会话
	bind            func(params map[string]any) (any, error)
	call            func(ctx context.Context, c *Call, p any) (any, error)
}

// Dispatcher 动作分发器，注册表在创建时一次性建立
type Dispatcher struct {
	env   *Env
	table map[string]*descriptor // 内部名称到描述的映射
	names []string               // 已排序的对外名称
}

// register 注册动作
// 参数:
//   - d: 分发器
//   - name: 对外名称，扩展动作使用 "qq." 前缀
//   - requiresSession: 是否需要会话
//   - h: 处理函数，P 为参数结构体
func register[P any](d *Dispatcher, name string, requiresSession bool, h func(ctx context.Context, c *Call, p *P) (any, error)) {
	d.table[internalName(name)] = &descriptor{
		name:            name,
		requiresSession: requiresSession,
		bind: func(params map[string]any) (any, error) {
			p := new(P)
			if err := onebot.Bind(params, p); err != nil {
				return nil, err
			}
			return p, nil
		},
		call: func(ctx context.Context, c *Call, p any) (any, error) {
			return h(ctx, c, p.(*P))
		},
	}
	d.names = append(d.names, name)
	slices.Sort(d.names)
}

// internalName 将命名空间分隔符 "." 替换为 "_"
func internalName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// NewDispatcher 创建分发器并注册全部动作
func NewDispatcher(env *Env) *Dispatcher {
	d := &Dispatcher{env: env, table: make(map[string]*descriptor)}
	registerAll(d)
	return d
}

// Supported 返回所有可调用的动作名称
func (d *Dispatcher) Supported() []string {
	return slices.Clone(d.names)
}

// Dispatch 执行动作请求
// 任何结果（包括处理函数 panic）都会被规范为一个 ActionResult
// 参数:
//   - ctx: 上下文
//   - req: 动作请求
//
// 返回:
//   - onebot.ActionResult: 响应
func (d *Dispatcher) Dispatch(ctx context.Context, req onebot.ActionRequest) (res onebot.ActionResult) {
	start := time.Now()
	label := "unknown"
	defer func() {
		metrics.ObserveAction(label, res.Retcode, time.Since(start))
	}()

	name := internalName(req.Action)
	if strings.HasPrefix(name, "_") {
		return onebot.Failed(onebot.RetUnsupportedAction, nil, "", req.Echo)
	}
	desc, ok := d.table[name]
	if !ok {
		slog.Debug("不支持的动作", "action", req.Action)
		return onebot.Failed(onebot.RetUnsupportedAction, nil, "", req.Echo)
	}
	label = desc.name

	c := &Call{Env: d.env}
	if desc.requiresSession {
		if c.Session = d.env.Sessions.Get(); c.Session == nil {
			return onebot.Failed(onebot.RetNotLoggedIn, nil, "", req.Echo)
		}
	}

	p, err := desc.bind(req.Params)
	if err != nil {
		return onebot.Failed(onebot.RetBadParam, map[string]any{"reason": err.Error()}, "", req.Echo)
	}

	data, err := d.invoke(ctx, desc, c, p)
	if err == nil {
		return onebot.OK(data, req.Echo)
	}

	var ae *onebot.ActionError
	if errors.As(err, &ae) {
		slog.Debug("动作失败", "action", desc.name, "retcode", ae.Retcode, "error", ae.Err)
		return onebot.Failed(ae.Retcode, ae.Data, "", req.Echo)
	}
	slog.Error("动作处理异常", "action", desc.name, "params", req.Params, "error", err)
	return onebot.Failed(onebot.RetInternalHandlerError, map[string]any{"info": err.Error()}, "", req.Echo)
}

// invoke 调用处理函数，panic 被转换为错误
func (d *Dispatcher) invoke(ctx context.Context, desc *descriptor, c *Call, p any) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("动作处理 panic", "action", desc.name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return desc.call(ctx, c, p)
}
