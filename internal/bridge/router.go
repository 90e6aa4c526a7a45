package bridge

import (
	"context"
	"log/slog"
	"sync"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/event"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
	"OneBotCAI/internal/transport"
)

// Router 将会话推送的原生事件转换、持久化后分发到所有传输
type Router struct {
	events     *event.Translator
	store      *store.Store
	transports []transport.Transport
	workerSem  chan struct{}
}

// NewRouter 创建事件路由
// 参数:
//   - events: 事件转换器
//   - st: 存储
//   - workers: 同时推送的最大协程数
func NewRouter(events *event.Translator, st *store.Store, workers int) *Router {
	if workers <= 0 {
		workers = 64
	}
	return &Router{events: events, store: st, workerSem: make(chan struct{}, workers)}
}

// SetTransports 设置推送目标，须在会话开始推送事件前调用
func (r *Router) SetTransports(ts []transport.Transport) {
	r.transports = ts
}

// Receive 处理一个原生事件
// 流程:
//  1. 转换为 OneBot 事件，自身消息等无对应事件的直接忽略
//  2. 消息事件保存为消息记录，所有事件保存为事件记录
//  3. 并发推送到每个传输
func (r *Router) Receive(ctx context.Context, sess chat.Session, native chat.Event) {
	ev, ok := r.events.Translate(ctx, sess, native)
	if !ok {
		return
	}
	h := ev.Header()
	slog.Debug("收到事件", "kind", h.Kind(), "sub_type", h.SubType, "id", h.ID)

	if rec := messageRecord(native, ev); rec != nil {
		if _, err := r.store.SaveMessage(rec); err != nil {
			slog.Warn("保存消息失败", "seq", rec.Seq, "error", err)
		}
	}
	if _, err := r.store.SaveEvent(ev); err != nil {
		slog.Warn("保存事件失败", "kind", h.Kind(), "error", err)
	}

	r.Broadcast(ctx, ev)
}

// Broadcast 并发推送事件到所有传输，单个传输失败只记录日志
func (r *Router) Broadcast(ctx context.Context, ev onebot.Event) {
	var wg sync.WaitGroup
	for _, t := range r.transports {
		wg.Add(1)
		r.workerSem <- struct{}{}
		go func(t transport.Transport) {
			defer func() {
				<-r.workerSem
				wg.Done()
			}()
			if err := t.Push(ctx, ev); err != nil {
				slog.Warn("推送事件失败", "transport", t.Name(), "kind", ev.Header().Kind(), "error", err)
			}
		}(t)
	}
	wg.Wait()
}

// messageRecord 由收到的消息构造消息记录，非消息事件返回 nil
func messageRecord(native chat.Event, ev onebot.Event) *store.Message {
	switch e := native.(type) {
	case chat.PrivateMessage:
		pm := ev.(*onebot.PrivateMessageEvent)
		return &store.Message{
			Message:  pm.Message,
			Seq:      e.Seq,
			Rand:     e.Rand,
			Time:     e.Time,
			UserID:   e.FromUin,
			SenderID: e.FromUin,
		}
	case chat.GroupMessage:
		gm := ev.(*onebot.GroupMessageEvent)
		return &store.Message{
			Message:  gm.Message,
			Seq:      e.Seq,
			Rand:     e.Rand,
			Time:     e.Time,
			GroupID:  e.GroupID,
			SenderID: e.FromUin,
		}
	}
	return nil
}
