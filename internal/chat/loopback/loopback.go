// Package loopback 提供一个纯内存的聊天会话，用于本地调试和测试
package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"OneBotCAI/internal/chat"
)

func init() {
	chat.Register("loopback", &Connector{Nickname: "loopback"})
}

// Connector 内存驱动，登录总是成功
type Connector struct {
	Nickname string
	Groups   []chat.Group
	Friends  []chat.Friend
	Members  map[int64][]chat.Member
}

// Connect 创建内存会话
func (c *Connector) Connect(_ context.Context, acc chat.Account) (chat.Session, error) {
	s := New(acc.Uin, c.Nickname)
	s.Groups = slices.Clone(c.Groups)
	s.Friends = slices.Clone(c.Friends)
	for g, m := range c.Members {
		s.Members[g] = slices.Clone(m)
	}
	slog.Info("loopback 会话已登录", "uin", acc.Uin, "protocol", acc.Protocol)
	return s, nil
}

// Sent 已发送的消息
type Sent struct {
	GroupID  int64
	UserID   int64
	Elements []chat.Element
	Receipt  chat.Receipt
	Recalled bool
}

// Upload 已上传的媒体
type Upload struct {
	Kind   string
	Target int64
	Size   int
}

// Session 内存会话，发送的消息记录在本地，可通过 Emit 注入事件
type Session struct {
	uin      int64
	nickname string
	seq      atomic.Int64

	mu        sync.Mutex
	listeners []func(chat.Event)
	sent      []*Sent
	uploads   []Upload
	mutes     map[[2]int64]time.Duration
	admins    map[[2]int64]bool
	sendErr   error
	closed    bool

	Groups  []chat.Group
	Friends []chat.Friend
	Members map[int64][]chat.Member
}

// New 创建内存会话
func New(uin int64, nickname string) *Session {
	return &Session{
		uin:      uin,
		nickname: nickname,
		mutes:    make(map[[2]int64]time.Duration),
		admins:   make(map[[2]int64]bool),
		Members:  make(map[int64][]chat.Member),
	}
}

func (s *Session) UIN() int64       { return s.uin }
func (s *Session) Nickname() string { return s.nickname }

func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// FailNextSend 令下一次发送返回指定错误
func (s *Session) FailNextSend(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

func (s *Session) send(groupID, userID int64, elems []chat.Element) (chat.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return chat.Receipt{}, chat.ErrClosed
	}
	if err := s.sendErr; err != nil {
		s.sendErr = nil
		return chat.Receipt{}, err
	}
	if len(elems) == 0 {
		return chat.Receipt{}, chat.ErrEmptyMessage
	}
	r := chat.Receipt{Seq: s.seq.Add(1), Rand: time.Now().UnixNano() & 0x7fffffff, Time: time.Now().Unix()}
	s.sent = append(s.sent, &Sent{GroupID: groupID, UserID: userID, Elements: elems, Receipt: r})
	return r, nil
}

func (s *Session) SendGroupMessage(_ context.Context, groupID int64, elems []chat.Element) (chat.Receipt, error) {
	return s.send(groupID, 0, elems)
}

func (s *Session) SendPrivateMessage(_ context.Context, userID int64, elems []chat.Element) (chat.Receipt, error) {
	return s.send(0, userID, elems)
}

func (s *Session) recall(match func(*Sent) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.sent {
		if match(m) && !m.Recalled {
			m.Recalled = true
			return nil
		}
	}
	return chat.ErrRecallDenied
}

func (s *Session) RecallGroupMessage(_ context.Context, groupID, seq, rand int64) error {
	return s.recall(func(m *Sent) bool {
		return m.GroupID == groupID && m.Receipt.Seq == seq && m.Receipt.Rand == rand
	})
}

func (s *Session) RecallPrivateMessage(_ context.Context, userID, seq, _, t int64) error {
	return s.recall(func(m *Sent) bool {
		return m.UserID == userID && m.Receipt.Seq == seq && m.Receipt.Time == t
	})
}

func (s *Session) GetGroupList(context.Context) ([]chat.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Groups), nil
}

func (s *Session) GetFriendList(context.Context) ([]chat.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Friends), nil
}

func (s *Session) GetGroupMemberList(_ context.Context, groupID int64) ([]chat.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Members[groupID]
	if !ok {
		return nil, fmt.Errorf("群 %d: %w", groupID, chat.ErrNotFound)
	}
	return slices.Clone(m), nil
}

func (s *Session) MuteMember(_ context.Context, groupID, userID int64, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutes[[2]int64{groupID, userID}] = d
	return nil
}

// Muted 返回成员被禁言的时长
func (s *Session) Muted(groupID, userID int64) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.mutes[[2]int64{groupID, userID}]
	return d, ok
}

func (s *Session) SetAdmin(_ context.Context, groupID, userID int64, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[[2]int64{groupID, userID}] = admin
	return nil
}

// IsAdmin 返回成员是否被设置为管理员
func (s *Session) IsAdmin(groupID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[[2]int64{groupID, userID}]
}

func (s *Session) upload(kind string, target int64, size int) {
	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{Kind: kind, Target: target, Size: size})
	s.mu.Unlock()
}

func (s *Session) UploadImage(_ context.Context, target int64, data []byte) (chat.Element, error) {
	s.upload("image", target, len(data))
	return chat.ImageElement{Filename: fmt.Sprintf("%d.jpg", len(data)), Handle: len(data)}, nil
}

func (s *Session) UploadVoice(_ context.Context, target int64, data []byte) (chat.Element, error) {
	s.upload("voice", target, len(data))
	return chat.VoiceElement{Filename: fmt.Sprintf("%d.silk", len(data)), Handle: len(data)}, nil
}

func (s *Session) UploadVideo(_ context.Context, target int64, video, thumb []byte) (chat.Element, error) {
	s.upload("video", target, len(video)+len(thumb))
	return chat.VideoElement{Filename: fmt.Sprintf("%d.mp4", len(video)), Handle: len(video)}, nil
}

func (s *Session) UploadForward(_ context.Context, target int64, nodes []chat.ForwardNode) (chat.Element, error) {
	s.upload("forward", target, len(nodes))
	return chat.ForwardElement{GroupID: target, Nodes: nodes, Handle: len(nodes)}, nil
}

// Uploads 返回已上传的媒体记录
func (s *Session) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uploads)
}

// SentMessages 返回已发送的消息
func (s *Session) SentMessages() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, *m)
	}
	return out
}

func (s *Session) AddEventListener(fn func(chat.Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Emit 向所有监听者同步投递事件
func (s *Session) Emit(ev chat.Event) {
	s.mu.Lock()
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
