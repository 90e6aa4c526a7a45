// Package chat 定义桥接所依赖的聊天协议会话能力
// 协议驱动通过 Register 注册，桥接只通过 Session 接口与之交互
package chat

import (
	"context"
	"errors"
	"time"
)

// 发送与撤回时协议端可能返回的错误
var (
	ErrEmptyMessage     = errors.New("消息为空")
	ErrAtAllLimited     = errors.New("@全体成员次数已用完")
	ErrGroupMsgLimited  = errors.New("群消息发送受限")
	ErrSendRefused      = errors.New("消息被拒绝，账号可能被禁言或风控")
	ErrRecallDenied     = errors.New("撤回被拒绝")
	ErrPermissionDenied = errors.New("权限不足")
	ErrNotFound         = errors.New("目标不存在")
	ErrClosed           = errors.New("会话已关闭")
)

// Protocol 登录协议
type Protocol int

const (
	AndroidPhone Protocol = 1
	AndroidWatch Protocol = 2
	MacOS        Protocol = 3
	IPad         Protocol = 5
)

// ParseProtocol 解析协议名称，未知名称返回 IPad
func ParseProtocol(s string) Protocol {
	switch s {
	case "ANDROID_PHONE":
		return AndroidPhone
	case "ANDROID_WATCH":
		return AndroidWatch
	case "MACOS":
		return MacOS
	}
	return IPad
}

// Account 登录所需的账号信息
type Account struct {
	Uin      int64    // 账号
	Password string   // 密码，为空时由驱动自行处理（如扫码）
	Status   int      // 登录状态
	Protocol Protocol // 登录协议
}

// Receipt 发送成功后协议返回的消息凭据
type Receipt struct {
	Seq  int64 // 消息序号
	Rand int64 // 消息随机数
	Time int64 // 发送时间（秒）
}

// Group 群信息
type Group struct {
	ID          int64
	Name        string
	MemberCount int
	OwnerID     int64
}

// Friend 好友信息
type Friend struct {
	ID       int64
	Nickname string
	Remark   string
}

// Member 群成员信息
type Member struct {
	GroupID      int64
	ID           int64
	Nickname     string
	Card         string // 群名片
	SpecialTitle string
	Permission   int // 0 成员 1 管理员 2 群主
	JoinTime     int64
	LastSpeak    int64
}

// DisplayName 群名片优先，其次昵称
func (m *Member) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}

// Session 已登录的聊天协议会话
// 所有方法都可能被多个动作并发调用
type Session interface {
	UIN() int64
	Nickname() string
	Online() bool

	SendGroupMessage(ctx context.Context, groupID int64, elems []Element) (Receipt, error)
	SendPrivateMessage(ctx context.Context, userID int64, elems []Element) (Receipt, error)
	RecallGroupMessage(ctx context.Context, groupID, seq, rand int64) error
	RecallPrivateMessage(ctx context.Context, userID, seq, rand, t int64) error

	GetGroupList(ctx context.Context) ([]Group, error)
	GetFriendList(ctx context.Context) ([]Friend, error)
	GetGroupMemberList(ctx context.Context, groupID int64) ([]Member, error)

	MuteMember(ctx context.Context, groupID, userID int64, d time.Duration) error
	SetAdmin(ctx context.Context, groupID, userID int64, admin bool) error

	UploadImage(ctx context.Context, target int64, data []byte) (Element, error)
	UploadVoice(ctx context.Context, target int64, data []byte) (Element, error)
	UploadVideo(ctx context.Context, target int64, video, thumb []byte) (Element, error)
	UploadForward(ctx context.Context, target int64, nodes []ForwardNode) (Element, error)

	AddEventListener(fn func(Event))
	Close() error
}

// Connector 聊天协议驱动，负责登录并返回会话
type Connector interface {
	Connect(ctx context.Context, acc Account) (Session, error)
}

var connectors = map[string]Connector{}

// Register 注册协议驱动，应在 init 中调用
func Register(name string, c Connector) {
	connectors[name] = c
}

// Lookup 获取已注册的协议驱动
func Lookup(name string) (Connector, bool) {
	c, ok := connectors[name]
	return c, ok
}

// Drivers 返回已注册的驱动名称
func Drivers() []string {
	names := make([]string, 0, len(connectors))
	for n := range connectors {
		names = append(names, n)
	}
	return names
}
