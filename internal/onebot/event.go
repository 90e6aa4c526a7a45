package onebot

import (
	"time"

	"github.com/google/uuid"
)

// 实现信息
const (
	Impl          = "onebot_cai"
	Platform      = "qq"
	OneBotVersion = "12"
)

// Version 实现版本号，构建时可覆盖
var Version = "0.1.0"

// 事件类型
const (
	TypeMessage = "message"
	TypeNotice  = "notice"
	TypeRequest = "request"
	TypeMeta    = "meta"
)

// 详细事件类型
const (
	DetailPrivate             = "private"
	DetailGroup               = "group"
	DetailGroupMemberBan      = "group_member_ban"
	DetailGroupMemberUnban    = "group_member_unban"
	DetailGroupMemberIncrease = "group_member_increase"
	DetailGroupMemberDecrease = "group_member_decrease"
	DetailGroupMessageDelete  = "group_message_delete"
	DetailGroupAdminSet       = "qq.group_admin_set"
	DetailGroupAdminUnset     = "qq.group_admin_unset"
	DetailGroupNameChanged    = "qq.group_name_changed"
	DetailSpecialTitleChanged = "qq.group_member_special_title_changed"
	DetailGroupNudge          = "qq.group_nudge"
	DetailLuckyCharacter      = "qq.group_lucky_character"
	DetailJoinGroupRequest    = "qq.join_group_request"
	DetailHeartbeat           = "heartbeat"
)

// Event 所有 OneBot 事件的公共接口
// 具体事件类型固定在本包内定义
type Event interface {
	Header() *Base
	isEvent()
}

// Base 事件公共字段
type Base struct {
	ID         string  `json:"id" msgpack:"id"`
	Time       float64 `json:"time" msgpack:"time"`
	Type       string  `json:"type" msgpack:"type"`
	DetailType string  `json:"detail_type" msgpack:"detail_type"`
	SubType    string  `json:"sub_type" msgpack:"sub_type"`
	SelfID     int64   `json:"self_id" msgpack:"self_id"`
	Impl       string  `json:"impl" msgpack:"impl"`
	Platform   string  `json:"platform" msgpack:"platform"`
}

// NewBase 生成带有新 ID 和当前时间的事件头
func NewBase(selfID int64, typ, detail, sub string) Base {
	return Base{
		ID:         uuid.NewString(),
		Time:       float64(time.Now().UnixMicro()) / 1e6,
		Type:       typ,
		DetailType: detail,
		SubType:    sub,
		SelfID:     selfID,
		Impl:       Impl,
		Platform:   Platform,
	}
}

func (b *Base) Header() *Base { return b }
func (*Base) isEvent()        {}

// Kind 事件类型键，用于持久化后还原具体类型
func (b *Base) Kind() string { return b.Type + "/" + b.DetailType }

// nativeRef 消息事件关联的原生序号，不对外输出
type nativeRef struct {
	seq  int64
	rand int64
}

// NativeRef 返回原生序号与随机数
func (n *nativeRef) NativeRef() (int64, int64) { return n.seq, n.rand }

// SetNativeRef 设置原生序号与随机数
func (n *nativeRef) SetNativeRef(seq, rand int64) { n.seq, n.rand = seq, rand }

// NativeRefer 携带原生序号的事件
type NativeRefer interface {
	NativeRef() (int64, int64)
	SetNativeRef(seq, rand int64)
}

// PrivateMessageEvent 私聊消息
type PrivateMessageEvent struct {
	Base       `msgpack:",inline"`
	nativeRef  `json:"-" msgpack:"-"`
	MessageID  string  `json:"message_id" msgpack:"message_id"`
	Message    Message `json:"message" msgpack:"message"`
	AltMessage string  `json:"alt_message" msgpack:"alt_message"`
	UserID     int64   `json:"user_id" msgpack:"user_id"`
}

// GroupMessageEvent 群消息
type GroupMessageEvent struct {
	Base       `msgpack:",inline"`
	nativeRef  `json:"-" msgpack:"-"`
	MessageID  string  `json:"message_id" msgpack:"message_id"`
	Message    Message `json:"message" msgpack:"message"`
	AltMessage string  `json:"alt_message" msgpack:"alt_message"`
	GroupID    int64   `json:"group_id" msgpack:"group_id"`
	UserID     int64   `json:"user_id" msgpack:"user_id"`
}

// GroupMemberBanEvent 群成员禁言与解除禁言
// DetailType 为 group_member_ban 或 group_member_unban
type GroupMemberBanEvent struct {
	Base       `msgpack:",inline"`
	GroupID    int64 `json:"group_id" msgpack:"group_id"`
	UserID     int64 `json:"user_id" msgpack:"user_id"`
	OperatorID int64 `json:"operator_id" msgpack:"operator_id"`
	Duration   int64 `json:"qq.duration,omitempty" msgpack:"qq.duration,omitempty"` // 禁言时长（秒）
}

// GroupMemberChangeEvent 群成员增加与减少
// DetailType 为 group_member_increase 或 group_member_decrease
type GroupMemberChangeEvent struct {
	Base       `msgpack:",inline"`
	GroupID    int64 `json:"group_id" msgpack:"group_id"`
	UserID     int64 `json:"user_id" msgpack:"user_id"`
	OperatorID int64 `json:"operator_id" msgpack:"operator_id"`
}

// GroupMessageDeleteEvent 群消息撤回，SubType 为 recall（本人撤回）或 delete（管理员撤回）
type GroupMessageDeleteEvent struct {
	Base       `msgpack:",inline"`
	GroupID    int64  `json:"group_id" msgpack:"group_id"`
	MessageID  string `json:"message_id" msgpack:"message_id"`
	UserID     int64  `json:"user_id" msgpack:"user_id"`
	OperatorID int64  `json:"operator_id" msgpack:"operator_id"`
}

// GroupAdminEvent 群管理员设置与取消
// DetailType 为 qq.group_admin_set 或 qq.group_admin_unset
type GroupAdminEvent struct {
	Base       `msgpack:",inline"`
	GroupID    int64 `json:"group_id" msgpack:"group_id"`
	UserID     int64 `json:"user_id" msgpack:"user_id"`
	OperatorID int64 `json:"operator_id" msgpack:"operator_id"`
}

// GroupNameChangedEvent 群名称变更
type GroupNameChangedEvent struct {
	Base       `msgpack:",inline"`
	GroupID    int64  `json:"group_id" msgpack:"group_id"`
	Name       string `json:"name" msgpack:"name"`
	OperatorID int64  `json:"operator_id" msgpack:"operator_id"`
}

// GroupSpecialTitleEvent 群头衔变更
type GroupSpecialTitleEvent struct {
	Base    `msgpack:",inline"`
	GroupID int64  `json:"group_id" msgpack:"group_id"`
	UserID  int64  `json:"user_id" msgpack:"user_id"`
	Text    string `json:"text" msgpack:"text"`
}

// GroupNudgeEvent 群内戳一戳
type GroupNudgeEvent struct {
	Base     `msgpack:",inline"`
	GroupID  int64  `json:"group_id" msgpack:"group_id"`
	UserID   int64  `json:"user_id" msgpack:"user_id"`
	TargetID int64  `json:"target_id" msgpack:"target_id"`
	Text     string `json:"text" msgpack:"text"`
}

// 幸运字符动作，作为 GroupLuckyCharacterEvent 的 SubType
const (
	LuckyInit    = "init"
	LuckyNew     = "new"
	LuckyClosed  = "closed"
	LuckyOpened  = "opened"
	LuckyChanged = "changed"
)

// GroupLuckyCharacterEvent 群幸运字符，各动作共用同一结构，以 SubType 区分
type GroupLuckyCharacterEvent struct {
	Base      `msgpack:",inline"`
	GroupID   int64  `json:"group_id" msgpack:"group_id"`
	UserID    int64  `json:"user_id" msgpack:"user_id"`
	OldImgURL string `json:"old_img_url" msgpack:"old_img_url"`
	NewImgURL string `json:"new_img_url" msgpack:"new_img_url"`
}

// JoinGroupRequestEvent 加群请求
type JoinGroupRequestEvent struct {
	Base      `msgpack:",inline"`
	GroupID   int64  `json:"group_id" msgpack:"group_id"`
	UserID    int64  `json:"user_id" msgpack:"user_id"`
	Nickname  string `json:"nickname" msgpack:"nickname"`
	IsInvited bool   `json:"is_invited" msgpack:"is_invited"`
	Seq       int64  `json:"seq" msgpack:"seq"`
	UID       string `json:"uid" msgpack:"uid"`
}

// HeartbeatStatus 心跳携带的运行状态
type HeartbeatStatus struct {
	Good   bool `json:"good" msgpack:"good"`
	Online bool `json:"online" msgpack:"online"`
}

// HeartbeatEvent 心跳元事件
type HeartbeatEvent struct {
	Base     `msgpack:",inline"`
	Interval int64           `json:"interval" msgpack:"interval"` // 心跳间隔（毫秒）
	Status   HeartbeatStatus `json:"status" msgpack:"status"`
}

var eventKinds = map[string]func() Event{
	TypeMessage + "/" + DetailPrivate:             func() Event { return &PrivateMessageEvent{} },
	TypeMessage + "/" + DetailGroup:               func() Event { return &GroupMessageEvent{} },
	TypeNotice + "/" + DetailGroupMemberBan:       func() Event { return &GroupMemberBanEvent{} },
	TypeNotice + "/" + DetailGroupMemberUnban:     func() Event { return &GroupMemberBanEvent{} },
	TypeNotice + "/" + DetailGroupMemberIncrease:  func() Event { return &GroupMemberChangeEvent{} },
	TypeNotice + "/" + DetailGroupMemberDecrease:  func() Event { return &GroupMemberChangeEvent{} },
	TypeNotice + "/" + DetailGroupMessageDelete:   func() Event { return &GroupMessageDeleteEvent{} },
	TypeNotice + "/" + DetailGroupAdminSet:        func() Event { return &GroupAdminEvent{} },
	TypeNotice + "/" + DetailGroupAdminUnset:      func() Event { return &GroupAdminEvent{} },
	TypeNotice + "/" + DetailGroupNameChanged:     func() Event { return &GroupNameChangedEvent{} },
	TypeNotice + "/" + DetailSpecialTitleChanged:  func() Event { return &GroupSpecialTitleEvent{} },
	TypeNotice + "/" + DetailGroupNudge:           func() Event { return &GroupNudgeEvent{} },
	TypeNotice + "/" + DetailLuckyCharacter:       func() Event { return &GroupLuckyCharacterEvent{} },
	TypeRequest + "/" + DetailJoinGroupRequest:    func() Event { return &JoinGroupRequestEvent{} },
	TypeMeta + "/" + DetailHeartbeat:              func() Event { return &HeartbeatEvent{} },
}

// NewEventOf 根据类型键构造空事件，用于反序列化
// 返回:
//   - Event: 空事件
//   - bool: 类型键是否已知
func NewEventOf(kind string) (Event, bool) {
	f, ok := eventKinds[kind]
	if !ok {
		return nil, false
	}
	return f(), true
}
