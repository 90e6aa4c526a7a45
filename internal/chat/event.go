package chat

// Event 协议会话推送的原生事件
type Event interface {
	event()
}

// PrivateMessage 收到私聊消息
type PrivateMessage struct {
	Seq     int64
	Rand    int64
	Time    int64
	FromUin int64
	ToUin   int64
	Message []Element
}

// GroupMessage 收到群消息
type GroupMessage struct {
	Seq     int64
	Rand    int64
	Time    int64
	GroupID int64
	FromUin int64
	Message []Element
}

// GroupMemberMuted 群成员被禁言
type GroupMemberMuted struct {
	GroupID    int64
	OperatorID int64
	TargetID   int64
	Duration   int64 // 秒
}

// GroupMemberUnMuted 群成员被解除禁言
type GroupMemberUnMuted struct {
	GroupID    int64
	OperatorID int64
	TargetID   int64
}

// GroupMemberJoined 新成员入群
type GroupMemberJoined struct {
	GroupID  int64
	Uin      int64
	Nickname string
}

// GroupMemberLeave 成员退群或被踢
type GroupMemberLeave struct {
	GroupID    int64
	Uin        int64
	OperatorID int64 // 为 0 或等于 Uin 时表示主动退出
}

// GroupMessageRecalled 群消息被撤回
type GroupMessageRecalled struct {
	GroupID    int64
	AuthorID   int64
	OperatorID int64
	Seq        int64
	Time       int64
}

// GroupNameChanged 群名称变更
type GroupNameChanged struct {
	GroupID    int64
	Name       string
	OperatorID int64
}

// GroupMemberSpecialTitleChanged 群头衔变更
type GroupMemberSpecialTitleChanged struct {
	GroupID int64
	UserID  int64
	Text    string
}

// GroupNudge 群内戳一戳
type GroupNudge struct {
	GroupID    int64
	SenderID   int64
	ReceiverID int64
	Action     string
	Suffix     string
}

// GroupLuckyCharacter 群幸运字符，Action 取 init/new/closed/opened/changed
type GroupLuckyCharacter struct {
	GroupID     int64
	UserID      int64
	Action      string
	PreviousURL string
	URL         string
}

// JoinGroupRequest 加群请求
type JoinGroupRequest struct {
	Seq       int64
	UID       string
	GroupID   int64
	FromUin   int64
	Nickname  string
	IsInvited bool
}

// GroupMemberPermissionChanged 群管理员变更
type GroupMemberPermissionChanged struct {
	GroupID int64
	Uin     int64
	IsAdmin bool
}

// BotOnline 机器人上线
type BotOnline struct {
	Uin int64
}

// BotOffline 机器人下线
type BotOffline struct {
	Uin       int64
	Reconnect bool
}

func (PrivateMessage) event()                 {}
func (GroupMessage) event()                   {}
func (GroupMemberMuted) event()               {}
func (GroupMemberUnMuted) event()             {}
func (GroupMemberJoined) event()              {}
func (GroupMemberLeave) event()               {}
func (GroupMessageRecalled) event()           {}
func (GroupNameChanged) event()               {}
func (GroupMemberSpecialTitleChanged) event() {}
func (GroupNudge) event()                     {}
func (GroupLuckyCharacter) event()            {}
func (JoinGroupRequest) event()               {}
func (GroupMemberPermissionChanged) event()   {}
func (BotOnline) event()                      {}
func (BotOffline) event()                     {}
