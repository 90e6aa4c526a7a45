package action

import "OneBotCAI/internal/onebot"

// SelfInfo 机器人自身信息
type SelfInfo struct {
	UserID          int64  `json:"user_id" msgpack:"user_id"`
	UserName        string `json:"user_name" msgpack:"user_name"`
	UserDisplayname string `json:"user_displayname" msgpack:"user_displayname"`
}

// UserInfo 用户（好友）信息
type UserInfo struct {
	UserID          int64  `json:"user_id" msgpack:"user_id"`
	UserName        string `json:"user_name" msgpack:"user_name"`
	UserDisplayname string `json:"user_displayname" msgpack:"user_displayname"`
	UserRemark      string `json:"user_remark" msgpack:"user_remark"`
}

// GroupInfo 群信息
type GroupInfo struct {
	GroupID     int64  `json:"group_id" msgpack:"group_id"`
	GroupName   string `json:"group_name" msgpack:"group_name"`
	MemberCount int    `json:"qq.member_count" msgpack:"qq.member_count"`
}

// MemberInfo 群成员信息
type MemberInfo struct {
	UserID          int64  `json:"user_id" msgpack:"user_id"`
	UserName        string `json:"user_name" msgpack:"user_name"`
	UserDisplayname string `json:"user_displayname" msgpack:"user_displayname"`
	SpecialTitle    string `json:"qq.special_title" msgpack:"qq.special_title"`
	Permission      int    `json:"qq.permission" msgpack:"qq.permission"`
}

// SentMessage 发送结果
type SentMessage struct {
	MessageID string `json:"message_id" msgpack:"message_id"`
	Time      int64  `json:"time" msgpack:"time"`
}

// StoredMessage qq.get_message 返回的消息
type StoredMessage struct {
	MessageID string         `json:"message_id" msgpack:"message_id"`
	Message   onebot.Message `json:"message" msgpack:"message"`
	Time      int64          `json:"time" msgpack:"time"`
	GroupID   int64          `json:"group_id,omitempty" msgpack:"group_id,omitempty"`
	UserID    int64          `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	SenderID  int64          `json:"qq.sender_id" msgpack:"qq.sender_id"`
}

// FileInfo get_file 返回的文件
type FileInfo struct {
	Name    string            `json:"name" msgpack:"name"`
	URL     string            `json:"url,omitempty" msgpack:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" msgpack:"headers,omitempty"`
	Path    string            `json:"path,omitempty" msgpack:"path,omitempty"`
	Data    []byte            `json:"data,omitempty" msgpack:"data,omitempty"`
	SHA256  string            `json:"sha256,omitempty" msgpack:"sha256,omitempty"`
}

// FileID 上传结果
type FileID struct {
	FileID string `json:"file_id" msgpack:"file_id"`
}

// Status 运行状态
type Status struct {
	Good   bool `json:"good" msgpack:"good"`
	Online bool `json:"online" msgpack:"online"`
}

// VersionInfo 版本信息
type VersionInfo struct {
	Impl          string `json:"impl" msgpack:"impl"`
	Platform      string `json:"platform" msgpack:"platform"`
	Version       string `json:"version" msgpack:"version"`
	OneBotVersion string `json:"onebot_version" msgpack:"onebot_version"`
}
