package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"OneBotCAI/internal/onebot"
)

// Message 已发送或已接收的消息记录
// GroupID 与 UserID 有且只有一个非零：群消息记录群号，私聊记录对方账号
type Message struct {
	Message  onebot.Message `msgpack:"msg"`              // 消息段
	Seq      int64          `msgpack:"seq"`              // 协议原生序号
	Rand     int64          `msgpack:"rand,omitempty"`   // 协议随机数，撤回群消息时必需
	Time     int64          `msgpack:"time,omitempty"`   // 发送时间（秒），撤回私聊消息时必需
	GroupID  int64          `msgpack:"group,omitempty"`  // 群号
	UserID   int64          `msgpack:"user,omitempty"`   // 私聊对方账号
	SenderID int64          `msgpack:"sender,omitempty"` // 发送者账号
}

// clone 复制记录，消息段重新构造
func (m *Message) clone() *Message {
	c := *m
	c.Message = m.Message.Normalize()
	return &c
}

// Validate 检查记录是否满足存储约束
func (m *Message) Validate() error {
	if (m.GroupID == 0) == (m.UserID == 0) {
		return errors.New("group 与 user 必须且只能设置一个")
	}
	return nil
}

// Recallable 记录是否包含撤回所需的全部字段
func (m *Message) Recallable() bool {
	if m.GroupID != 0 {
		return m.Rand != 0
	}
	return m.Time != 0
}

// FileKind 文件来源
type FileKind string

const (
	FileURL  FileKind = "url"
	FilePath FileKind = "path"
	FileData FileKind = "data"
)

// File 文件记录，Type 指明 URL / Path / Data 中哪一个有效
type File struct {
	Name    string            `msgpack:"name"`
	Type    FileKind          `msgpack:"type"`
	URL     string            `msgpack:"url,omitempty"`
	Headers map[string]string `msgpack:"headers,omitempty"`
	Path    string            `msgpack:"path,omitempty"`
	Data    []byte            `msgpack:"data,omitempty"`
	SHA256  string            `msgpack:"sha256,omitempty"`
}

// Validate 检查文件记录是否与其类型一致
func (f *File) Validate() error {
	var ok bool
	switch f.Type {
	case FileURL:
		ok = f.URL != "" && f.Path == "" && f.Data == nil
	case FilePath:
		ok = f.Path != "" && f.URL == "" && f.Data == nil
	case FileData:
		ok = f.Data != nil && f.URL == "" && f.Path == ""
	default:
		return fmt.Errorf("未知的文件类型: %s", f.Type)
	}
	if !ok {
		return fmt.Errorf("文件类型 %s 与内容不符", f.Type)
	}
	return nil
}

// rehydrate 读取后规范化路径
func (f *File) rehydrate() {
	if f.Type == FilePath {
		f.Path = filepath.Clean(f.Path)
	}
}

// eventRecord 事件的存储封装
type eventRecord struct {
	Kind    string `msgpack:"kind"`
	Seq     int64  `msgpack:"seq,omitempty"`
	Rand    int64  `msgpack:"rand,omitempty"`
	Time    int64  `msgpack:"time"`
	Payload []byte `msgpack:"payload"`
}
