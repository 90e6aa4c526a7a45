package onebot

import (
	"fmt"
	"maps"
)

// 消息段类型
const (
	SegText       = "text"
	SegImage      = "image"
	SegVoice      = "voice"
	SegAudio      = "audio"
	SegVideo      = "video"
	SegMention    = "mention"
	SegMentionAll = "mention_all"
	SegReply      = "reply"
	SegFace       = "qq.face"
	SegPoke       = "qq.poke"
	SegForward    = "qq.forward"
)

// PokeNames 戳一戳编号对应的名称
var PokeNames = map[int]string{
	0: "戳一戳",
	2: "比心",
	3: "点赞",
	4: "心碎",
	5: "666",
	6: "放大招",
}

// Segment 消息段
type Segment struct {
	Type string         `json:"type" msgpack:"type"` // 消息段类型
	Data map[string]any `json:"data" msgpack:"data"` // 消息段数据
}

// Message 有序的消息段列表
type Message []Segment

// UnsupportedSegmentError 未知的消息段类型
type UnsupportedSegmentError struct {
	Type string
}

func (e *UnsupportedSegmentError) Error() string {
	return fmt.Sprintf("不支持的消息段类型: %s", e.Type)
}

// BadSegmentError 消息段数据不合法
type BadSegmentError struct {
	Type   string
	Reason string
}

func (e *BadSegmentError) Error() string {
	return fmt.Sprintf("消息段 %s 数据错误: %s", e.Type, e.Reason)
}

// TextData 纯文本
type TextData struct {
	Text string `json:"text"`
}

// FileData 图片、语音、音频、视频共用的文件引用
type FileData struct {
	Kind   string `json:"-"`
	FileID string `json:"file_id"`
}

// MentionData 提及某人
type MentionData struct {
	UserID int64 `json:"user_id"`
}

// MentionAllData 提及所有人
type MentionAllData struct{}

// ReplyData 回复
type ReplyData struct {
	MessageID string `json:"message_id"`
	UserID    int64  `json:"user_id,omitempty"`
}

// FaceData QQ 表情
type FaceData struct {
	ID int `json:"id"`
}

// PokeData 戳一戳
type PokeData struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// ForwardNode 合并转发中的一条消息
type ForwardNode struct {
	UserID   int64   `json:"user_id" msgpack:"user_id"`
	Nickname string  `json:"nickname" msgpack:"nickname"`
	Time     int64   `json:"time" msgpack:"time"`
	Message  Message `json:"message" msgpack:"message"`
}

// ForwardData 合并转发
type ForwardData struct {
	GroupID int64         `json:"group_id,omitempty"`
	Brief   string        `json:"brief,omitempty"`
	Nodes   []ForwardNode `json:"nodes"`
}

// Text 构造文本消息段
func Text(text string) Segment {
	return Segment{Type: SegText, Data: map[string]any{"text": text}}
}

// Mention 构造提及消息段
func Mention(userID int64) Segment {
	return Segment{Type: SegMention, Data: map[string]any{"user_id": userID}}
}

// MentionAll 构造提及所有人消息段
func MentionAll() Segment {
	return Segment{Type: SegMentionAll, Data: map[string]any{}}
}

// File 构造文件类消息段
// 参数:
//   - kind: image / voice / audio / video
//   - fileID: 文件 ID
func File(kind, fileID string) Segment {
	return Segment{Type: kind, Data: map[string]any{"file_id": fileID}}
}

// Reply 构造回复消息段
func Reply(messageID string, userID int64) Segment {
	return Segment{Type: SegReply, Data: map[string]any{
		"message_id": messageID,
		"user_id":    userID,
	}}
}

// Face 构造 QQ 表情消息段
func Face(id int) Segment {
	return Segment{Type: SegFace, Data: map[string]any{"id": id}}
}

// Poke 构造戳一戳消息段
func Poke(id int, name string) Segment {
	return Segment{Type: SegPoke, Data: map[string]any{"id": id, "name": name}}
}

// Forward 构造合并转发消息段
func Forward(groupID int64, brief string, nodes []ForwardNode) Segment {
	list := make([]any, 0, len(nodes))
	for _, n := range nodes {
		list = append(list, map[string]any{
			"user_id":  n.UserID,
			"nickname": n.Nickname,
			"time":     n.Time,
			"message":  n.Message,
		})
	}
	data := map[string]any{"nodes": list}
	if groupID != 0 {
		data["group_id"] = groupID
	}
	if brief != "" {
		data["brief"] = brief
	}
	return Segment{Type: SegForward, Data: data}
}

// Parse 将消息段解析为对应的强类型数据
// 返回:
//   - any: TextData / FileData / MentionData / MentionAllData / ReplyData / FaceData / PokeData / ForwardData
//   - error: UnsupportedSegmentError 或 BadSegmentError
func (s Segment) Parse() (any, error) {
	var out any
	switch s.Type {
	case SegText:
		out = &TextData{}
	case SegImage, SegVoice, SegAudio, SegVideo:
		out = &FileData{Kind: s.Type}
	case SegMention:
		out = &MentionData{}
	case SegMentionAll:
		return MentionAllData{}, nil
	case SegReply:
		out = &ReplyData{}
	case SegFace:
		out = &FaceData{}
	case SegPoke:
		out = &PokeData{}
	case SegForward:
		out = &ForwardData{}
	default:
		return nil, &UnsupportedSegmentError{Type: s.Type}
	}
	if err := Bind(s.Data, out); err != nil {
		return nil, &BadSegmentError{Type: s.Type, Reason: err.Error()}
	}

	switch d := out.(type) {
	case *TextData:
		return *d, nil
	case *FileData:
		if d.FileID == "" {
			return nil, &BadSegmentError{Type: s.Type, Reason: "file_id 为空"}
		}
		return *d, nil
	case *MentionData:
		return *d, nil
	case *ReplyData:
		return *d, nil
	case *FaceData:
		return *d, nil
	case *PokeData:
		if d.ID < 0 || d.ID > 6 {
			return nil, &BadSegmentError{Type: s.Type, Reason: fmt.Sprintf("未知的戳一戳编号 %d", d.ID)}
		}
		return *d, nil
	case *ForwardData:
		return *d, nil
	}
	return nil, &UnsupportedSegmentError{Type: s.Type}
}

// Normalize 按消息段的强类型数据重建消息，数值统一为 int64 / int
// 返回新的消息，不修改原消息；无法解析的消息段原样复制
func (m Message) Normalize() Message {
	if m == nil {
		return nil
	}
	out := make(Message, 0, len(m))
	for _, seg := range m {
		out = append(out, seg.normalize())
	}
	return out
}

func (s Segment) normalize() Segment {
	parsed, err := s.Parse()
	if err != nil {
		return Segment{Type: s.Type, Data: maps.Clone(s.Data)}
	}
	switch d := parsed.(type) {
	case TextData:
		return Text(d.Text)
	case FileData:
		return File(d.Kind, d.FileID)
	case MentionData:
		return Mention(d.UserID)
	case MentionAllData:
		return MentionAll()
	case ReplyData:
		seg := Segment{Type: SegReply, Data: map[string]any{"message_id": d.MessageID}}
		if d.UserID != 0 {
			seg.Data["user_id"] = d.UserID
		}
		return seg
	case FaceData:
		return Face(d.ID)
	case PokeData:
		seg := Segment{Type: SegPoke, Data: map[string]any{"id": d.ID}}
		if d.Name != "" {
			seg.Data["name"] = d.Name
		}
		return seg
	case ForwardData:
		nodes := make([]ForwardNode, 0, len(d.Nodes))
		for _, n := range d.Nodes {
			n.Message = n.Message.Normalize()
			nodes = append(nodes, n)
		}
		return Forward(d.GroupID, d.Brief, nodes)
	}
	return Segment{Type: s.Type, Data: maps.Clone(s.Data)}
}
