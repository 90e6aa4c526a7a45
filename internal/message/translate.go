// Package message 在 OneBot 消息段与协议原生消息元素之间转换
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/codec"
	"OneBotCAI/internal/media"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
)

// SegmentParseError 单个消息段无法转换，调用方应丢弃该段并继续
type SegmentParseError struct {
	Type string
	Data map[string]any
	Err  error
}

func (e *SegmentParseError) Error() string {
	return fmt.Sprintf("消息段 %s 转换失败: %v", e.Type, e.Err)
}

func (e *SegmentParseError) Unwrap() error { return e.Err }

// ErrNoSession 媒体上传需要已登录的会话
var ErrNoSession = errors.New("未登录")

// Translator 消息转换器
type Translator struct {
	store      *store.Store
	fetcher    *media.Fetcher
	transcoder media.Transcoder
	members    *Members
}

// NewTranslator 创建消息转换器
func NewTranslator(st *store.Store, f *media.Fetcher, tc media.Transcoder, members *Members) *Translator {
	return &Translator{store: st, fetcher: f, transcoder: tc, members: members}
}

// Members 返回群成员缓存
func (t *Translator) Members() *Members { return t.members }

// ToNative 将 OneBot 消息转为协议原生元素
// 单个消息段失败只会被记录并丢弃，不影响其余消息段
// 参数:
//   - ctx: 上下文
//   - sess: 当前会话，上传媒体时使用
//   - groupID: 目标群号，私聊为 0
//   - msg: OneBot 消息
//   - ignoreReply: 是否忽略回复段（渲染被回复的消息时为 true）
//
// 返回:
//   - []chat.Element: 原生元素
//   - error: 没有任何可发送的元素时返回 chat.ErrEmptyMessage
func (t *Translator) ToNative(ctx context.Context, sess chat.Session, groupID int64, msg onebot.Message, ignoreReply bool) ([]chat.Element, error) {
	elems := make([]chat.Element, 0, len(msg))
	for _, seg := range msg {
		if ignoreReply && seg.Type == onebot.SegReply {
			continue
		}
		elem, err := t.segmentToNative(ctx, sess, groupID, seg)
		if err != nil {
			slog.Warn("消息段转换失败，已丢弃", "type", seg.Type, "data", seg.Data, "error", err)
			continue
		}
		elems = append(elems, elem)
	}
	if len(elems) == 0 {
		return nil, chat.ErrEmptyMessage
	}
	return elems, nil
}

func (t *Translator) segmentToNative(ctx context.Context, sess chat.Session, groupID int64, seg onebot.Segment) (chat.Element, error) {
	fail := func(err error) (chat.Element, error) {
		return nil, &SegmentParseError{Type: seg.Type, Data: seg.Data, Err: err}
	}

	parsed, err := seg.Parse()
	if err != nil {
		return fail(err)
	}

	switch d := parsed.(type) {
	case onebot.TextData:
		return chat.TextElement{Content: d.Text}, nil
	case onebot.MentionData:
		return chat.AtElement{Target: d.UserID, Display: "@" + t.displayName(ctx, sess, groupID, d.UserID)}, nil
	case onebot.MentionAllData:
		return chat.AtAllElement{}, nil
	case onebot.FaceData:
		return chat.FaceElement{ID: d.ID}, nil
	case onebot.PokeData:
		return chat.PokeElement{ID: d.ID}, nil
	case onebot.ReplyData:
		m, err := t.store.GetMessage(d.MessageID)
		if err != nil {
			return fail(err)
		}
		if m.SenderID == 0 || m.Time == 0 {
			return fail(errors.New("被回复的消息缺少发送者或时间"))
		}
		body, err := t.ToNative(ctx, sess, groupID, m.Message, true)
		if err != nil && !errors.Is(err, chat.ErrEmptyMessage) {
			return fail(err)
		}
		return chat.ReplyElement{Seq: m.Seq, Time: m.Time, Sender: m.SenderID, Message: body}, nil
	case onebot.FileData:
		elem, err := t.uploadMedia(ctx, sess, groupID, d)
		if err != nil {
			return fail(err)
		}
		return elem, nil
	case onebot.ForwardData:
		elem, err := t.uploadForward(ctx, sess, groupID, d)
		if err != nil {
			return fail(err)
		}
		return elem, nil
	}
	return fail(&onebot.UnsupportedSegmentError{Type: seg.Type})
}

func (t *Translator) uploadMedia(ctx context.Context, sess chat.Session, groupID int64, d onebot.FileData) (chat.Element, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	f, err := t.store.GetFile(d.FileID)
	if err != nil {
		return nil, fmt.Errorf("文件 %s: %w", d.FileID, err)
	}
	data, err := t.fetcher.Fetch(ctx, f)
	if err != nil {
		return nil, err
	}

	switch d.Kind {
	case onebot.SegImage:
		return sess.UploadImage(ctx, groupID, data)
	case onebot.SegVoice, onebot.SegAudio:
		voice, err := t.transcoder.Voice(ctx, data)
		if err != nil {
			return nil, err
		}
		return sess.UploadVoice(ctx, groupID, voice)
	case onebot.SegVideo:
		video, thumb, err := t.transcoder.Video(ctx, data)
		if err != nil {
			return nil, err
		}
		return sess.UploadVideo(ctx, groupID, video, thumb)
	}
	return nil, &onebot.UnsupportedSegmentError{Type: d.Kind}
}

func (t *Translator) uploadForward(ctx context.Context, sess chat.Session, groupID int64, d onebot.ForwardData) (chat.Element, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	nodes := make([]chat.ForwardNode, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		body, err := t.ToNative(ctx, sess, groupID, n.Message, true)
		if err != nil {
			slog.Warn("转发节点为空，已跳过", "user_id", n.UserID)
			continue
		}
		nodes = append(nodes, chat.ForwardNode{FromUin: n.UserID, Nickname: n.Nickname, SendTime: n.Time, Message: body})
	}
	if len(nodes) == 0 {
		return nil, errors.New("没有可转发的消息")
	}
	target := d.GroupID
	if target == 0 {
		target = groupID
	}
	return sess.UploadForward(ctx, target, nodes)
}

// ToSegments 将协议原生元素转为 OneBot 消息
// 媒体元素会立即以 URL 形式存入文件记录，消息段中只携带文件 ID
func (t *Translator) ToSegments(elems []chat.Element) onebot.Message {
	msg := make(onebot.Message, 0, len(elems))
	for _, e := range elems {
		seg, ok := t.elementToSegment(e)
		if !ok {
			continue
		}
		msg = append(msg, seg)
	}
	return msg
}

func (t *Translator) elementToSegment(e chat.Element) (onebot.Segment, bool) {
	switch v := e.(type) {
	case chat.TextElement:
		return onebot.Text(v.Content), true
	case chat.AtElement:
		return onebot.Mention(v.Target), true
	case chat.AtAllElement:
		return onebot.MentionAll(), true
	case chat.FaceElement:
		return onebot.Face(v.ID), true
	case chat.PokeElement:
		return onebot.Poke(v.ID, pokeName(v.ID)), true
	case chat.ImageElement:
		return t.saveMedia(onebot.SegImage, v.Filename, v.URL)
	case chat.VoiceElement:
		return t.saveMedia(onebot.SegVoice, v.Filename, v.URL)
	case chat.VideoElement:
		return t.saveMedia(onebot.SegVideo, v.Filename, v.URL)
	case chat.ReplyElement:
		return onebot.Reply(codec.Encode(v.Seq), v.Sender), true
	case chat.ForwardElement:
		nodes := make([]onebot.ForwardNode, 0, len(v.Nodes))
		for _, n := range v.Nodes {
			nodes = append(nodes, onebot.ForwardNode{
				UserID:   n.FromUin,
				Nickname: n.Nickname,
				Time:     n.SendTime,
				Message:  t.ToSegments(n.Message),
			})
		}
		return onebot.Forward(v.GroupID, v.Brief, nodes), true
	}
	slog.Warn("未知的消息元素，已丢弃", "element", fmt.Sprintf("%T", e))
	return onebot.Segment{}, false
}

func (t *Translator) saveMedia(kind, name, url string) (onebot.Segment, bool) {
	if url == "" {
		slog.Warn("媒体元素缺少地址，已丢弃", "type", kind, "name", name)
		return onebot.Segment{}, false
	}
	id, err := t.store.SaveFile(&store.File{Name: name, Type: store.FileURL, URL: url})
	if err != nil {
		slog.Warn("保存媒体文件失败，已丢弃", "type", kind, "name", name, "error", err)
		return onebot.Segment{}, false
	}
	return onebot.File(kind, id), true
}

// ToPlainText 生成消息的纯文本表示
// 参数:
//   - ctx: 上下文
//   - sess: 当前会话，用于查询被提及成员的名称，可为 nil
//   - msg: OneBot 消息
//   - groupID: 所在群号，私聊为 0
func (t *Translator) ToPlainText(ctx context.Context, sess chat.Session, msg onebot.Message, groupID int64) string {
	var b strings.Builder
	for _, seg := range msg {
		parsed, err := seg.Parse()
		if err != nil {
			continue
		}
		switch d := parsed.(type) {
		case onebot.TextData:
			b.WriteString(d.Text)
		case onebot.FileData:
			switch d.Kind {
			case onebot.SegImage:
				b.WriteString("[图片]")
			case onebot.SegVideo:
				b.WriteString("[视频]")
			default:
				b.WriteString("[语音]")
			}
		case onebot.MentionData:
			b.WriteString("@" + t.displayName(ctx, sess, groupID, d.UserID))
		case onebot.MentionAllData:
			b.WriteString("@全体成员")
		case onebot.FaceData:
			b.WriteString("[表情]")
		case onebot.PokeData:
			if d.Name != "" {
				b.WriteString(d.Name)
			} else {
				b.WriteString(pokeName(d.ID))
			}
		case onebot.ForwardData:
			if d.Brief != "" {
				b.WriteString(d.Brief)
			} else {
				b.WriteString("[聊天记录]")
			}
		}
	}
	return b.String()
}

// displayName 查询群成员名称，失败时返回账号
func (t *Translator) displayName(ctx context.Context, sess chat.Session, groupID, userID int64) string {
	if groupID != 0 && sess != nil && t.members != nil {
		if m, err := t.members.Lookup(ctx, sess, groupID, userID); err == nil {
			if name := m.DisplayName(); name != "" {
				return name
			}
		}
	}
	return strconv.FormatInt(userID, 10)
}

func pokeName(id int) string {
	if name, ok := onebot.PokeNames[id]; ok {
		return name
	}
	return onebot.PokeNames[0]
}
