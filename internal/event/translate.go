// Package event 将协议原生事件转换为 OneBot 事件
package event

import (
	"context"
	"fmt"
	"log/slog"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/codec"
	"OneBotCAI/internal/message"
	"OneBotCAI/internal/onebot"
)

// Translator 事件转换器
type Translator struct {
	msg *message.Translator
}

// NewTranslator 创建事件转换器
func NewTranslator(msg *message.Translator) *Translator {
	return &Translator{msg: msg}
}

// Translate 转换原生事件
// 自身发出的消息与撤回会被过滤
// 参数:
//   - ctx: 上下文
//   - sess: 产生事件的会话
//   - native: 原生事件
//
// 返回:
//   - onebot.Event: OneBot 事件
//   - bool: 是否存在对应的 OneBot 事件
func (t *Translator) Translate(ctx context.Context, sess chat.Session, native chat.Event) (onebot.Event, bool) {
	self := sess.UIN()
	base := func(typ, detail, sub string) onebot.Base {
		return onebot.NewBase(self, typ, detail, sub)
	}

	switch e := native.(type) {
	case chat.PrivateMessage:
		if e.FromUin == self {
			return nil, false
		}
		msg := t.msg.ToSegments(e.Message)
		ev := &onebot.PrivateMessageEvent{
			Base:       base(onebot.TypeMessage, onebot.DetailPrivate, ""),
			MessageID:  codec.Encode(e.Seq),
			Message:    msg,
			AltMessage: t.msg.ToPlainText(ctx, sess, msg, 0),
			UserID:     e.FromUin,
		}
		ev.SetNativeRef(e.Seq, e.Rand)
		return ev, true

	case chat.GroupMessage:
		if e.FromUin == self {
			return nil, false
		}
		msg := t.msg.ToSegments(e.Message)
		ev := &onebot.GroupMessageEvent{
			Base:       base(onebot.TypeMessage, onebot.DetailGroup, ""),
			MessageID:  codec.Encode(e.Seq),
			Message:    msg,
			AltMessage: t.msg.ToPlainText(ctx, sess, msg, e.GroupID),
			GroupID:    e.GroupID,
			UserID:     e.FromUin,
		}
		ev.SetNativeRef(e.Seq, e.Rand)
		return ev, true

	case chat.GroupMemberMuted:
		return &onebot.GroupMemberBanEvent{
			Base:       base(onebot.TypeNotice, onebot.DetailGroupMemberBan, ""),
			GroupID:    e.GroupID,
			UserID:     e.TargetID,
			OperatorID: e.OperatorID,
			Duration:   e.Duration,
		}, true

	case chat.GroupMemberUnMuted:
		return &onebot.GroupMemberBanEvent{
			Base:       base(onebot.TypeNotice, onebot.DetailGroupMemberUnban, ""),
			GroupID:    e.GroupID,
			UserID:     e.TargetID,
			OperatorID: e.OperatorID,
		}, true

	case chat.GroupMemberJoined:
		t.invalidate(e.GroupID)
		return &onebot.GroupMemberChangeEvent{
			Base:    base(onebot.TypeNotice, onebot.DetailGroupMemberIncrease, "join"),
			GroupID: e.GroupID,
			UserID:  e.Uin,
		}, true

	case chat.GroupMemberLeave:
		t.invalidate(e.GroupID)
		sub := "leave"
		if e.OperatorID != 0 && e.OperatorID != e.Uin {
			sub = "kick"
		}
		return &onebot.GroupMemberChangeEvent{
			Base:       base(onebot.TypeNotice, onebot.DetailGroupMemberDecrease, sub),
			GroupID:    e.GroupID,
			UserID:     e.Uin,
			OperatorID: e.OperatorID,
		}, true

	case chat.GroupMessageRecalled:
		if e.AuthorID == self {
			return nil, false
		}
		sub := "recall"
		if e.OperatorID != e.AuthorID {
			sub = "delete"
		}
		return &onebot.GroupMessageDeleteEvent{
			Base:       base(onebot.TypeNotice, onebot.DetailGroupMessageDelete, sub),
			GroupID:    e.GroupID,
			MessageID:  codec.Encode(e.Seq),
			UserID:     e.AuthorID,
			OperatorID: e.OperatorID,
		}, true

	case chat.GroupNameChanged:
		return &onebot.GroupNameChangedEvent{
			Base:       base(onebot.TypeNotice, onebot.DetailGroupNameChanged, ""),
			GroupID:    e.GroupID,
			Name:       e.Name,
			OperatorID: e.OperatorID,
		}, true

	case chat.GroupMemberSpecialTitleChanged:
		t.invalidate(e.GroupID)
		return &onebot.GroupSpecialTitleEvent{
			Base:    base(onebot.TypeNotice, onebot.DetailSpecialTitleChanged, ""),
			GroupID: e.GroupID,
			UserID:  e.UserID,
			Text:    e.Text,
		}, true

	case chat.GroupNudge:
		return &onebot.GroupNudgeEvent{
			Base:     base(onebot.TypeNotice, onebot.DetailGroupNudge, ""),
			GroupID:  e.GroupID,
			UserID:   e.SenderID,
			TargetID: e.ReceiverID,
			Text:     e.Action + e.Suffix,
		}, true

	case chat.GroupLuckyCharacter:
		switch e.Action {
		case onebot.LuckyInit, onebot.LuckyNew, onebot.LuckyClosed, onebot.LuckyOpened, onebot.LuckyChanged:
		default:
			slog.Debug("未知的幸运字符动作", "action", e.Action)
			return nil, false
		}
		return &onebot.GroupLuckyCharacterEvent{
			Base:      base(onebot.TypeNotice, onebot.DetailLuckyCharacter, e.Action),
			GroupID:   e.GroupID,
			UserID:    e.UserID,
			OldImgURL: e.PreviousURL,
			NewImgURL: e.URL,
		}, true

	case chat.JoinGroupRequest:
		return &onebot.JoinGroupRequestEvent{
			Base:      base(onebot.TypeRequest, onebot.DetailJoinGroupRequest, ""),
			GroupID:   e.GroupID,
			UserID:    e.FromUin,
			Nickname:  e.Nickname,
			IsInvited: e.IsInvited,
			Seq:       e.Seq,
			UID:       e.UID,
		}, true

	case chat.GroupMemberPermissionChanged:
		t.invalidate(e.GroupID)
		detail := onebot.DetailGroupAdminUnset
		if e.IsAdmin {
			detail = onebot.DetailGroupAdminSet
		}
		return &onebot.GroupAdminEvent{
			Base:    base(onebot.TypeNotice, detail, ""),
			GroupID: e.GroupID,
			UserID:  e.Uin,
		}, true

	case chat.BotOnline:
		slog.Info("机器人已上线", "uin", e.Uin)
		return nil, false

	case chat.BotOffline:
		slog.Warn("机器人已下线", "uin", e.Uin, "reconnect", e.Reconnect)
		return nil, false
	}

	slog.Debug("忽略无对应 OneBot 类型的事件", "event", fmt.Sprintf("%T", native))
	return nil, false
}

func (t *Translator) invalidate(groupID int64) {
	if m := t.msg.Members(); m != nil {
		m.Invalidate(groupID)
	}
}
