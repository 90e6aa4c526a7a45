package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/chat/loopback"
	"OneBotCAI/internal/codec"
	"OneBotCAI/internal/media"
	"OneBotCAI/internal/message"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
)

const self = 10000

func newTranslator(t *testing.T) (*Translator, chat.Session) {
	t.Helper()
	st, err := store.Open("pebble", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	members := message.NewMembers(time.Minute)
	t.Cleanup(members.Stop)
	msg := message.NewTranslator(st, media.NewFetcher(time.Second, 0), &media.FFmpeg{}, members)
	return NewTranslator(msg), loopback.New(self, "bot")
}

func TestSelfMessagesFiltered(t *testing.T) {
	tr, sess := newTranslator(t)
	ctx := context.Background()

	_, ok := tr.Translate(ctx, sess, chat.GroupMessage{Seq: 1, GroupID: 1, FromUin: self, Message: []chat.Element{chat.TextElement{Content: "x"}}})
	assert.False(t, ok)
	_, ok = tr.Translate(ctx, sess, chat.PrivateMessage{Seq: 1, FromUin: self})
	assert.False(t, ok)
	_, ok = tr.Translate(ctx, sess, chat.GroupMessageRecalled{GroupID: 1, AuthorID: self, OperatorID: 2})
	assert.False(t, ok)
}

func TestGroupMessage(t *testing.T) {
	tr, sess := newTranslator(t)
	ev, ok := tr.Translate(context.Background(), sess, chat.GroupMessage{
		Seq: 12, Rand: 34, GroupID: 1, FromUin: 2,
		Message: []chat.Element{chat.TextElement{Content: "hi "}, chat.AtAllElement{}},
	})
	require.True(t, ok)
	gm := ev.(*onebot.GroupMessageEvent)
	assert.Equal(t, codec.Encode(12), gm.MessageID)
	assert.Equal(t, "hi @全体成员", gm.AltMessage)
	assert.Equal(t, int64(self), gm.SelfID)
	assert.NotEmpty(t, gm.ID)
	seq, rnd := gm.NativeRef()
	assert.Equal(t, int64(12), seq)
	assert.Equal(t, int64(34), rnd)
}

func TestMuteShareShape(t *testing.T) {
	tr, sess := newTranslator(t)
	ban, ok := tr.Translate(context.Background(), sess, chat.GroupMemberMuted{GroupID: 1, OperatorID: 2, TargetID: 3, Duration: 60})
	require.True(t, ok)
	unban, ok := tr.Translate(context.Background(), sess, chat.GroupMemberUnMuted{GroupID: 1, OperatorID: 2, TargetID: 3})
	require.True(t, ok)

	assert.IsType(t, &onebot.GroupMemberBanEvent{}, ban)
	assert.IsType(t, &onebot.GroupMemberBanEvent{}, unban)
	assert.Equal(t, onebot.DetailGroupMemberBan, ban.Header().DetailType)
	assert.Equal(t, onebot.DetailGroupMemberUnban, unban.Header().DetailType)
	assert.Equal(t, int64(60), ban.(*onebot.GroupMemberBanEvent).Duration)
}

func TestRecallSubType(t *testing.T) {
	tr, sess := newTranslator(t)
	ev, ok := tr.Translate(context.Background(), sess, chat.GroupMessageRecalled{GroupID: 1, AuthorID: 2, OperatorID: 2, Seq: 3})
	require.True(t, ok)
	assert.Equal(t, "recall", ev.Header().SubType)
	assert.Equal(t, codec.Encode(3), ev.(*onebot.GroupMessageDeleteEvent).MessageID)

	ev, ok = tr.Translate(context.Background(), sess, chat.GroupMessageRecalled{GroupID: 1, AuthorID: 2, OperatorID: 4, Seq: 3})
	require.True(t, ok)
	assert.Equal(t, "delete", ev.Header().SubType)
}

func TestNoticeTable(t *testing.T) {
	tr, sess := newTranslator(t)
	cases := []struct {
		native chat.Event
		kind   string
		sub    string
	}{
		{chat.GroupMemberJoined{GroupID: 1, Uin: 2}, "notice/group_member_increase", "join"},
		{chat.GroupMemberLeave{GroupID: 1, Uin: 2}, "notice/group_member_decrease", "leave"},
		{chat.GroupMemberLeave{GroupID: 1, Uin: 2, OperatorID: 3}, "notice/group_member_decrease", "kick"},
		{chat.GroupNameChanged{GroupID: 1, Name: "n"}, "notice/qq.group_name_changed", ""},
		{chat.GroupMemberSpecialTitleChanged{GroupID: 1, UserID: 2, Text: "t"}, "notice/qq.group_member_special_title_changed", ""},
		{chat.GroupNudge{GroupID: 1, SenderID: 2, ReceiverID: 3, Action: "戳了戳"}, "notice/qq.group_nudge", ""},
		{chat.GroupLuckyCharacter{GroupID: 1, UserID: 2, Action: "opened"}, "notice/qq.group_lucky_character", "opened"},
		{chat.GroupLuckyCharacter{GroupID: 1, UserID: 2, Action: "changed", PreviousURL: "a", URL: "b"}, "notice/qq.group_lucky_character", "changed"},
		{chat.JoinGroupRequest{GroupID: 1, FromUin: 2, Seq: 3}, "request/qq.join_group_request", ""},
		{chat.GroupMemberPermissionChanged{GroupID: 1, Uin: 2, IsAdmin: true}, "notice/qq.group_admin_set", ""},
		{chat.GroupMemberPermissionChanged{GroupID: 1, Uin: 2}, "notice/qq.group_admin_unset", ""},
	}
	for _, c := range cases {
		ev, ok := tr.Translate(context.Background(), sess, c.native)
		require.True(t, ok, c.kind)
		assert.Equal(t, c.kind, ev.Header().Kind())
		assert.Equal(t, c.sub, ev.Header().SubType, c.kind)
	}
}

func TestNoEquivalent(t *testing.T) {
	tr, sess := newTranslator(t)
	for _, native := range []chat.Event{chat.BotOnline{Uin: self}, chat.BotOffline{Uin: self}, chat.GroupLuckyCharacter{Action: "bogus"}} {
		_, ok := tr.Translate(context.Background(), sess, native)
		assert.False(t, ok)
	}
}
