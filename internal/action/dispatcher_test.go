package action

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/chat/loopback"
	"OneBotCAI/internal/media"
	"OneBotCAI/internal/message"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
)

type fixture struct {
	d    *Dispatcher
	sess *loopback.Session
	st   *store.Store
	env  *Env
}

func newFixture(t *testing.T, loggedIn bool) *fixture {
	t.Helper()
	st, err := store.Open("sqlite", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	members := message.NewMembers(time.Minute)
	t.Cleanup(members.Stop)
	fetcher := media.NewFetcher(time.Second, 0)

	sess := loopback.New(42, "bot")
	sess.Groups = []chat.Group{{ID: 100, Name: "测试群", MemberCount: 2}}
	sess.Friends = []chat.Friend{{ID: 7, Nickname: "alice", Remark: "A"}}
	sess.Members[100] = []chat.Member{
		{GroupID: 100, ID: 42, Nickname: "bot", Permission: 2},
		{GroupID: 100, ID: 7, Nickname: "alice", Card: "小A", SpecialTitle: "头衔"},
	}

	holder := &chat.Holder{}
	if loggedIn {
		holder.Set(sess)
	}
	env := &Env{
		Sessions: holder,
		Store:    st,
		Messages: message.NewTranslator(st, fetcher, nil, members),
		Fetcher:  fetcher,
	}
	return &fixture{d: NewDispatcher(env), sess: sess, st: st, env: env}
}

func (f *fixture) call(action string, params map[string]any) onebot.ActionResult {
	return f.d.Dispatch(context.Background(), onebot.ActionRequest{Action: action, Params: params, Echo: "e"})
}

func textMessage(s string) []any {
	return []any{map[string]any{"type": "text", "data": map[string]any{"text": s}}}
}

func TestUnsupportedAction(t *testing.T) {
	f := newFixture(t, true)

	for _, name := range []string{"no_such_action", "_internal", "get.status.x"} {
		res := f.call(name, nil)
		assert.Equal(t, onebot.StatusFailed, res.Status, name)
		assert.Equal(t, onebot.RetUnsupportedAction, res.Retcode, name)
		assert.Equal(t, "e", res.Echo)
	}
}

func TestBadParamHasNoSideEffect(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("send_message", map[string]any{"detail_type": "group", "group_id": 100})
	assert.Equal(t, onebot.RetBadParam, res.Retcode)
	assert.Equal(t, map[string]any{"reason": "Key message not found."}, res.Data)
	assert.Empty(t, f.sess.SentMessages())

	res = f.call("send_message", map[string]any{"detail_type": "group", "message": textMessage("x")})
	assert.Equal(t, onebot.RetBadParam, res.Retcode)
	assert.Empty(t, f.sess.SentMessages())
}

func TestRequiresSession(t *testing.T) {
	f := newFixture(t, false)

	res := f.call("get_self_info", nil)
	assert.Equal(t, onebot.RetNotLoggedIn, res.Retcode)

	res = f.call("get_version", nil)
	assert.Equal(t, onebot.RetOK, res.Retcode)

	res = f.call("get_status", nil)
	require.Equal(t, onebot.RetOK, res.Retcode)
	assert.Equal(t, Status{}, res.Data)
}

func TestPanicBecomesInternalError(t *testing.T) {
	f := newFixture(t, true)
	register(f.d, "qq.explode", false, func(context.Context, *Call, *noParams) (any, error) {
		panic("boom")
	})
	register(f.d, "qq.broken", false, func(context.Context, *Call, *noParams) (any, error) {
		return nil, errors.New("disk full")
	})

	res := f.call("qq.explode", nil)
	assert.Equal(t, onebot.RetInternalHandlerError, res.Retcode)
	assert.Equal(t, "e", res.Echo)

	res = f.call("qq.broken", nil)
	assert.Equal(t, onebot.RetInternalHandlerError, res.Retcode)
	assert.Equal(t, map[string]any{"info": "disk full"}, res.Data)
}

func TestSupportedActions(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("get_supported_actions", nil)
	require.Equal(t, onebot.RetOK, res.Retcode)
	names := res.Data.([]string)
	assert.Contains(t, names, "send_message")
	assert.Contains(t, names, "qq.ban_group_member")
	assert.NotContains(t, names, "get_latest_events")
	assert.IsNonDecreasing(t, names)

	for _, name := range names {
		assert.NotEqual(t, onebot.RetUnsupportedAction, f.call(name, nil).Retcode, name)
	}
}

func TestNamespacedActionsMatchUnderscore(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("qq_set_group_admin", map[string]any{"group_id": 100, "user_id": 7})
	assert.Equal(t, onebot.RetOK, res.Retcode)
	assert.True(t, f.sess.IsAdmin(100, 7))

	res = f.call("qq.unset_group_admin", map[string]any{"group_id": 100, "user_id": 7})
	assert.Equal(t, onebot.RetOK, res.Retcode)
	assert.False(t, f.sess.IsAdmin(100, 7))
}

func TestSendGroupMessage(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("send_message", map[string]any{
		"detail_type": "group",
		"group_id":    "100",
		"message":     textMessage("hello"),
	})
	require.Equal(t, onebot.RetOK, res.Retcode, res.Message)
	sent := res.Data.(SentMessage)
	assert.NotZero(t, sent.Time)

	got := f.call("qq.get_message", map[string]any{"message_id": sent.MessageID})
	require.Equal(t, onebot.RetOK, got.Retcode)
	stored := got.Data.(StoredMessage)
	assert.Equal(t, int64(100), stored.GroupID)
	assert.Equal(t, int64(42), stored.SenderID)
	assert.Equal(t, onebot.Message{onebot.Text("hello")}, stored.Message)

	msgs := f.sess.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []chat.Element{chat.TextElement{Content: "hello"}}, msgs[0].Elements)

	res = f.call("delete_message", map[string]any{"message_id": sent.MessageID})
	assert.Equal(t, onebot.RetOK, res.Retcode)
	assert.True(t, f.sess.SentMessages()[0].Recalled)
}

func TestSentMentionKeepsNumericID(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("send_message", map[string]any{
		"detail_type": "group",
		"group_id":    json.Number("100"),
		"message": []any{
			map[string]any{"type": "mention", "data": map[string]any{"user_id": json.Number("7")}},
			map[string]any{"type": "text", "data": map[string]any{"text": " hi"}},
		},
	})
	require.Equal(t, onebot.RetOK, res.Retcode, res.Message)

	got := f.call("qq.get_message", map[string]any{"message_id": res.Data.(SentMessage).MessageID})
	require.Equal(t, onebot.RetOK, got.Retcode)
	assert.Equal(t, onebot.Message{onebot.Mention(7), onebot.Text(" hi")}, got.Data.(StoredMessage).Message)
}

func TestSendPrivateMessage(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("send_message", map[string]any{
		"detail_type": "private",
		"user_id":     7,
		"message":     textMessage("hi"),
	})
	require.Equal(t, onebot.RetOK, res.Retcode)
	id := res.Data.(SentMessage).MessageID

	m, err := f.st.GetMessage(id)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.UserID)
	assert.Zero(t, m.GroupID)

	res = f.call("delete_message", map[string]any{"message_id": id})
	assert.Equal(t, onebot.RetOK, res.Retcode)
}

func TestSendEmptyMessage(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("send_message", map[string]any{
		"detail_type": "group",
		"group_id":    100,
		"message":     []any{map[string]any{"type": "location", "data": map[string]any{}}},
	})
	assert.Equal(t, onebot.RetBadSegmentData, res.Retcode)
	assert.Empty(t, f.sess.SentMessages())
}

func TestSendErrorsMapToRetcodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{chat.ErrAtAllLimited, onebot.RetNoMentionTimes},
		{chat.ErrGroupMsgLimited, onebot.RetGroupMessageLimit},
		{chat.ErrSendRefused, onebot.RetCantSendMessage},
	}
	for _, x := range cases {
		f := newFixture(t, true)
		f.sess.FailNextSend(x.err)
		res := f.call("send_message", map[string]any{
			"detail_type": "group",
			"group_id":    100,
			"message":     textMessage("x"),
		})
		assert.Equal(t, x.code, res.Retcode, x.err.Error())
	}
}

func TestDeleteMissingMessage(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("delete_message", map[string]any{"message_id": "12345"})
	assert.Equal(t, onebot.RetMessageNotInDatabase, res.Retcode)

	res = f.call("delete_message", map[string]any{"message_id": "not-a-number"})
	assert.Equal(t, onebot.RetMessageNotInDatabase, res.Retcode)

	id, err := f.st.SaveMessage(&store.Message{Message: onebot.Message{onebot.Text("x")}, Seq: 9, GroupID: 100})
	require.NoError(t, err)
	res = f.call("delete_message", map[string]any{"message_id": id})
	assert.Equal(t, onebot.RetMessageNotInDatabase, res.Retcode)
}

func TestQueries(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("get_self_info", nil)
	assert.Equal(t, SelfInfo{UserID: 42, UserName: "bot"}, res.Data)

	res = f.call("get_user_info", map[string]any{"user_id": 7})
	assert.Equal(t, UserInfo{UserID: 7, UserName: "alice", UserRemark: "A"}, res.Data)

	res = f.call("get_user_info", map[string]any{"user_id": 8})
	assert.Equal(t, onebot.RetCantFindUser, res.Retcode)

	res = f.call("get_group_info", map[string]any{"group_id": 100})
	assert.Equal(t, GroupInfo{GroupID: 100, GroupName: "测试群", MemberCount: 2}, res.Data)

	res = f.call("get_group_info", map[string]any{"group_id": 101})
	assert.Equal(t, onebot.RetCantFindGroup, res.Retcode)

	res = f.call("get_group_list", nil)
	assert.Len(t, res.Data, 1)

	res = f.call("get_friend_list", nil)
	assert.Len(t, res.Data, 1)

	res = f.call("get_group_member_info", map[string]any{"group_id": 100, "user_id": 7})
	assert.Equal(t, MemberInfo{UserID: 7, UserName: "alice", UserDisplayname: "小A", SpecialTitle: "头衔"}, res.Data)

	res = f.call("get_group_member_info", map[string]any{"group_id": 100, "user_id": 8})
	assert.Equal(t, onebot.RetCantFindUser, res.Retcode)

	res = f.call("get_group_member_info", map[string]any{"group_id": 101, "user_id": 7})
	assert.Equal(t, onebot.RetCantFindGroup, res.Retcode)

	res = f.call("get_group_member_list", map[string]any{"group_id": 100})
	assert.Len(t, res.Data, 2)

	res = f.call("get_status", nil)
	assert.Equal(t, Status{Good: true, Online: true}, res.Data)

	res = f.call("get_version", nil)
	assert.Equal(t, onebot.Impl, res.Data.(VersionInfo).Impl)
}

func TestBanGroupMember(t *testing.T) {
	f := newFixture(t, true)

	res := f.call("qq.ban_group_member", map[string]any{"group_id": 100, "user_id": 7})
	require.Equal(t, onebot.RetOK, res.Retcode)
	d, ok := f.sess.Muted(100, 7)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, d)

	res = f.call("qq.ban_group_member", map[string]any{"group_id": 100, "user_id": 7, "duration": 0})
	require.Equal(t, onebot.RetOK, res.Retcode)
	d, _ = f.sess.Muted(100, 7)
	assert.Zero(t, d)
}

func TestUploadAndGetFile(t *testing.T) {
	f := newFixture(t, false)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	res := f.call("upload_file", map[string]any{"type": "path", "name": "a.txt", "path": path})
	require.Equal(t, onebot.RetOK, res.Retcode, res.Data)
	id := res.Data.(FileID).FileID

	res = f.call("get_file", map[string]any{"file_id": id, "type": "path"})
	require.Equal(t, onebot.RetOK, res.Retcode)
	assert.Equal(t, path, res.Data.(FileInfo).Path)

	res = f.call("get_file", map[string]any{"file_id": id, "type": "data"})
	require.Equal(t, onebot.RetOK, res.Retcode)
	assert.Equal(t, []byte("content"), res.Data.(FileInfo).Data)

	res = f.call("get_file", map[string]any{"file_id": id, "type": "url"})
	assert.Equal(t, onebot.RetFileNotInDatabase, res.Retcode)

	res = f.call("upload_file", map[string]any{"type": "path", "name": "b", "path": filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, onebot.RetBadParam, res.Retcode)
	assert.Equal(t, map[string]any{"reason": "file not found"}, res.Data)

	res = f.call("upload_file", map[string]any{"type": "data", "name": "c", "data": "aGVsbG8="})
	require.Equal(t, onebot.RetOK, res.Retcode)
	res = f.call("get_file", map[string]any{"file_id": res.Data.(FileID).FileID, "type": "data"})
	require.Equal(t, onebot.RetOK, res.Retcode)
	assert.Equal(t, []byte("hello"), res.Data.(FileInfo).Data)
	assert.NotEmpty(t, res.Data.(FileInfo).SHA256)

	res = f.call("get_file", map[string]any{"file_id": "00000000-0000-0000-0000-000000000000", "type": "data"})
	assert.Equal(t, onebot.RetFileNotInDatabase, res.Retcode)
}

type staticEvents []onebot.Event

func (s staticEvents) Latest(context.Context, int, time.Duration) []onebot.Event { return s }

func TestLatestEventsRegisteredWithSource(t *testing.T) {
	f := newFixture(t, true)
	f.env.Events = staticEvents{&onebot.HeartbeatEvent{Base: onebot.NewBase(42, onebot.TypeMeta, onebot.DetailHeartbeat, ""), Interval: 3000}}
	d := NewDispatcher(f.env)

	assert.Contains(t, d.Supported(), "get_latest_events")
	res := d.Dispatch(context.Background(), onebot.ActionRequest{Action: "get_latest_events"})
	require.Equal(t, onebot.RetOK, res.Retcode)
	assert.Len(t, res.Data, 1)
}
