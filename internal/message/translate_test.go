package message

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
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
)

type fakeTranscoder struct{}

func (fakeTranscoder) Voice(_ context.Context, data []byte) ([]byte, error) {
	return append([]byte("#!SILK"), data...), nil
}

func (fakeTranscoder) Video(_ context.Context, data []byte) ([]byte, []byte, error) {
	return data, []byte("thumb"), nil
}

func newTranslator(t *testing.T) (*Translator, *store.Store) {
	t.Helper()
	st, err := store.Open("pebble", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	members := NewMembers(time.Minute)
	t.Cleanup(members.Stop)
	return NewTranslator(st, media.NewFetcher(time.Second, 0), fakeTranscoder{}, members), st
}

func TestRoundTrip(t *testing.T) {
	tr, _ := newTranslator(t)
	ctx := context.Background()

	cases := []onebot.Message{
		{onebot.Text("hi")},
		{onebot.Mention(10001), onebot.Text(" hello")},
		{onebot.MentionAll(), onebot.Text("通知"), onebot.Mention(3)},
	}
	for _, x := range cases {
		want := tr.ToSegments(mustNative(t, tr, x))
		elems, err := tr.ToNative(ctx, nil, 0, want, false)
		require.NoError(t, err)
		assert.Equal(t, want, tr.ToSegments(elems))
		assert.Equal(t, x, want)
	}
}

func mustNative(t *testing.T, tr *Translator, msg onebot.Message) []chat.Element {
	t.Helper()
	elems, err := tr.ToNative(context.Background(), nil, 0, msg, false)
	require.NoError(t, err)
	return elems
}

func TestToNativeDropsBadSegments(t *testing.T) {
	tr, _ := newTranslator(t)
	msg := onebot.Message{
		onebot.Text("a"),
		{Type: "location", Data: map[string]any{}},
		onebot.Reply(codec.Encode(404), 1),
		onebot.Text("b"),
	}
	elems, err := tr.ToNative(context.Background(), nil, 0, msg, false)
	require.NoError(t, err)
	assert.Equal(t, []chat.Element{chat.TextElement{Content: "a"}, chat.TextElement{Content: "b"}}, elems)
}

func TestToNativeEmpty(t *testing.T) {
	tr, _ := newTranslator(t)
	_, err := tr.ToNative(context.Background(), nil, 0, onebot.Message{onebot.Reply("2", 1)}, false)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = tr.ToNative(context.Background(), nil, 0, nil, false)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestReplyResolvesStoredMessage(t *testing.T) {
	tr, st := newTranslator(t)
	id, err := st.SaveMessage(&store.Message{
		Message:  onebot.Message{onebot.Reply("0", 1), onebot.Text("orig")},
		Seq:      5,
		Rand:     6,
		Time:     1700000000,
		GroupID:  1,
		SenderID: 2,
	})
	require.NoError(t, err)

	elems, err := tr.ToNative(context.Background(), nil, 1, onebot.Message{onebot.Reply(id, 2), onebot.Text("re")}, false)
	require.NoError(t, err)
	require.Len(t, elems, 2)
	reply, ok := elems[0].(chat.ReplyElement)
	require.True(t, ok)
	assert.Equal(t, int64(5), reply.Seq)
	assert.Equal(t, int64(2), reply.Sender)
	assert.Equal(t, []chat.Element{chat.TextElement{Content: "orig"}}, reply.Message)

	incomplete, err := st.SaveMessage(&store.Message{Message: onebot.Message{onebot.Text("x")}, Seq: 8, GroupID: 1})
	require.NoError(t, err)
	_, err = tr.ToNative(context.Background(), nil, 1, onebot.Message{onebot.Reply(incomplete, 2)}, false)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestMediaUpload(t *testing.T) {
	tr, st := newTranslator(t)
	sess := loopback.New(10000, "bot")

	img, err := st.SaveFile(&store.File{Name: "a.png", Type: store.FileData, Data: []byte("png")})
	require.NoError(t, err)
	voice, err := st.SaveFile(&store.File{Name: "a.mp3", Type: store.FileData, Data: []byte("mp3")})
	require.NoError(t, err)
	video, err := st.SaveFile(&store.File{Name: "a.mkv", Type: store.FileData, Data: []byte("mkv")})
	require.NoError(t, err)

	msg := onebot.Message{
		onebot.File(onebot.SegImage, img),
		onebot.File(onebot.SegVoice, voice),
		onebot.File(onebot.SegVideo, video),
		onebot.File(onebot.SegImage, "00000000-0000-0000-0000-000000000000"),
	}
	elems, err := tr.ToNative(context.Background(), sess, 1, msg, false)
	require.NoError(t, err)
	require.Len(t, elems, 3)
	assert.IsType(t, chat.ImageElement{}, elems[0])
	assert.IsType(t, chat.VoiceElement{}, elems[1])
	assert.IsType(t, chat.VideoElement{}, elems[2])

	uploads := sess.Uploads()
	require.Len(t, uploads, 3)
	assert.Equal(t, 9, uploads[1].Size)

	_, err = tr.ToNative(context.Background(), nil, 1, msg[:1], false)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestForwardUpload(t *testing.T) {
	tr, _ := newTranslator(t)
	sess := loopback.New(10000, "bot")
	seg := onebot.Forward(0, "", []onebot.ForwardNode{
		{UserID: 1, Nickname: "a", Time: 1, Message: onebot.Message{onebot.Text("x")}},
		{UserID: 2, Nickname: "b", Time: 2, Message: onebot.Message{}},
	})
	elems, err := tr.ToNative(context.Background(), sess, 7, onebot.Message{seg}, false)
	require.NoError(t, err)
	fwd := elems[0].(chat.ForwardElement)
	assert.Equal(t, int64(7), fwd.GroupID)
	assert.Len(t, fwd.Nodes, 1)
}

func TestToSegmentsStoresMedia(t *testing.T) {
	tr, st := newTranslator(t)
	msg := tr.ToSegments([]chat.Element{
		chat.ImageElement{Filename: "a.jpg", URL: "https://cdn/a.jpg"},
		chat.VoiceElement{Filename: "v.amr"},
		chat.PokeElement{ID: 2},
		chat.ReplyElement{Seq: 3, Sender: 4},
		chat.ForwardElement{Brief: "记录", Nodes: []chat.ForwardNode{{FromUin: 1, Message: []chat.Element{chat.TextElement{Content: "x"}}}}},
	})
	require.Len(t, msg, 4)
	assert.Equal(t, onebot.SegImage, msg[0].Type)
	f, err := st.GetFile(msg[0].Data["file_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, store.FileURL, f.Type)
	assert.Equal(t, "https://cdn/a.jpg", f.URL)

	assert.Equal(t, onebot.Poke(2, "比心"), msg[1])
	assert.Equal(t, onebot.Reply(codec.Encode(3), 4), msg[2])
	assert.Equal(t, onebot.SegForward, msg[3].Type)
}

func TestToPlainText(t *testing.T) {
	tr, _ := newTranslator(t)
	sess := loopback.New(10000, "bot")
	sess.Members[1] = []chat.Member{{GroupID: 1, ID: 2, Nickname: "nick", Card: "card"}}

	msg := onebot.Message{
		onebot.Text("hi "),
		onebot.Mention(2),
		onebot.Mention(3),
		onebot.MentionAll(),
		onebot.File(onebot.SegImage, "x"),
		onebot.File(onebot.SegAudio, "x"),
		onebot.File(onebot.SegVideo, "x"),
		onebot.Face(1),
		onebot.Poke(0, ""),
		onebot.Forward(0, "", nil),
	}
	assert.Equal(t, "hi @card@3@全体成员[图片][语音][视频][表情]戳一戳[聊天记录]", tr.ToPlainText(context.Background(), sess, msg, 1))
	assert.Equal(t, "@2", tr.ToPlainText(context.Background(), nil, onebot.Message{onebot.Mention(2)}, 1))
}
