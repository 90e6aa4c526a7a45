package store

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OneBotCAI/internal/codec"
	"OneBotCAI/internal/onebot"
)

func openBoth(t *testing.T) map[string]*Store {
	t.Helper()
	out := make(map[string]*Store)
	for _, driver := range []string{"pebble", "sqlite"} {
		s, err := Open(driver, t.TempDir())
		require.NoError(t, err, driver)
		t.Cleanup(func() { s.Close() })
		out[driver] = s
	}
	return out
}

func TestMessageRoundTrip(t *testing.T) {
	for driver, s := range openBoth(t) {
		t.Run(driver, func(t *testing.T) {
			m := &Message{Message: onebot.Message{onebot.Text("hi")}, Seq: 7, Rand: 42, Time: 1700000000, GroupID: 1, SenderID: 2}
			id, err := s.SaveMessage(m)
			require.NoError(t, err)
			assert.Equal(t, codec.Encode(7), id)

			s.cache.Purge()
			got, err := s.GetMessage(id)
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.GroupID)
			assert.Equal(t, int64(42), got.Rand)
			assert.Equal(t, "hi", got.Message[0].Data["text"])
			assert.True(t, got.Recallable())

			_, err = s.GetMessage(codec.Encode(8))
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetMessage("not-an-id")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMessageNumbersSurviveReopen(t *testing.T) {
	for _, driver := range []string{"pebble", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			dir := t.TempDir()
			s, err := Open(driver, dir)
			require.NoError(t, err)

			sent := onebot.Message{
				{Type: onebot.SegMention, Data: map[string]any{"user_id": json.Number("7")}},
				{Type: onebot.SegFace, Data: map[string]any{"id": json.Number("14")}},
				onebot.Text("hi"),
			}
			want := onebot.Message{onebot.Mention(7), onebot.Face(14), onebot.Text("hi")}

			id, err := s.SaveMessage(&Message{Message: sent, Seq: 9, GroupID: 1})
			require.NoError(t, err)
			cached, err := s.GetMessage(id)
			require.NoError(t, err)
			assert.Equal(t, want, cached.Message)
			assert.Equal(t, json.Number("7"), sent[0].Data["user_id"])

			require.NoError(t, s.Close())
			s, err = Open(driver, dir)
			require.NoError(t, err)
			defer s.Close()

			reopened, err := s.GetMessage(id)
			require.NoError(t, err)
			assert.Equal(t, want, reopened.Message)
			assert.Equal(t, cached, reopened)
		})
	}
}

func TestGetMessageReturnsCopy(t *testing.T) {
	s, err := Open("pebble", t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.SaveMessage(&Message{Message: onebot.Message{onebot.Text("orig")}, Seq: 3, UserID: 5})
	require.NoError(t, err)

	got, err := s.GetMessage(id)
	require.NoError(t, err)
	got.Message[0].Data["text"] = "changed"
	got.Message = append(got.Message, onebot.Text("extra"))
	got.UserID = 6

	again, err := s.GetMessage(id)
	require.NoError(t, err)
	assert.Equal(t, onebot.Message{onebot.Text("orig")}, again.Message)
	assert.Equal(t, int64(5), again.UserID)
}

func TestMessageValidate(t *testing.T) {
	s, err := Open("pebble", t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SaveMessage(&Message{Seq: 1})
	assert.Error(t, err)
	_, err = s.SaveMessage(&Message{Seq: 1, GroupID: 1, UserID: 2})
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	for driver, s := range openBoth(t) {
		t.Run(driver, func(t *testing.T) {
			id, err := s.SaveFile(&File{Name: "a.png", Type: FileData, Data: []byte("png")})
			require.NoError(t, err)
			got, err := s.GetFile(id)
			require.NoError(t, err)
			assert.Equal(t, []byte("png"), got.Data)
			assert.Len(t, got.SHA256, 64)

			id, err = s.SaveFile(&File{Name: "b", Type: FilePath, Path: "/tmp/../tmp/b"})
			require.NoError(t, err)
			got, err = s.GetFile(id)
			require.NoError(t, err)
			assert.Equal(t, "/tmp/b", got.Path)

			id, err = s.SaveFile(&File{Name: "c", Type: FileURL, URL: "https://example.com/c", Headers: map[string]string{"Referer": "x"}})
			require.NoError(t, err)
			got, err = s.GetFile(id)
			require.NoError(t, err)
			assert.Equal(t, "x", got.Headers["Referer"])

			_, err = s.SaveFile(&File{Name: "d", Type: FileURL})
			assert.Error(t, err)
			_, err = s.GetFile("00000000-0000-0000-0000-000000000000")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	for driver, s := range openBoth(t) {
		t.Run(driver, func(t *testing.T) {
			ev := &onebot.GroupMessageEvent{
				Base:    onebot.NewBase(10, onebot.TypeMessage, onebot.DetailGroup, ""),
				Message: onebot.Message{onebot.Text("hi")},
				GroupID: 3,
				UserID:  4,
			}
			ev.SetNativeRef(9, 77)
			id, err := s.SaveEvent(ev)
			require.NoError(t, err)
			assert.Equal(t, codec.Encode(9), id)

			got, err := s.GetEvent(id)
			require.NoError(t, err)
			gm, ok := got.(*onebot.GroupMessageEvent)
			require.True(t, ok)
			assert.Equal(t, int64(3), gm.GroupID)
			seq, rnd := gm.NativeRef()
			assert.Equal(t, int64(9), seq)
			assert.Equal(t, int64(77), rnd)

			notice := &onebot.GroupMemberBanEvent{
				Base:     onebot.NewBase(10, onebot.TypeNotice, onebot.DetailGroupMemberBan, ""),
				GroupID:  1,
				Duration: 60,
			}
			id, err = s.SaveEvent(notice)
			require.NoError(t, err)
			assert.Equal(t, notice.ID, id)
			got, err = s.GetEvent(id)
			require.NoError(t, err)
			assert.Equal(t, int64(60), got.(*onebot.GroupMemberBanEvent).Duration)
		})
	}
}

func TestPrune(t *testing.T) {
	for driver, s := range openBoth(t) {
		t.Run(driver, func(t *testing.T) {
			old := time.Now().Add(-48 * time.Hour).Unix()
			_, err := s.SaveMessage(&Message{Seq: 1, Time: old, UserID: 5})
			require.NoError(t, err)
			keep, err := s.SaveMessage(&Message{Seq: 2, Time: time.Now().Unix(), UserID: 5})
			require.NoError(t, err)
			fid, err := s.SaveFile(&File{Name: "x", Type: FileURL, URL: "http://x"})
			require.NoError(t, err)

			n, err := s.Prune(time.Now().Add(-24 * time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = s.GetMessage(codec.Encode(1))
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetMessage(keep)
			assert.NoError(t, err)
			_, err = s.GetFile(fid)
			assert.NoError(t, err)
		})
	}
}

func TestConcurrentWrites(t *testing.T) {
	for driver, s := range openBoth(t) {
		t.Run(driver, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 1; i <= 50; i++ {
				wg.Add(1)
				go func(seq int64) {
					defer wg.Done()
					_, err := s.SaveMessage(&Message{Seq: seq, GroupID: 1, Rand: seq})
					assert.NoError(t, err)
				}(int64(i))
			}
			wg.Wait()
			for i := int64(1); i <= 50; i++ {
				_, err := s.GetMessage(codec.Encode(i))
				assert.NoError(t, err)
			}
		})
	}
}

func TestClose(t *testing.T) {
	for _, driver := range []string{"pebble", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			s, err := Open(driver, t.TempDir())
			require.NoError(t, err)
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())

			_, err = s.SaveMessage(&Message{Seq: 1, GroupID: 1})
			assert.ErrorIs(t, err, ErrClosed)
			_, err = s.GetMessage("2")
			assert.ErrorIs(t, err, ErrClosed)
			_, err = s.GetFile("00000000-0000-0000-0000-000000000000")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("leveldb", t.TempDir())
	assert.Error(t, err)
}
