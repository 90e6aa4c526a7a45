// Package store 持久化消息、文件与事件
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"

	"OneBotCAI/internal/codec"
	"OneBotCAI/internal/onebot"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("存储已关闭")
)

var eventPrefix = []byte("event:")

// backend 底层键值存储
type backend interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(keys [][]byte) error
	Scan(prefix []byte, fn func(key, value []byte) bool) error
	Close() error
}

// Store 进程内唯一的持久化存储
// 文件以 UUID 原始字节为键，消息以编码后的十进制 ID 为键，事件以 "event:" 加 ID 为键
type Store struct {
	kv    backend
	cache *lru.Cache[string, *Message] // 消息读缓存

	mu     sync.RWMutex
	closed bool
}

// Open 打开存储
// 参数:
//   - driver: 存储引擎，pebble 或 sqlite
//   - dir: 数据目录
//
// 返回:
//   - *Store: 存储实例
//   - error: 打开失败
func Open(driver, dir string) (*Store, error) {
	var (
		kv  backend
		err error
	)
	switch driver {
	case "", "pebble":
		kv, err = openPebble(dir)
	case "sqlite":
		kv, err = openSQLite(dir)
	default:
		return nil, fmt.Errorf("未知的存储引擎: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("打开存储 %s: %w", dir, err)
	}
	cache, _ := lru.New[string, *Message](1024)
	return &Store{kv: kv, cache: cache}, nil
}

// Close 关闭存储，可重复调用
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	return s.kv.Close()
}

// with 在读锁内执行操作，存储关闭后返回 ErrClosed
func (s *Store) with(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn()
}

func (s *Store) put(key []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return s.with(func() error { return s.kv.Set(key, data) })
}

func (s *Store) get(key []byte, v any) error {
	var data []byte
	err := s.with(func() error {
		var err error
		data, err = s.kv.Get(key)
		return err
	})
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, v)
}

// SaveMessage 保存消息记录
// 消息段按强类型重新构造后写入，调用方持有的记录不会被修改
// 返回:
//   - string: 消息 ID
//   - error: 记录不合法或写入失败
func (s *Store) SaveMessage(m *Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	rec := m.clone()
	id := codec.Encode(rec.Seq)
	if err := s.put([]byte(id), rec); err != nil {
		return "", fmt.Errorf("保存消息 %s: %w", id, err)
	}
	s.cache.Add(id, rec)
	return id, nil
}

// GetMessage 读取消息记录，每次返回独立的副本
func (s *Store) GetMessage(id string) (*Message, error) {
	if !codec.Valid(id) {
		return nil, ErrNotFound
	}
	if err := s.with(func() error { return nil }); err != nil {
		return nil, err
	}
	if m, ok := s.cache.Get(id); ok {
		return m.clone(), nil
	}
	var m Message
	if err := s.get([]byte(id), &m); err != nil {
		return nil, err
	}
	rec := m.clone()
	s.cache.Add(id, rec)
	return rec.clone(), nil
}

// SaveFile 保存文件记录，内联数据会同时计算 SHA256
// 返回:
//   - string: 文件 ID（UUID）
//   - error: 记录不合法或写入失败
func (s *Store) SaveFile(f *File) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	if f.Type == FileData && f.SHA256 == "" {
		sum := sha256.Sum256(f.Data)
		f.SHA256 = hex.EncodeToString(sum[:])
	}
	id := uuid.New()
	if err := s.put(id[:], f); err != nil {
		return "", fmt.Errorf("保存文件 %s: %w", id, err)
	}
	return id.String(), nil
}

// GetFile 读取文件记录
func (s *Store) GetFile(id string) (*File, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var f File
	if err := s.get(u[:], &f); err != nil {
		return nil, err
	}
	f.rehydrate()
	return &f, nil
}

// SaveEvent 保存事件
// 携带原生序号的消息事件以消息 ID 为键，其余事件以事件 ID 为键
// 返回:
//   - string: 事件的查询 ID
//   - error: 写入失败
func (s *Store) SaveEvent(ev onebot.Event) (string, error) {
	h := ev.Header()
	rec := eventRecord{Kind: h.Kind(), Time: int64(h.Time)}
	id := h.ID
	if r, ok := ev.(onebot.NativeRefer); ok {
		rec.Seq, rec.Rand = r.NativeRef()
		id = codec.Encode(rec.Seq)
	}
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return "", err
	}
	rec.Payload = payload
	if err := s.put(eventKey(id), &rec); err != nil {
		return "", fmt.Errorf("保存事件 %s: %w", id, err)
	}
	return id, nil
}

// GetEvent 读取事件并还原为具体类型
func (s *Store) GetEvent(id string) (onebot.Event, error) {
	var rec eventRecord
	if err := s.get(eventKey(id), &rec); err != nil {
		return nil, err
	}
	ev, ok := onebot.NewEventOf(rec.Kind)
	if !ok {
		return nil, fmt.Errorf("未知的事件类型: %s", rec.Kind)
	}
	if err := msgpack.Unmarshal(rec.Payload, ev); err != nil {
		return nil, err
	}
	if r, ok := ev.(onebot.NativeRefer); ok {
		r.SetNativeRef(rec.Seq, rec.Rand)
	}
	return ev, nil
}

// Prune 删除早于指定时间的消息与事件，文件记录不受影响
// 返回:
//   - int: 删除的记录数
//   - error: 扫描或删除失败
func (s *Store) Prune(before time.Time) (int, error) {
	limit := before.Unix()
	var (
		stale   [][]byte
		dropped []string
	)
	err := s.with(func() error {
		return s.kv.Scan(nil, func(key, value []byte) bool {
			switch {
			case bytes.HasPrefix(key, eventPrefix):
				var rec eventRecord
				if msgpack.Unmarshal(value, &rec) == nil && rec.Time < limit {
					stale = append(stale, bytes.Clone(key))
				}
			case codec.Valid(string(key)):
				var m Message
				if msgpack.Unmarshal(value, &m) == nil && m.Time != 0 && m.Time < limit {
					stale = append(stale, bytes.Clone(key))
					dropped = append(dropped, string(key))
				}
			}
			return true
		})
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}
	if err := s.with(func() error { return s.kv.Delete(stale) }); err != nil {
		return 0, err
	}
	for _, id := range dropped {
		s.cache.Remove(id)
	}
	slog.Debug("清理过期记录", "count", len(stale), "before", before.Format(time.DateTime))
	return len(stale), nil
}

func eventKey(id string) []byte {
	return append(bytes.Clone(eventPrefix), id...)
}
