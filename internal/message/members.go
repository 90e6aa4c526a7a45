package message

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"OneBotCAI/internal/chat"
)

// Members 群成员列表缓存
// 同一群的并发查询只会触发一次协议请求
type Members struct {
	cache *ttlcache.Cache[int64, []chat.Member]
	sf    singleflight.Group
}

// NewMembers 创建群成员缓存
// 参数:
//   - ttl: 缓存有效期
func NewMembers(ttl time.Duration) *Members {
	cache := ttlcache.New(
		ttlcache.WithTTL[int64, []chat.Member](ttl),
		ttlcache.WithDisableTouchOnHit[int64, []chat.Member](),
	)
	go cache.Start()
	return &Members{cache: cache}
}

// Stop 停止过期清理协程
func (m *Members) Stop() {
	m.cache.Stop()
}

// List 获取群成员列表
// 参数:
//   - ctx: 上下文
//   - sess: 当前会话
//   - groupID: 群号
//   - fresh: 是否跳过缓存
func (m *Members) List(ctx context.Context, sess chat.Session, groupID int64, fresh bool) ([]chat.Member, error) {
	if !fresh {
		if item := m.cache.Get(groupID); item != nil {
			return item.Value(), nil
		}
	}
	v, err, _ := m.sf.Do(strconv.FormatInt(groupID, 10), func() (any, error) {
		list, err := sess.GetGroupMemberList(ctx, groupID)
		if err != nil {
			return nil, err
		}
		m.cache.Set(groupID, list, ttlcache.DefaultTTL)
		return list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("获取群 %d 成员列表: %w", groupID, err)
	}
	return v.([]chat.Member), nil
}

// Lookup 查找群成员
// 返回:
//   - *chat.Member: 成员信息
//   - error: 获取列表失败，或成员不存在时返回 chat.ErrNotFound
func (m *Members) Lookup(ctx context.Context, sess chat.Session, groupID, userID int64) (*chat.Member, error) {
	list, err := m.List(ctx, sess, groupID, false)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == userID {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("群 %d 成员 %d: %w", groupID, userID, chat.ErrNotFound)
}

// Invalidate 使某个群的缓存失效
func (m *Members) Invalidate(groupID int64) {
	m.cache.Delete(groupID)
}
