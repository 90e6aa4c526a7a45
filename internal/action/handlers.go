package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/onebot"
	"OneBotCAI/internal/store"
)

type noParams struct{}

type groupParams struct {
	GroupID int64 `json:"group_id"`
}

type userParams struct {
	UserID int64 `json:"user_id"`
}

type memberParams struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
}

type messageIDParams struct {
	MessageID string `json:"message_id"`
}

type sendParams struct {
	DetailType string         `json:"detail_type"`
	GroupID    int64          `json:"group_id,omitempty"`
	UserID     int64          `json:"user_id,omitempty"`
	Message    onebot.Message `json:"message"`
}

type getFileParams struct {
	FileID string `json:"file_id"`
	Type   string `json:"type"`
}

type uploadParams struct {
	Type    string            `json:"type"`
	Name    string            `json:"name"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Path    string            `json:"path,omitempty"`
	Data    []byte            `json:"data,omitempty"`
	SHA256  string            `json:"sha256,omitempty"`
}

type banParams struct {
	GroupID  int64  `json:"group_id"`
	UserID   int64  `json:"user_id"`
	Duration *int64 `json:"duration,omitempty"` // 秒，缺省 600，0 表示解除禁言
}

type latestEventsParams struct {
	Limit   int   `json:"limit,omitempty"`
	Timeout int64 `json:"timeout,omitempty"` // 秒
}

// registerAll 建立动作注册表
func registerAll(d *Dispatcher) {
	register(d, "get_self_info", true, getSelfInfo)
	register(d, "get_user_info", true, getUserInfo)
	register(d, "get_friend_list", true, getFriendList)
	register(d, "get_group_info", true, getGroupInfo)
	register(d, "get_group_list", true, getGroupList)
	register(d, "get_group_member_info", true, getGroupMemberInfo)
	register(d, "get_group_member_list", true, getGroupMemberList)
	register(d, "send_message", true, sendMessage)
	register(d, "delete_message", true, deleteMessage)
	register(d, "qq.get_message", false, getMessage)
	register(d, "qq.get_event", false, getEvent)
	register(d, "get_file", false, getFile)
	register(d, "upload_file", false, uploadFile)
	register(d, "qq.ban_group_member", true, banGroupMember)
	register(d, "qq.set_group_admin", true, setGroupAdmin)
	register(d, "qq.unset_group_admin", true, unsetGroupAdmin)
	register(d, "get_status", false, getStatus)
	register(d, "get_version", false, getVersion)
	if d.env.Events != nil {
		register(d, "get_latest_events", false, getLatestEvents)
	}
	register(d, "get_supported_actions", false, func(context.Context, *Call, *noParams) (any, error) {
		return d.Supported(), nil
	})
}

func getSelfInfo(_ context.Context, c *Call, _ *noParams) (any, error) {
	return SelfInfo{UserID: c.Session.UIN(), UserName: c.Session.Nickname()}, nil
}

func getUserInfo(ctx context.Context, c *Call, p *userParams) (any, error) {
	friends, err := c.Session.GetFriendList(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range friends {
		if f.ID == p.UserID {
			return userInfo(f), nil
		}
	}
	return nil, onebot.Fail(onebot.RetCantFindUser, fmt.Errorf("用户 %d", p.UserID))
}

func getFriendList(ctx context.Context, c *Call, _ *noParams) (any, error) {
	friends, err := c.Session.GetFriendList(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserInfo, 0, len(friends))
	for _, f := range friends {
		out = append(out, userInfo(f))
	}
	return out, nil
}

func userInfo(f chat.Friend) UserInfo {
	return UserInfo{UserID: f.ID, UserName: f.Nickname, UserRemark: f.Remark}
}

func getGroupInfo(ctx context.Context, c *Call, p *groupParams) (any, error) {
	groups, err := c.Session.GetGroupList(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.ID == p.GroupID {
			return groupInfo(g), nil
		}
	}
	return nil, onebot.Fail(onebot.RetCantFindGroup, fmt.Errorf("群 %d", p.GroupID))
}

func getGroupList(ctx context.Context, c *Call, _ *noParams) (any, error) {
	groups, err := c.Session.GetGroupList(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupInfo(g))
	}
	return out, nil
}

func groupInfo(g chat.Group) GroupInfo {
	return GroupInfo{GroupID: g.ID, GroupName: g.Name, MemberCount: g.MemberCount}
}

func getGroupMemberInfo(ctx context.Context, c *Call, p *memberParams) (any, error) {
	list, err := c.Messages.Members().List(ctx, c.Session, p.GroupID, false)
	if err != nil {
		return nil, onebot.Fail(onebot.RetCantFindGroup, err)
	}
	for _, m := range list {
		if m.ID == p.UserID {
			return memberInfo(m), nil
		}
	}
	return nil, onebot.Fail(onebot.RetCantFindUser, fmt.Errorf("群 %d 成员 %d", p.GroupID, p.UserID))
}

func getGroupMemberList(ctx context.Context, c *Call, p *groupParams) (any, error) {
	list, err := c.Messages.Members().List(ctx, c.Session, p.GroupID, true)
	if err != nil {
		return nil, onebot.Fail(onebot.RetCantFindGroup, err)
	}
	out := make([]MemberInfo, 0, len(list))
	for _, m := range list {
		out = append(out, memberInfo(m))
	}
	return out, nil
}

func memberInfo(m chat.Member) MemberInfo {
	return MemberInfo{
		UserID:          m.ID,
		UserName:        m.Nickname,
		UserDisplayname: m.Card,
		SpecialTitle:    m.SpecialTitle,
		Permission:      m.Permission,
	}
}

func sendMessage(ctx context.Context, c *Call, p *sendParams) (any, error) {
	rec := &store.Message{Message: p.Message, SenderID: c.Session.UIN()}
	switch p.DetailType {
	case onebot.DetailGroup:
		if p.GroupID == 0 {
			return nil, onebot.FailReason(onebot.RetBadParam, "Key group_id not found.")
		}
		rec.GroupID = p.GroupID
	case onebot.DetailPrivate:
		if p.UserID == 0 {
			return nil, onebot.FailReason(onebot.RetBadParam, "Key user_id not found.")
		}
		rec.UserID = p.UserID
	default:
		return nil, onebot.FailReason(onebot.RetBadParam, fmt.Sprintf("不支持的 detail_type: %s", p.DetailType))
	}

	elems, err := c.Messages.ToNative(ctx, c.Session, rec.GroupID, p.Message, false)
	if err != nil {
		return nil, onebot.Fail(onebot.RetBadSegmentData, err)
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var receipt chat.Receipt
	if rec.GroupID != 0 {
		receipt, err = c.Session.SendGroupMessage(ctx, rec.GroupID, elems)
	} else {
		receipt, err = c.Session.SendPrivateMessage(ctx, rec.UserID, elems)
	}
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrEmptyMessage):
		return nil, onebot.Fail(onebot.RetBadSegmentData, err)
	case errors.Is(err, chat.ErrAtAllLimited):
		return nil, onebot.Fail(onebot.RetNoMentionTimes, err)
	case errors.Is(err, chat.ErrGroupMsgLimited):
		return nil, onebot.Fail(onebot.RetGroupMessageLimit, err)
	default:
		return nil, onebot.Fail(onebot.RetCantSendMessage, err)
	}

	rec.Seq, rec.Rand, rec.Time = receipt.Seq, receipt.Rand, receipt.Time
	if rec.Time == 0 {
		rec.Time = time.Now().Unix()
	}
	id, err := c.Store.SaveMessage(rec)
	if err != nil {
		return nil, err
	}
	return SentMessage{MessageID: id, Time: rec.Time}, nil
}

func deleteMessage(ctx context.Context, c *Call, p *messageIDParams) (any, error) {
	m, err := c.Store.GetMessage(p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, onebot.Fail(onebot.RetMessageNotInDatabase, err)
	}
	if err != nil {
		return nil, err
	}
	if !m.Recallable() {
		return nil, onebot.Fail(onebot.RetMessageNotInDatabase, errors.New("消息记录不完整"))
	}

	if m.GroupID != 0 {
		err = c.Session.RecallGroupMessage(ctx, m.GroupID, m.Seq, m.Rand)
	} else {
		err = c.Session.RecallPrivateMessage(ctx, m.UserID, m.Seq, m.Rand, m.Time)
	}
	if err != nil {
		return nil, onebot.Fail(onebot.RetPermissionDenied, err)
	}
	return nil, nil
}

func getMessage(_ context.Context, c *Call, p *messageIDParams) (any, error) {
	m, err := c.Store.GetMessage(p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, onebot.Fail(onebot.RetMessageNotInDatabase, err)
	}
	if err != nil {
		return nil, err
	}
	return StoredMessage{
		MessageID: p.MessageID,
		Message:   m.Message,
		Time:      m.Time,
		GroupID:   m.GroupID,
		UserID:    m.UserID,
		SenderID:  m.SenderID,
	}, nil
}

func getEvent(_ context.Context, c *Call, p *messageIDParams) (any, error) {
	ev, err := c.Store.GetEvent(p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, onebot.Fail(onebot.RetMessageNotInDatabase, err)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func getFile(ctx context.Context, c *Call, p *getFileParams) (any, error) {
	f, err := c.Store.GetFile(p.FileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, onebot.Fail(onebot.RetFileNotInDatabase, err)
	}
	if err != nil {
		return nil, err
	}

	info := FileInfo{Name: f.Name, SHA256: f.SHA256}
	switch {
	case p.Type == string(store.FileData):
		data, err := c.Fetcher.Fetch(ctx, f)
		if err != nil {
			return nil, onebot.Fail(onebot.RetFileNotInDatabase, err)
		}
		info.Data = data
	case p.Type == string(f.Type) && f.Type == store.FileURL:
		info.URL, info.Headers = f.URL, f.Headers
	case p.Type == string(f.Type) && f.Type == store.FilePath:
		info.Path = f.Path
	default:
		return nil, onebot.Fail(onebot.RetFileNotInDatabase, fmt.Errorf("文件 %s 不能以 %s 形式获取", p.FileID, p.Type))
	}
	return info, nil
}

func uploadFile(_ context.Context, c *Call, p *uploadParams) (any, error) {
	f := &store.File{Name: p.Name, Type: store.FileKind(p.Type), SHA256: p.SHA256}
	switch f.Type {
	case store.FileURL:
		f.URL, f.Headers = p.URL, p.Headers
	case store.FilePath:
		if _, err := os.Stat(p.Path); err != nil {
			return nil, onebot.FailReason(onebot.RetBadParam, "file not found")
		}
		f.Path = p.Path
	case store.FileData:
		f.Data = p.Data
	default:
		return nil, onebot.FailReason(onebot.RetBadParam, fmt.Sprintf("不支持的文件类型: %s", p.Type))
	}
	if err := f.Validate(); err != nil {
		return nil, onebot.FailReason(onebot.RetBadParam, err.Error())
	}
	id, err := c.Store.SaveFile(f)
	if err != nil {
		return nil, err
	}
	return FileID{FileID: id}, nil
}

func banGroupMember(ctx context.Context, c *Call, p *banParams) (any, error) {
	seconds := int64(600)
	if p.Duration != nil {
		seconds = *p.Duration
	}
	if err := c.Session.MuteMember(ctx, p.GroupID, p.UserID, time.Duration(seconds)*time.Second); err != nil {
		return nil, onebot.Fail(onebot.RetPermissionDenied, err)
	}
	return nil, nil
}

func setGroupAdmin(ctx context.Context, c *Call, p *memberParams) (any, error) {
	return setAdmin(ctx, c, p, true)
}

func unsetGroupAdmin(ctx context.Context, c *Call, p *memberParams) (any, error) {
	return setAdmin(ctx, c, p, false)
}

func setAdmin(ctx context.Context, c *Call, p *memberParams, admin bool) (any, error) {
	if err := c.Session.SetAdmin(ctx, p.GroupID, p.UserID, admin); err != nil {
		return nil, onebot.Fail(onebot.RetPermissionDenied, err)
	}
	c.Messages.Members().Invalidate(p.GroupID)
	return nil, nil
}

func getStatus(_ context.Context, c *Call, _ *noParams) (any, error) {
	sess := c.Sessions.Get()
	online := sess != nil && sess.Online()
	return Status{Good: online, Online: online}, nil
}

func getVersion(context.Context, *Call, *noParams) (any, error) {
	return VersionInfo{
		Impl:          onebot.Impl,
		Platform:      onebot.Platform,
		Version:       onebot.Version,
		OneBotVersion: onebot.OneBotVersion,
	}, nil
}

func getLatestEvents(ctx context.Context, c *Call, p *latestEventsParams) (any, error) {
	events := c.Events.Latest(ctx, p.Limit, time.Duration(p.Timeout)*time.Second)
	if events == nil {
		events = []onebot.Event{}
	}
	return events, nil
}
