package chat

// Element 协议原生消息元素
type Element interface {
	element()
}

// TextElement 文本
type TextElement struct {
	Content string
}

// AtElement @某人
type AtElement struct {
	Target  int64
	Display string
}

// AtAllElement @全体成员
type AtAllElement struct{}

// FaceElement 表情
type FaceElement struct {
	ID int
}

// PokeElement 戳一戳
type PokeElement struct {
	ID int
}

// ImageElement 图片，收到时 URL 指向 CDN，上传后 Handle 为协议端句柄
type ImageElement struct {
	Filename string
	URL      string
	Handle   any
}

// VoiceElement 语音
type VoiceElement struct {
	Filename string
	URL      string
	Handle   any
}

// VideoElement 视频
type VideoElement struct {
	Filename string
	URL      string
	Handle   any
}

// ReplyElement 回复
type ReplyElement struct {
	Seq     int64
	Time    int64
	Sender  int64
	Message []Element
}

// ForwardNode 合并转发中的一条消息
type ForwardNode struct {
	FromUin  int64
	Nickname string
	SendTime int64
	Message  []Element
}

// ForwardElement 合并转发
type ForwardElement struct {
	GroupID int64
	Brief   string
	Nodes   []ForwardNode
	Handle  any
}

func (TextElement) element()    {}
func (AtElement) element()      {}
func (AtAllElement) element()   {}
func (FaceElement) element()    {}
func (PokeElement) element()    {}
func (ImageElement) element()   {}
func (VoiceElement) element()   {}
func (VideoElement) element()   {}
func (ReplyElement) element()   {}
func (ForwardElement) element() {}
