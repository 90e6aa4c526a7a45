package chat

import "sync"

// Holder 保存当前登录的会话，未登录时为空
type Holder struct {
	mu   sync.RWMutex
	sess Session
}

// Get 返回当前会话，未登录时返回 nil
func (h *Holder) Get() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sess
}

// Set 设置当前会话，传入 nil 表示登出
func (h *Holder) Set(s Session) {
	h.mu.Lock()
	h.sess = s
	h.mu.Unlock()
}

// Take 取出并清空当前会话
func (h *Holder) Take() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sess
	h.sess = nil
	return s
}
