package onebot

import (
	"fmt"
	"net/http"
	"strconv"
)

// MakeHeader 构造主动连接（反向 WebSocket、Webhook）时携带的请求头
// 参数:
//   - selfID: 机器人账号
//   - secret: 鉴权令牌，为空时不携带 Authorization
//   - withType: 是否携带 JSON Content-Type
func MakeHeader(selfID int64, secret string, withType bool) http.Header {
	h := http.Header{}
	h.Set("X-Self-ID", strconv.FormatInt(selfID, 10))
	h.Set("User-Agent", fmt.Sprintf("OneBot/%s (%s) OneBot-CAI/%s", OneBotVersion, Platform, Version))
	h.Set("X-OneBot-Version", OneBotVersion)
	h.Set("X-Impl", Impl)
	h.Set("X-Platform", Platform)
	if secret != "" {
		h.Set("Authorization", "Bearer "+secret)
	}
	if withType {
		h.Set("Content-Type", ContentJSON)
	}
	return h
}
