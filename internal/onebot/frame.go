package onebot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
)

// 内容类型
const (
	ContentJSON    = "application/json"
	ContentMsgPack = "application/msgpack"
)

// Encoding 帧编码
type Encoding int

const (
	JSON    Encoding = iota // 文本帧 / application/json
	MsgPack                 // 二进制帧 / application/msgpack
)

func (e Encoding) String() string {
	if e == MsgPack {
		return "msgpack"
	}
	return "json"
}

// ContentType 编码对应的 HTTP 内容类型
func (e Encoding) ContentType() string {
	if e == MsgPack {
		return ContentMsgPack
	}
	return ContentJSON
}

// ParseEncoding 解析配置中的编码名称
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return JSON, fmt.Errorf("未知的编码: %s", s)
}

// Marshal 按编码序列化动作响应或事件
func Marshal(enc Encoding, v any) ([]byte, error) {
	if enc == MsgPack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

// DecodeRequest 解码动作请求
// JSON 解析失败时尽量从原文中取回 echo，以便调用方仍能关联响应
// 返回:
//   - ActionRequest: 请求，解码失败时仅 Echo 可能有值
//   - error: 解码错误
func DecodeRequest(enc Encoding, data []byte) (ActionRequest, error) {
	var req ActionRequest
	if enc == MsgPack {
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return ActionRequest{}, err
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			req = ActionRequest{}
			if echo := gjson.GetBytes(data, "echo"); echo.Exists() {
				req.Echo = echo.Value()
			}
			return req, err
		}
	}
	if req.Action == "" {
		return req, fmt.Errorf("缺少 action")
	}
	return req, nil
}
