package onebot

// 动作响应状态
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ActionRequest 应用端发来的动作请求
type ActionRequest struct {
	Action string         `json:"action" msgpack:"action"`                     // 动作名称
	Params map[string]any `json:"params,omitempty" msgpack:"params,omitempty"` // 动作参数
	Echo   any            `json:"echo,omitempty" msgpack:"echo,omitempty"`     // 原样返回的标识
}

// ActionResult 动作响应
type ActionResult struct {
	Status  string `json:"status" msgpack:"status"`   // 执行状态: ok / failed
	Retcode int    `json:"retcode" msgpack:"retcode"` // 返回码
	Data    any    `json:"data" msgpack:"data"`       // 响应数据
	Message string `json:"message" msgpack:"message"` // 错误信息
	Echo    any    `json:"echo,omitempty" msgpack:"echo,omitempty"`
}

// OK 构造成功响应
func OK(data any, echo any) ActionResult {
	return ActionResult{Status: StatusOK, Retcode: RetOK, Data: data, Echo: echo}
}

// Failed 构造失败响应，message 为空时使用返回码的默认描述
func Failed(code int, data any, message string, echo any) ActionResult {
	if message == "" {
		message = RetMessage(code)
	}
	return ActionResult{Status: StatusFailed, Retcode: code, Data: data, Message: message, Echo: echo}
}
