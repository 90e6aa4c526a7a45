package onebot

import (
	"errors"
	"fmt"
)

// 返回码
const (
	RetOK                     = 0
	RetBadRequest             = 10001
	RetUnsupportedAction      = 10002
	RetBadParam               = 10003
	RetUnsupportedParam       = 10004
	RetUnsupportedSegment     = 10005
	RetBadSegmentData         = 10006
	RetUnsupportedSegmentData = 10007
	RetBadHandler             = 20001
	RetInternalHandlerError   = 20002
	RetMessageNotInDatabase   = 31000
	RetFileNotInDatabase      = 31001
	RetCantDownloadImages     = 33000
	RetCantSendMessage        = 34000
	RetBotMuted               = 34001
	RetGroupMessageLimit      = 34002
	RetNoMentionTimes         = 34003
	RetPermissionDenied       = 34004
	RetNotLoggedIn            = 34099
	RetUnknownError           = 34999
	RetCantFindUser           = 35000
	RetCantFindGroup          = 35001
)

var retMessages = map[int]string{
	RetOK:                     "",
	RetBadRequest:             "Bad Request",
	RetUnsupportedAction:      "Unsupported Action",
	RetBadParam:               "Bad Param",
	RetUnsupportedParam:       "Unsupported Param",
	RetUnsupportedSegment:     "Unsupported Segment",
	RetBadSegmentData:         "Bad Segment Data",
	RetUnsupportedSegmentData: "Unsupported Segment Data",
	RetBadHandler:             "Bad Handler",
	RetInternalHandlerError:   "Internal Handler Error",
	RetMessageNotInDatabase:   "Message is Not in Database",
	RetFileNotInDatabase:      "File is Not in Database",
	RetCantDownloadImages:     "Can't Download Images",
	RetCantSendMessage:        "Can't Send Message",
	RetBotMuted:               "Bot was muted",
	RetGroupMessageLimit:      "Group has message limits",
	RetNoMentionTimes:         "No mention times",
	RetPermissionDenied:       "Permission Denied",
	RetNotLoggedIn:            "No Login",
	RetUnknownError:           "Unknown Error",
	RetCantFindUser:           "Can't Find User",
	RetCantFindGroup:          "Can't Find Group",
}

// RetMessage 返回码对应的描述
func RetMessage(code int) string {
	if m, ok := retMessages[code]; ok {
		return m
	}
	return retMessages[RetUnknownError]
}

// ActionError 带返回码的动作错误，由处理函数返回
type ActionError struct {
	Retcode int // 返回码
	Data    any // 附加数据，如 {"reason": "..."}
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Retcode, RetMessage(e.Retcode), e.Err)
	}
	return fmt.Sprintf("%d %s", e.Retcode, RetMessage(e.Retcode))
}

func (e *ActionError) Unwrap() error { return e.Err }

// Fail 构造动作错误
func Fail(code int, err error) *ActionError {
	return &ActionError{Retcode: code, Err: err}
}

// FailReason 构造带 reason 的动作错误
func FailReason(code int, reason string) *ActionError {
	return &ActionError{Retcode: code, Data: map[string]any{"reason": reason}, Err: errors.New(reason)}
}
