// Package codec 在协议原生消息序号与对外公开的字符串 ID 之间做可逆映射。
package codec

import (
	"errors"
	"strconv"
)

// ErrInvalidID 表示 ID 不是合法的十进制编码
var ErrInvalidID = errors.New("无效的 ID")

// Encode 将原生序号编码为公开 ID
// 非负序号左移一位落在偶数域，负序号取反后落在奇数域，两域互不相交
// 参数:
//   - seq: 协议原生序号
//
// 返回:
//   - string: 十进制 ID，可直接作为存储键
func Encode(seq int64) string {
	return strconv.FormatUint(uint64(seq<<1)^uint64(seq>>63), 10)
}

// Decode 将公开 ID 还原为原生序号
// 参数:
//   - id: Encode 生成的 ID
//
// 返回:
//   - int64: 原生序号
//   - error: ID 非法时返回 ErrInvalidID
func Decode(id string) (int64, error) {
	u, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, ErrInvalidID
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// Valid 判断字符串是否为合法 ID
func Valid(id string) bool {
	_, err := Decode(id)
	return err == nil
}
