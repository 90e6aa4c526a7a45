package onebot

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var bytesType = reflect.TypeOf([]byte(nil))

// Bind 将动作参数或消息段数据绑定到结构体
// 使用结构体的 json 标签匹配键名，允许弱类型转换（如字符串形式的 ID 转为整数）
// 未标注 omitempty 的字段视为必填
// 参数:
//   - input: 原始数据，通常是 map[string]any
//   - out: 指向目标结构体的指针
//
// 返回:
//   - error: 类型不匹配或缺少必填键
func Bind(input any, out any) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           out,
		DecodeHook:       decodeBytes,
	})
	if err != nil {
		return err
	}
	if input == nil {
		input = map[string]any{}
	}
	if err := dec.Decode(input); err != nil {
		return err
	}
	for _, key := range RequiredKeys(out) {
		if slices.Contains(md.Unset, key) {
			return fmt.Errorf("Key %s not found.", key)
		}
	}
	return nil
}

// RequiredKeys 返回结构体中的必填键名
func RequiredKeys(v any) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || strings.Contains(opts, "omitempty") {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys = append(keys, name)
	}
	return keys
}

// decodeBytes JSON 中的二进制数据以 base64 字符串传输，msgpack 中则是原始字节
func decodeBytes(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != bytesType || from.Kind() != reflect.String {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(reflect.ValueOf(data).String())
}
