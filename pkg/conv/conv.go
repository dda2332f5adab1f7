// Package conv 把 YAML/JSON 解码出的松散值转换为具体类型。
//
// 候选链节点参数与行为事件的 metadata 都以 map[string]any 到达，
// 数字可能是 int、float64、json.Number 或字符串。
package conv

import (
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ToFloat64 将数字、json.Number 或数字字符串转为 float64。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt64 与 ToFloat64 相同，小数部分截断。"book:12" 之类的字符串不接受。
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n, true
		}
	}
	f, ok := ToFloat64(v)
	return int64(f), ok
}

// Params 是单个候选链节点的 config 段。
type Params map[string]any

// String 取字符串参数，缺失或类型不符返回 def。
func (p Params) String(key, def string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return def
}

// Bool 取布尔参数，也接受 "true"/"false"。
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (p Params) Int(key string, def int) int {
	if n, ok := ToInt64(p[key]); ok {
		return int(n)
	}
	return def
}

func (p Params) Float(key string, def float64) float64 {
	if f, ok := ToFloat64(p[key]); ok {
		return f
	}
	return def
}

// Millis 按毫秒解释整数参数，例如 timeout_ms。
func (p Params) Millis(key string, def time.Duration) time.Duration {
	if n, ok := ToInt64(p[key]); ok {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

// Seconds 按秒解释整数参数，例如 cache_ttl_s。
func (p Params) Seconds(key string, def time.Duration) time.Duration {
	if n, ok := ToInt64(p[key]); ok {
		return time.Duration(n) * time.Second
	}
	return def
}

// Strings 取字符串列表。数字元素按整数格式化，其他元素跳过。
func (p Params) Strings(key string) []string {
	var out []string
	for _, e := range list(p[key]) {
		switch v := e.(type) {
		case string:
			out = append(out, v)
		default:
			if n, ok := ToInt64(v); ok {
				out = append(out, strconv.FormatInt(n, 10))
			}
		}
	}
	return out
}

// Int64s 取 ID 列表，无法转换的元素跳过。
func (p Params) Int64s(key string) []int64 {
	var out []int64
	for _, e := range list(p[key]) {
		if n, ok := ToInt64(e); ok {
			out = append(out, n)
		}
	}
	return out
}

// Float64Map 取 map 参数（例如信号权重），非数字值跳过。key 不存在返回 nil。
func (p Params) Float64Map(key string) map[string]float64 {
	raw, ok := p[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if f, ok := ToFloat64(v); ok {
			out[k] = f
		}
	}
	return out
}

func list(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	}
	return nil
}
