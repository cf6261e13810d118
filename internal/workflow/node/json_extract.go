package node

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject 从模型输出里截取第一个完整的 JSON 对象或数组。
// 模型经常在 JSON 前后夹杂解释文字或代码围栏，这里做容错截取；
// 找不到可用的 JSON 时返回去掉首尾空白的原文，交给上层解析报错。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}

	if candidate, ok := scanBalanced(raw[start:]); ok && json.Valid([]byte(candidate)) {
		return candidate
	}

	// 扫描失败时退回首尾括号截取，宽松处理被截断的输出
	closing := byte('}')
	if raw[start] == '[' {
		closing = ']'
	}
	if end := strings.LastIndexByte(raw, closing); end > start {
		return raw[start : end+1]
	}
	return raw
}

// scanBalanced 从首个括号起扫描到配对闭合为止，跳过字符串字面量与转义
func scanBalanced(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
