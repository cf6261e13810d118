package node

import "strings"

// 各家 OpenAI 兼容网关对结构化输出的报错措辞不一，按关键词粗匹配
var responseFormatErrHints = []string{
	"response_format",
	"response_schema",
	"json_schema",
	"failed to parse",
}

// IsResponseFormatUnsupportedError 判断错误是否因为提供商不支持结构化输出参数，
// 命中时调用方应降级为纯文本提示再让模型输出 JSON
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range responseFormatErrHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	if strings.Contains(msg, "response") &&
		(strings.Contains(msg, "unknown parameter") || strings.Contains(msg, "invalid")) {
		return true
	}
	return false
}
