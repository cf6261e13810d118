package painter

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

// 占位图上最多展示的指令行数
const placeholderMaxLines = 18

// 每行最多展示的字符数
const placeholderLineRunes = 42

// PlaceholderDataURI 把指令文本渲染成 SVG 占位图的 data URI
// 仅用于开发环境跳过付费的图片生成
func PlaceholderDataURI(instruction string) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="768" height="1024" viewBox="0 0 768 1024">`)
	b.WriteString(`<rect width="768" height="1024" fill="#fdf6e3"/>`)
	b.WriteString(`<rect x="24" y="24" width="720" height="976" fill="none" stroke="#93a1a1" stroke-width="2" stroke-dasharray="8 6"/>`)
	b.WriteString(`<text x="48" y="72" font-family="monospace" font-size="22" fill="#586e75">placeholder image</text>`)

	y := 120
	for _, line := range wrapLines(instruction) {
		fmt.Fprintf(&b, `<text x="48" y="%d" font-family="monospace" font-size="16" fill="#657b83">%s</text>`,
			y, html.EscapeString(line))
		y += 28
	}
	b.WriteString(`</svg>`)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(b.String()))
}

func wrapLines(text string) []string {
	lines := make([]string, 0, placeholderMaxLines)
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		runes := []rune(raw)
		for len(runes) > 0 {
			n := placeholderLineRunes
			if n > len(runes) {
				n = len(runes)
			}
			lines = append(lines, string(runes[:n]))
			runes = runes[n:]
			if len(lines) == placeholderMaxLines {
				return lines
			}
		}
	}
	return lines
}
