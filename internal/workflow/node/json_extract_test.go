package node

import (
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain object",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "code fence",
			input: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "leading prose",
			input: "好的，以下是整理结果：\n{\"a\": 1}\n希望有帮助。",
			want:  `{"a": 1}`,
		},
		{
			name:  "array",
			input: "结果：[1, 2, 3]",
			want:  `[1, 2, 3]`,
		},
		{
			name:  "empty",
			input: "   ",
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONObject(tc.input); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTruncateByRunes(t *testing.T) {
	if got := TruncateByRunes("你好世界", 2); got != "你好" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateByRunes("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateByRunes("abc", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}
