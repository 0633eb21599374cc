package util

import "testing"

func TestStripThinkTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no tags",
			input: "  plain copy  ",
			want:  "  plain copy  ",
		},
		{
			name:  "think tag",
			input: "<think>plan the hook</think>\n立即免費試用！",
			want:  "立即免費試用！",
		},
		{
			name:  "thinking tag mixed case",
			input: "<Thinking>a\nb</Thinking>Answer",
			want:  "Answer",
		},
		{
			name:  "chinese tag",
			input: "<思考>先想想</思考>文案內容",
			want:  "文案內容",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinkTags(tt.input); got != tt.want {
				t.Errorf("StripThinkTags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainsThinkTags(t *testing.T) {
	if !ContainsThinkTags("<think>x</think>") {
		t.Error("expected think tags to be detected")
	}
	if ContainsThinkTags("<thinker>x</thinker>") {
		t.Error("unexpected detection for unrelated tag")
	}
}
