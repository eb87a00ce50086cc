package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestNotesSanitize_StripsMarkup はタグと属性が除去されることを検証する。
func TestNotesSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewNotesSanitizer()

	tests := []struct {
		name        string
		input       string
		wantContain string
		wantAbsent  []string
	}{
		{
			name:        "プレーンテキストはそのまま",
			input:       "二次関数の演習 20問",
			wantContain: "二次関数の演習 20問",
		},
		{
			name:        "scriptタグは内容ごと除去される",
			input:       "復習<script>alert('xss')</script>",
			wantContain: "復習",
			wantAbsent:  []string{"<script", "alert"},
		},
		{
			name:        "装飾タグは除去され本文は残る",
			input:       "<strong>重要</strong>な公式",
			wantContain: "重要な公式",
			wantAbsent:  []string{"<strong>"},
		},
		{
			name:        "イベント属性付きのimgは除去される",
			input:       `<img src="x" onerror="alert(1)">単語帳`,
			wantContain: "単語帳",
			wantAbsent:  []string{"onerror", "<img"},
		},
		{
			name:        "javascript URIのリンクは除去される",
			input:       `<a href="javascript:alert(1)">年表</a>`,
			wantContain: "年表",
			wantAbsent:  []string{"javascript:", "<a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if !strings.Contains(got, tt.wantContain) {
				t.Errorf("Sanitize(%q) = %q, want to contain %q", tt.input, got, tt.wantContain)
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(strings.ToLower(got), strings.ToLower(absent)) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestNotesSanitize_EmptyAndWhitespace は空白のみの入力が空文字列になることを検証する。
func TestNotesSanitize_EmptyAndWhitespace(t *testing.T) {
	sanitizer := NewNotesSanitizer()
	for _, in := range []string{"", "   ", "\n\t"} {
		if got := sanitizer.Sanitize(in); got != "" {
			t.Errorf("Sanitize(%q) = %q, want empty", in, got)
		}
	}
}

// TestNotesSanitize_Truncates は最大文字数で切り詰めることを検証する。
func TestNotesSanitize_Truncates(t *testing.T) {
	sanitizer := NewNotesSanitizer()
	got := sanitizer.Sanitize(strings.Repeat("あ", MaxNotesLength+50))
	if n := utf8.RuneCountInString(got); n != MaxNotesLength {
		t.Errorf("length = %d, want %d", n, MaxNotesLength)
	}
}

// TestNotesSanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestNotesSanitize_Idempotent(t *testing.T) {
	sanitizer := NewNotesSanitizer()
	input := "<p>英単語</p> 50個"
	if a, b := sanitizer.Sanitize(input), sanitizer.Sanitize(input); a != b {
		t.Errorf("not deterministic: %q vs %q", a, b)
	}
}

// TestNotesSanitizerInterface はNotesSanitizerインターフェースの適合を検証する。
func TestNotesSanitizerInterface(t *testing.T) {
	var _ NotesSanitizer = NewNotesSanitizer()
}
