// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NotesSanitizer は学習セッションに添えられた自由記述のメモを無害化する。
// メモはプレーンテキストとして扱い、bluemondayのStrictPolicyで
// すべてのタグと属性を除去する。
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNotesLength はメモの最大文字数（rune数）。超過分は切り捨てる。
const MaxNotesLength = 500

// NotesSanitizer はメモのサニタイズ機能のインターフェースを定義する。
type NotesSanitizer interface {
	// Sanitize はメモからHTMLを除去し、前後の空白を取り除いて返す。
	// MaxNotesLengthを超える入力は切り詰める。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// notesSanitizer はNotesSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type notesSanitizer struct {
	policy *bluemonday.Policy
}

// NewNotesSanitizer はNotesSanitizerの新しいインスタンスを生成する。
func NewNotesSanitizer() *notesSanitizer {
	return &notesSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はメモを無害化する。
func (s *notesSanitizer) Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if utf8.RuneCountInString(raw) > MaxNotesLength {
		raw = string([]rune(raw)[:MaxNotesLength])
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
