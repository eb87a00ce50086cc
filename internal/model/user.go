package model

import "time"

// User は学習者を表す。アカウント登録はなく、初回アクセス時に訪問者として自動作成される。
type User struct {
	ID        string
	Timezone  string // IANAタイムゾーン名。暦日の境界はこのタイムゾーンで判定する。
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location はユーザーのタイムゾーンを返す。解決できない場合はfallbackを返す。
func (u *User) Location(fallback *time.Location) *time.Location {
	if u == nil || u.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// Session は訪問者のCookieセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ValidTimezone はnameが解決可能なIANAタイムゾーン名かどうかを返す。
// 空文字列と"Local"はサーバー依存になるため無効とする。
func ValidTimezone(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
