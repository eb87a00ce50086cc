package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date はタイムゾーンを持たない暦日を表す。
// ストリーク計算はすべてユーザーのローカル暦日で行うため、
// UTCのtime.Timeを切り捨てて日付を求めてはならない。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf はtをlocに変換した上での暦日を返す。locがnilの場合はtのロケーションを使う。
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate は年月日からDateを生成する。範囲外の値は正規化される（例: 1月32日 → 2月1日）。
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil)
}

// ParseDate は"YYYY-MM-DD"形式の文字列を解析する。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t, nil), nil
}

// midnightUTC は日付計算用にUTC 0時のtime.Timeを返す。
// UTCにはDSTがないため日数差が常に24時間の倍数になる。
func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays はn日後（負なら前）の日付を返す。
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// DaysSince はd - otherの日数を返す。
func (d Date) DaysSince(other Date) int {
	return int(d.midnightUTC().Sub(other.midnightUTC()).Hours() / 24)
}

// Before はdがotherより前の日付かどうかを返す。
func (d Date) Before(other Date) bool {
	return d.DaysSince(other) < 0
}

// After はdがotherより後の日付かどうかを返す。
func (d Date) After(other Date) bool {
	return d.DaysSince(other) > 0
}

// IsZero はゼロ値かどうかを返す。
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Weekday は曜日を返す。
func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// In はlocにおけるその日の0時を返す。
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// String は"YYYY-MM-DD"形式の文字列を返す。
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.midnightUTC().Format(dateLayout)
}

// MarshalJSON はゼロ値をnullとして出力する。
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON は"YYYY-MM-DD"文字列またはnullを受け付ける。
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan はPostgreSQLのDATE列を読み込む。lib/pqはDATEをtime.Timeとして返す。
func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = Date{Year: v.Year(), Month: v.Month(), Day: v.Day()}
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
}

// Value はDATE列へ書き込む値を返す。
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
