// Package timer は学習タイマーの状態機械を提供する。
//
// 遷移関数は State を受け取り新しい State と Outcome を返す純粋関数で、永続化や通信は行わない。
// 副作用（セッションAPI呼び出し、スナップショット保存、他ビューへの通知）は
// State の所有者である Runner が Outcome に従って実行する。
package timer

import (
	"time"

	"github.com/hitoshi/studystreak/internal/model"
)

// Phase はタイマーの状態を表す。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
	PhaseCompleted
	PhaseCanceled
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseCompleted:
		return "completed"
	case PhaseCanceled:
		return "canceled"
	default:
		return "idle"
	}
}

// Terminal は完了またはキャンセル済みかどうかを返す。
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCanceled
}

// State はタイマー1つ分の状態。
type State struct {
	Phase            Phase
	Subject          model.Subject
	DurationMinutes  int
	TotalSeconds     int
	RemainingSeconds int
	SessionID        string
	StartedAt        time.Time
	PausedAt         time.Time
	PausedTotal      time.Duration

	// StudiedMinutes は終了時に確定した学習分数。完了時のみ意味を持つ。
	StudiedMinutes int
}

// Outcome は遷移に伴って所有者が実行すべき副作用を表す。
type Outcome struct {
	// Changed は状態が変化したかどうか。falseなら保存・通知は不要。
	Changed bool
	// RequestSession はサーバーにセッション作成を依頼する。
	RequestSession bool
	// Complete はサーバーに完了を報告する。Minutes が学習分数。
	Complete bool
	// Cancel はサーバー上のセッションを破棄する。
	Cancel  bool
	Minutes int
}

// InputsLocked は科目・時間の入力を受け付けない状態かどうかを返す。
func (s State) InputsLocked() bool {
	return s.Phase != PhaseIdle
}

// remainingAt は開始時刻と一時停止の累計から now 時点の残り秒数を求める。
func (s State) remainingAt(now time.Time) int {
	end := now
	if s.Phase == PhasePaused && !s.PausedAt.IsZero() {
		end = s.PausedAt
	}
	elapsed := int(end.Sub(s.StartedAt.Add(s.PausedTotal)) / time.Second)
	remaining := s.TotalSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	if remaining > s.RemainingSeconds {
		// 時計の巻き戻りでは残り時間を増やさない
		return s.RemainingSeconds
	}
	return remaining
}

// Start はタイマーを開始する。一時停止中なら残り時間を保ったまま再開する。
// 待機中または終了状態からは残り時間を minutes*60 秒に設定し、セッション作成を依頼する。
func Start(s State, subject model.Subject, minutes int, now time.Time) (State, Outcome) {
	switch s.Phase {
	case PhasePaused:
		return Resume(s, now)
	case PhaseRunning:
		return s, Outcome{}
	}
	if minutes < 1 {
		return s, Outcome{}
	}

	total := minutes * 60
	next := State{
		Phase:            PhaseRunning,
		Subject:          subject,
		DurationMinutes:  minutes,
		TotalSeconds:     total,
		RemainingSeconds: total,
		StartedAt:        now,
	}
	return next, Outcome{Changed: true, RequestSession: true}
}

// Tick は実行中のタイマーを進める。残りが0になると完了し、設定時間（分）を報告する。
func Tick(s State, now time.Time) (State, Outcome) {
	if s.Phase != PhaseRunning {
		return s, Outcome{}
	}
	remaining := s.remainingAt(now)
	if remaining == s.RemainingSeconds && remaining > 0 {
		return s, Outcome{}
	}
	s.RemainingSeconds = remaining
	if remaining > 0 {
		return s, Outcome{Changed: true}
	}

	s.Phase = PhaseCompleted
	s.StudiedMinutes = s.TotalSeconds / 60
	return s, Outcome{Changed: true, Complete: s.SessionID != "", Minutes: s.StudiedMinutes}
}

// Pause は実行中のタイマーを一時停止する。
func Pause(s State, now time.Time) (State, Outcome) {
	if s.Phase != PhaseRunning {
		return s, Outcome{}
	}
	s.RemainingSeconds = s.remainingAt(now)
	s.Phase = PhasePaused
	s.PausedAt = now
	return s, Outcome{Changed: true}
}

// Resume は一時停止中のタイマーを再開する。
func Resume(s State, now time.Time) (State, Outcome) {
	if s.Phase != PhasePaused {
		return s, Outcome{}
	}
	if now.After(s.PausedAt) {
		s.PausedTotal += now.Sub(s.PausedAt)
	}
	s.PausedAt = time.Time{}
	s.Phase = PhaseRunning
	return s, Outcome{Changed: true}
}

// Stop はタイマーを手動で止める。1分以上学習していれば完了、未満ならキャンセルとする。
func Stop(s State, now time.Time) (State, Outcome) {
	if s.Phase != PhaseRunning && s.Phase != PhasePaused {
		return s, Outcome{}
	}
	s.RemainingSeconds = s.remainingAt(now)
	studied := (s.TotalSeconds - s.RemainingSeconds) / 60
	s.PausedAt = time.Time{}

	if studied >= 1 {
		s.Phase = PhaseCompleted
		s.StudiedMinutes = studied
		return s, Outcome{Changed: true, Complete: s.SessionID != "", Minutes: studied}
	}
	s.Phase = PhaseCanceled
	return s, Outcome{Changed: true, Cancel: s.SessionID != ""}
}

// Reset は終了状態のタイマーを待機状態に戻す。科目と時間の選択は保持する。
func Reset(s State) (State, Outcome) {
	if !s.Phase.Terminal() {
		return s, Outcome{}
	}
	return State{
		Phase:            PhaseIdle,
		Subject:          s.Subject,
		DurationMinutes:  s.DurationMinutes,
		TotalSeconds:     s.DurationMinutes * 60,
		RemainingSeconds: s.DurationMinutes * 60,
	}, Outcome{Changed: true}
}

// AttachSession はセッション作成の応答で得たIDを記録する。
// 応答より先にタイマーが終了していた場合は、遅れて完了またはキャンセルを報告させる。
func AttachSession(s State, sessionID string) (State, Outcome) {
	if sessionID == "" || s.SessionID != "" || s.Phase == PhaseIdle {
		return s, Outcome{}
	}
	s.SessionID = sessionID
	switch s.Phase {
	case PhaseCompleted:
		return s, Outcome{Changed: true, Complete: true, Minutes: s.StudiedMinutes}
	case PhaseCanceled:
		return s, Outcome{Changed: true, Cancel: true}
	default:
		return s, Outcome{Changed: true}
	}
}
