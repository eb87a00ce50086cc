package timer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
)

// Snapshot は全ビューで共有するタイマー状態のJSON表現。
// 時刻はUnixミリ秒、時間は秒（pausedTotalのみミリ秒）で表す。
// Origin は配信したビューのID、Revision はビュー間で単調増加する版番号（ランポート時計）。
// どちらも空のスナップショットは版管理されていないものとして扱う。
type Snapshot struct {
	IsRunning     bool   `json:"isRunning"`
	IsPaused      bool   `json:"isPaused"`
	TimeRemaining int    `json:"timeRemaining"`
	TotalTime     int    `json:"totalTime"`
	Subject       string `json:"subject"`
	SessionID     string `json:"sessionId,omitempty"`
	StartTime     int64  `json:"startTime,omitempty"`
	PausedAt      int64  `json:"pausedAt,omitempty"`
	PausedTotal   int64  `json:"pausedTotal,omitempty"`
	Origin        string `json:"origin,omitempty"`
	Revision      int64  `json:"revision,omitempty"`
}

// NewerThan は版番号 rev（配信元 origin）より新しい版かどうかを返す。
// 同じ版番号は配信元IDの大小で順序付ける。
func (sn Snapshot) NewerThan(rev int64, origin string) bool {
	if sn.Revision != rev {
		return sn.Revision > rev
	}
	return sn.Origin > origin
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SnapshotOf は状態からスナップショットを作る。
// 終了状態は実行も一時停止もしていないスナップショットになる。
func SnapshotOf(s State) Snapshot {
	snap := Snapshot{
		IsRunning:     s.Phase == PhaseRunning,
		IsPaused:      s.Phase == PhasePaused,
		TimeRemaining: s.RemainingSeconds,
		TotalTime:     s.TotalSeconds,
		Subject:       string(s.Subject),
	}
	if snap.IsRunning || snap.IsPaused {
		snap.SessionID = s.SessionID
		snap.StartTime = toMillis(s.StartedAt)
		snap.PausedAt = toMillis(s.PausedAt)
		snap.PausedTotal = s.PausedTotal.Milliseconds()
	}
	return snap
}

// Active は実行中または一時停止中かどうかを返す。
func (sn Snapshot) Active() bool {
	return sn.IsRunning || sn.IsPaused
}

// Remaining は now 時点の残り秒数を開始時刻から導出する。
// 複製されたカウンタ（TimeRemaining）は開始時刻がない場合のみ使う。
func (sn Snapshot) Remaining(now time.Time) int {
	if !sn.Active() || sn.StartTime == 0 {
		return sn.TimeRemaining
	}
	end := now
	if sn.IsPaused && sn.PausedAt != 0 {
		end = fromMillis(sn.PausedAt)
	}
	start := fromMillis(sn.StartTime).Add(time.Duration(sn.PausedTotal) * time.Millisecond)
	remaining := sn.TotalTime - int(end.Sub(start)/time.Second)
	if remaining < 0 {
		return 0
	}
	if remaining > sn.TotalTime {
		return sn.TotalTime
	}
	return remaining
}

// Validate はスナップショットの整合性を検査する。
func (sn Snapshot) Validate() error {
	if sn.IsRunning && sn.IsPaused {
		return model.NewInvalidSnapshotError("isRunning and isPaused are both true")
	}
	if sn.TotalTime < 0 || sn.TimeRemaining < 0 || sn.TimeRemaining > sn.TotalTime {
		return model.NewInvalidSnapshotError(fmt.Sprintf("timeRemaining=%d totalTime=%d", sn.TimeRemaining, sn.TotalTime))
	}
	if sn.Subject != "" {
		if _, ok := model.ParseSubject(sn.Subject); !ok {
			return model.NewInvalidSubjectError(sn.Subject)
		}
	}
	if sn.Active() && sn.StartTime == 0 {
		return model.NewInvalidSnapshotError("startTime is required while active")
	}
	if sn.IsPaused && sn.PausedAt == 0 {
		return model.NewInvalidSnapshotError("pausedAt is required while paused")
	}
	if sn.Revision < 0 {
		return model.NewInvalidSnapshotError("revision must not be negative")
	}
	return nil
}

// State はスナップショットから now 時点のタイマー状態を復元する。
func (sn Snapshot) State(now time.Time) State {
	subject, _ := model.ParseSubject(sn.Subject)
	s := State{
		Phase:            PhaseIdle,
		Subject:          subject,
		DurationMinutes:  sn.TotalTime / 60,
		TotalSeconds:     sn.TotalTime,
		RemainingSeconds: sn.TimeRemaining,
	}
	if !sn.Active() {
		return s
	}

	s.SessionID = sn.SessionID
	s.StartedAt = fromMillis(sn.StartTime)
	s.PausedTotal = time.Duration(sn.PausedTotal) * time.Millisecond
	s.RemainingSeconds = sn.Remaining(now)
	if sn.IsPaused {
		s.Phase = PhasePaused
		s.PausedAt = fromMillis(sn.PausedAt)
	} else {
		s.Phase = PhaseRunning
	}
	return s
}

// DecodeSnapshot はJSONを検証済みのスナップショットに変換する。
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var sn Snapshot
	if err := json.Unmarshal(data, &sn); err != nil {
		return Snapshot{}, model.NewInvalidSnapshotError(err.Error())
	}
	if err := sn.Validate(); err != nil {
		return Snapshot{}, err
	}
	return sn, nil
}
