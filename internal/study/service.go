// Package study は学習セッションのライフサイクルと、ストリーク・バッジ評価を提供する。
package study

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/studystreak/internal/badge"
	"github.com/hitoshi/studystreak/internal/metrics"
	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/repository"
	"github.com/hitoshi/studystreak/internal/security"
	"github.com/hitoshi/studystreak/internal/streak"
)

// DefaultMaxSessionMinutes は1セッションで受け付ける最大分数のデフォルト値。
const DefaultMaxSessionMinutes = 480

// 学習履歴の取得件数
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	dashboardRecent     = 5
)

// Config はServiceの設定。
type Config struct {
	MinDailyMinutes   int
	MaxSessionMinutes int
	DefaultLocation   *time.Location
	Now               func() time.Time
}

// StartRequest はセッション開始の入力。
type StartRequest struct {
	Subject         string
	DurationMinutes int
	Notes           string
}

// Service は学習セッションのサービス層。
// セッションの開始・完了・キャンセルと、ストリーク・バッジ・ダッシュボードの参照を提供する。
type Service struct {
	sessions   repository.StudySessionRepository
	badges     repository.UserBadgeRepository
	users      repository.UserRepository
	sanitizer  security.NotesSanitizer
	metrics    metrics.MetricsCollector
	calc       *streak.Calculator
	maxMinutes int
	defaultLoc *time.Location
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。collectorはnilでもよい。
func NewService(
	sessions repository.StudySessionRepository,
	badges repository.UserBadgeRepository,
	users repository.UserRepository,
	sanitizer security.NotesSanitizer,
	collector metrics.MetricsCollector,
	cfg Config,
) *Service {
	if cfg.MaxSessionMinutes <= 0 {
		cfg.MaxSessionMinutes = DefaultMaxSessionMinutes
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		sessions:   sessions,
		badges:     badges,
		users:      users,
		sanitizer:  sanitizer,
		metrics:    collector,
		calc:       streak.NewCalculator(cfg.MinDailyMinutes),
		maxMinutes: cfg.MaxSessionMinutes,
		defaultLoc: cfg.DefaultLocation,
		now:        cfg.Now,
	}
}

// location はユーザーのタイムゾーンを返す。
func (s *Service) location(ctx context.Context, userID string) (*time.Location, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Location(s.defaultLoc), nil
}

func (s *Service) validDuration(minutes int) bool {
	return minutes > 0 && minutes <= s.maxMinutes
}

// StartSession はactiveな学習セッションを作成する。ストリークとバッジには影響しない。
// 同じユーザーの実行中セッションはキャンセルされる。
func (s *Service) StartSession(ctx context.Context, userID string, req StartRequest) (*model.StudySession, error) {
	subject, ok := model.ParseSubject(req.Subject)
	if !ok {
		return nil, model.NewInvalidSubjectError(req.Subject)
	}
	if !s.validDuration(req.DurationMinutes) {
		return nil, model.NewInvalidDurationError(req.DurationMinutes)
	}

	loc, err := s.location(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	notes := ""
	if s.sanitizer != nil {
		notes = s.sanitizer.Sanitize(req.Notes)
	}
	session := &model.StudySession{
		ID:             uuid.New().String(),
		UserID:         userID,
		Subject:        subject,
		Status:         model.SessionStatusActive,
		StartedAt:      now,
		SessionDate:    model.DateOf(now, loc),
		PlannedMinutes: req.DurationMinutes,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("学習セッションの作成に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionStarted(string(subject))
	}
	return session, nil
}

// findOwned はユーザー自身のセッションを取得する。他人のセッションは未検出として扱う。
func (s *Service) findOwned(ctx context.Context, userID, sessionID string) (*model.StudySession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("学習セッションの取得に失敗しました: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return session, nil
}

// CompleteSession は学習セッションを完了し、ストリークと新規獲得バッジを返す。
// 同じセッションを再度完了した場合は保存済みの結果をそのまま返す。
func (s *Service) CompleteSession(ctx context.Context, userID, sessionID string, minutes int) (*model.CompletionResult, error) {
	session, err := s.findOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.validDuration(minutes) {
		return nil, model.NewInvalidDurationError(minutes)
	}

	switch session.Status {
	case model.SessionStatusCanceled:
		return nil, model.NewSessionCanceledError()
	case model.SessionStatusCompleted:
		return decodeResult(session)
	}
	if limit := completionLimit(session, s.now()); minutes > limit {
		return nil, model.NewDurationExceedsElapsedError(minutes, limit)
	}

	loc, err := s.location(ctx, userID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	now := s.now().UTC()
	var (
		result  *model.CompletionResult
		awarded []badge.Badge
	)
	ok, err := s.sessions.Complete(ctx, repository.CompleteRequest{
		SessionID:       sessionID,
		DurationMinutes: minutes,
		CompletedAt:     now,
	}, func(in repository.CompletionInput) ([]byte, []model.UserBadge, error) {
		result, awarded = s.evaluate(in, loc, model.DateOf(now, loc))
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, nil, fmt.Errorf("完了結果のエンコードに失敗しました: %w", err)
		}
		awards := make([]model.UserBadge, len(awarded))
		for i, b := range awarded {
			awards[i] = model.UserBadge{
				UserID:    userID,
				BadgeKey:  b.Key,
				SessionID: sessionID,
				EarnedAt:  now,
			}
		}
		return raw, awards, nil
	})
	if err != nil {
		return nil, fmt.Errorf("学習セッションの完了に失敗しました: %w", err)
	}

	if !ok {
		// 別リクエストが先に遷移させた
		latest, err := s.findOwned(ctx, userID, sessionID)
		if err != nil {
			return nil, err
		}
		if latest.Status == model.SessionStatusCanceled {
			return nil, model.NewSessionCanceledError()
		}
		return decodeResult(latest)
	}

	if s.metrics != nil {
		s.metrics.RecordEvaluationLatency(time.Since(started))
		s.metrics.RecordSessionCompleted(string(session.Subject), minutes)
		for _, b := range awarded {
			s.metrics.RecordBadgeAwarded(b.Key)
		}
	}
	slog.Info("学習セッション完了",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.Int("minutes", minutes),
		slog.Int("streak", result.NewStreak),
		slog.Int("new_badges", len(awarded)),
	)
	return result, nil
}

// completionLimit は完了時に受け付ける最大分数を返す。
// 予定時間と、開始から現在までの経過分数（切り上げ）の大きいほう。
func completionLimit(session *model.StudySession, now time.Time) int {
	elapsed := int(math.Ceil(now.Sub(session.StartedAt).Minutes()))
	return max(session.PlannedMinutes, elapsed)
}

// evaluate は今回のセッションを除いた状態と含めた状態を比較し、完了結果と新規バッジを求める。
// 付与済みのバッジは再付与しない。
func (s *Service) evaluate(in repository.CompletionInput, loc *time.Location, today model.Date) (*model.CompletionResult, []badge.Badge) {
	post := localize(in.Completed, loc)
	pre := make([]model.CompletedSession, 0, len(post))
	for _, cs := range post {
		if cs.ID != in.Session.ID {
			pre = append(pre, cs)
		}
	}

	preState := s.calc.Compute(streak.DaysFromSessions(pre), today)
	postStatus := s.calc.Status(streak.DaysFromSessions(post), today)

	var newly []badge.Badge
	for _, b := range badge.Diff(
		badge.NewStats(pre, preState, today),
		badge.NewStats(post, postStatus.State, today),
	) {
		if !in.Awarded[b.Key] {
			newly = append(newly, b)
		}
	}

	result := &model.CompletionResult{
		SessionID:     in.Session.ID,
		NewStreak:     postStatus.CurrentStreak,
		LongestStreak: postStatus.LongestStreak,
		StreakMessage: postStatus.Message,
		NewRecord:     postStatus.LongestStreak > preState.LongestStreak,
		NewBadges:     make([]model.EarnedBadge, len(newly)),
	}
	for i, b := range newly {
		result.NewBadges[i] = b.Earned()
	}
	return result, newly
}

func decodeResult(session *model.StudySession) (*model.CompletionResult, error) {
	if len(session.CompletionResult) == 0 {
		return nil, fmt.Errorf("完了結果が保存されていません: %s", session.ID)
	}
	var result model.CompletionResult
	if err := json.Unmarshal(session.CompletionResult, &result); err != nil {
		return nil, fmt.Errorf("完了結果のデコードに失敗しました: %w", err)
	}
	if result.NewBadges == nil {
		result.NewBadges = []model.EarnedBadge{}
	}
	return &result, nil
}

// localize は開始時刻をユーザーのタイムゾーンに変換したコピーを返す。
func localize(sessions []model.CompletedSession, loc *time.Location) []model.CompletedSession {
	out := make([]model.CompletedSession, len(sessions))
	for i, cs := range sessions {
		cs.StartedAt = cs.StartedAt.In(loc)
		out[i] = cs
	}
	return out
}

// CancelSession は学習セッションを破棄する。キャンセル済みのセッションに対しては何もしない。
func (s *Service) CancelSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.findOwned(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	switch session.Status {
	case model.SessionStatusCanceled:
		return nil
	case model.SessionStatusCompleted:
		return model.NewSessionCompletedError()
	}

	ok, err := s.sessions.Cancel(ctx, sessionID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("学習セッションのキャンセルに失敗しました: %w", err)
	}
	if !ok {
		latest, err := s.findOwned(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if latest.Status == model.SessionStatusCompleted {
			return model.NewSessionCompletedError()
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordSessionCanceled()
	}
	return nil
}

// completed はユーザーの完了済みセッションをローカル時刻で返す。
func (s *Service) completed(ctx context.Context, userID string) ([]model.CompletedSession, *time.Location, error) {
	loc, err := s.location(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := s.sessions.ListCompleted(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("完了済みセッションの取得に失敗しました: %w", err)
	}
	return localize(sessions, loc), loc, nil
}

// StreakStatus は現在のストリーク状況を返す。
func (s *Service) StreakStatus(ctx context.Context, userID string) (*streak.Status, error) {
	sessions, loc, err := s.completed(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := s.calc.Status(streak.DaysFromSessions(sessions), model.DateOf(s.now(), loc))
	return &st, nil
}

// Calendar は指定年月の日ごとの学習状況を返す。
// yearとmonthがともに0の場合はユーザーのローカル時刻での今月を返す。
func (s *Service) Calendar(ctx context.Context, userID string, year, month int) (map[string]streak.CalendarDay, error) {
	current := year == 0 && month == 0
	if !current && (year < 1 || year > 9999 || month < 1 || month > 12) {
		return nil, model.NewInvalidMonthError(strconv.Itoa(year), strconv.Itoa(month))
	}
	sessions, loc, err := s.completed(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := model.DateOf(s.now(), loc)
	if current {
		year, month = today.Year, int(today.Month)
	}
	return s.calc.Calendar(streak.DaysFromSessions(sessions), year, month, today), nil
}

// EarnedBadge は獲得済みバッジの表示用情報。
type EarnedBadge struct {
	badge.Badge
	Points    int       `json:"points"`
	SessionID string    `json:"session_id,omitempty"`
	EarnedAt  time.Time `json:"earned_at"`
}

// BadgeSummary は獲得済みバッジと未獲得バッジへの進捗。
type BadgeSummary struct {
	Earned      []EarnedBadge         `json:"earned"`
	Progress    []badge.ProgressEntry `json:"progress"`
	TotalPoints int                   `json:"total_points"`
}

func (s *Service) earnedBadges(ctx context.Context, userID string) ([]EarnedBadge, map[string]bool, error) {
	rows, err := s.badges.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("獲得バッジの取得に失敗しました: %w", err)
	}
	earned := make([]EarnedBadge, 0, len(rows))
	keys := make(map[string]bool, len(rows))
	for _, row := range rows {
		b, ok := badge.Lookup(row.BadgeKey)
		if !ok {
			// カタログから削除されたバッジ
			continue
		}
		keys[row.BadgeKey] = true
		earned = append(earned, EarnedBadge{
			Badge:     b,
			Points:    b.Points(),
			SessionID: row.SessionID,
			EarnedAt:  row.EarnedAt,
		})
	}
	return earned, keys, nil
}

func totalPoints(earned []EarnedBadge) int {
	keys := make([]string, len(earned))
	for i, e := range earned {
		keys[i] = e.Key
	}
	return badge.TotalPoints(keys)
}

// Badges は獲得済みバッジ、各バッジへの進捗、合計ポイントを返す。
func (s *Service) Badges(ctx context.Context, userID string) (*BadgeSummary, error) {
	sessions, loc, err := s.completed(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, keys, err := s.earnedBadges(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := model.DateOf(s.now(), loc)
	st := s.calc.Compute(streak.DaysFromSessions(sessions), today)
	return &BadgeSummary{
		Earned:      earned,
		Progress:    badge.Progress(badge.NewStats(sessions, st, today), keys),
		TotalPoints: totalPoints(earned),
	}, nil
}

// SessionView は学習履歴の1件分。
type SessionView struct {
	ID              string              `json:"id"`
	Subject         model.Subject       `json:"subject"`
	Status          model.SessionStatus `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	SessionDate     model.Date          `json:"session_date"`
	PlannedMinutes  int                 `json:"planned_minutes"`
	DurationMinutes int                 `json:"duration_minutes"`
	Completed       bool                `json:"completed"`
	CompletedAt     *time.Time          `json:"completed_at"`
	Notes           string              `json:"notes"`
}

func newSessionView(m *model.StudySession, loc *time.Location) SessionView {
	v := SessionView{
		ID:              m.ID,
		Subject:         m.Subject,
		Status:          m.Status,
		StartedAt:       m.StartedAt.In(loc),
		SessionDate:     m.SessionDate,
		PlannedMinutes:  m.PlannedMinutes,
		DurationMinutes: m.DurationMinutes,
		Completed:       m.Completed,
		Notes:           m.Notes,
	}
	if m.CompletedAt != nil {
		t := m.CompletedAt.In(loc)
		v.CompletedAt = &t
	}
	return v
}

func (s *Service) recent(ctx context.Context, userID string, limit int, loc *time.Location) ([]SessionView, error) {
	rows, err := s.sessions.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("学習履歴の取得に失敗しました: %w", err)
	}
	views := make([]SessionView, len(rows))
	for i, row := range rows {
		views[i] = newSessionView(row, loc)
	}
	return views, nil
}

// Dashboard はダッシュボードの表示内容。
type Dashboard struct {
	Timezone string `json:"timezone"`
	streak.Status
	Analytics
	RecentSessions []SessionView `json:"recent_sessions"`
	EarnedBadges   []EarnedBadge `json:"earned_badges"`
	TotalPoints    int           `json:"total_points"`
}

// Dashboard はストリーク状況と学習統計をまとめて返す。
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	sessions, loc, err := s.completed(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, _, err := s.earnedBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.recent(ctx, userID, dashboardRecent, loc)
	if err != nil {
		return nil, err
	}

	today := model.DateOf(s.now(), loc)
	return &Dashboard{
		Timezone:       loc.String(),
		Status:         s.calc.Status(streak.DaysFromSessions(sessions), today),
		Analytics:      Analyze(sessions, today),
		RecentSessions: recent,
		EarnedBadges:   earned,
		TotalPoints:    totalPoints(earned),
	}, nil
}

// History は学習履歴の一覧。
type History struct {
	Sessions       []SessionView   `json:"sessions"`
	Subjects       []model.Subject `json:"subjects"`
	TotalTime      int             `json:"total_time"`
	CompletedCount int             `json:"completed_count"`
}

// History は直近の学習履歴と、その中の科目一覧・合計時間・完了件数を返す。
// limitが範囲外の場合はデフォルト値または上限に丸める。
func (s *Service) History(ctx context.Context, userID string, limit int) (*History, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	loc, err := s.location(ctx, userID)
	if err != nil {
		return nil, err
	}
	views, err := s.recent(ctx, userID, limit, loc)
	if err != nil {
		return nil, err
	}

	h := &History{Sessions: views, Subjects: []model.Subject{}}
	seen := make(map[model.Subject]bool)
	for _, v := range views {
		if !seen[v.Subject] {
			seen[v.Subject] = true
			h.Subjects = append(h.Subjects, v.Subject)
		}
		if v.Status == model.SessionStatusCompleted {
			h.TotalTime += v.DurationMinutes
			h.CompletedCount++
		}
	}
	return h, nil
}
