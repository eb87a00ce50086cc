package handler

import (
	"context"

	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/study"
	"github.com/hitoshi/studystreak/internal/user"
)

// TimerServiceAdapter は study.Service を TimerServiceInterface に適合させるアダプタ。
type TimerServiceAdapter struct {
	svc *study.Service
}

// NewTimerServiceAdapter はTimerServiceAdapterを生成する。
func NewTimerServiceAdapter(svc *study.Service) *TimerServiceAdapter {
	return &TimerServiceAdapter{svc: svc}
}

// StartSession は学習セッションを作成しhandlerレスポンス型で返す。
func (a *TimerServiceAdapter) StartSession(ctx context.Context, userID string, req startSessionRequest) (*startSessionResponse, error) {
	session, err := a.svc.StartSession(ctx, userID, study.StartRequest{
		Subject:         req.Subject,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		return nil, err
	}

	return &startSessionResponse{
		SessionID:       session.ID,
		Subject:         string(session.Subject),
		DurationMinutes: session.PlannedMinutes,
		StartedAt:       session.StartedAt,
		SessionDate:     session.SessionDate,
	}, nil
}

// CompleteSession は学習セッションを完了する。
func (a *TimerServiceAdapter) CompleteSession(ctx context.Context, userID, sessionID string, minutes int) (*model.CompletionResult, error) {
	return a.svc.CompleteSession(ctx, userID, sessionID, minutes)
}

// CancelSession は学習セッションを破棄する。
func (a *TimerServiceAdapter) CancelSession(ctx context.Context, userID, sessionID string) error {
	return a.svc.CancelSession(ctx, userID, sessionID)
}

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// Profile は訪問者のプロフィールをhandlerレスポンス型で返す。
func (a *UserServiceAdapter) Profile(ctx context.Context, userID string) (*userResponse, error) {
	u, err := a.svc.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserResponse(u), nil
}

// UpdateTimezone はタイムゾーンを変更しhandlerレスポンス型で返す。
func (a *UserServiceAdapter) UpdateTimezone(ctx context.Context, userID, timezone string) (*userResponse, error) {
	u, err := a.svc.UpdateTimezone(ctx, userID, timezone)
	if err != nil {
		return nil, err
	}
	return toUserResponse(u), nil
}

func toUserResponse(u *model.User) *userResponse {
	return &userResponse{
		ID:        u.ID,
		Timezone:  u.Timezone,
		CreatedAt: u.CreatedAt,
	}
}

// --- compile-time interface checks ---

var _ TimerServiceInterface = (*TimerServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)
var _ StatsServiceInterface = (*study.Service)(nil)
