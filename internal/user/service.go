// Package user は訪問者プロフィールのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/repository"
)

// Service はユーザー管理のサービス層。
// プロフィール取得とタイムゾーン変更のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Profile はユーザーのプロフィールを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateTimezone はユーザーのタイムゾーンを変更する。
// 以後のストリーク判定は新しいタイムゾーンの暦日で行うが、記録済みセッションの日付は変わらない。
func (s *Service) UpdateTimezone(ctx context.Context, userID, timezone string) (*model.User, error) {
	if !model.ValidTimezone(timezone) {
		return nil, model.NewInvalidTimezoneError(timezone)
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Timezone == timezone {
		return user, nil
	}

	if err := s.userRepo.UpdateTimezone(ctx, userID, timezone); err != nil {
		return nil, fmt.Errorf("タイムゾーンの更新に失敗しました: %w", err)
	}

	slog.Info("タイムゾーンを変更しました",
		slog.String("user_id", userID),
		slog.String("from", user.Timezone),
		slog.String("to", timezone),
	)

	user.Timezone = timezone
	return user, nil
}
