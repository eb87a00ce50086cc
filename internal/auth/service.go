// Package auth は訪問者の識別とCookieセッション管理を提供する。
// アカウント登録はなく、初回アクセス時に訪問者ユーザーを自動作成する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/repository"
)

// ServiceConfig は訪問者サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int    // セッション有効期間（秒）
	DefaultTimezone string // タイムゾーンが不明な訪問者に割り当てるIANA名
}

// Visitor は解決済みの訪問者を表す。
type Visitor struct {
	Session *model.Session
	// Created は今回のリクエストで訪問者を新規作成したかどうか。
	Created bool
	// Refreshed はセッションの有効期限を延長したかどうか。Cookieの再発行に使う。
	Refreshed bool
}

// Service は訪問者の識別に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if !model.ValidTimezone(config.DefaultTimezone) {
		config.DefaultTimezone = "UTC"
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

func (s *Service) maxAge() time.Duration {
	return time.Duration(s.config.SessionMaxAge) * time.Second
}

// Resolve はCookieのセッションIDから訪問者を特定する。
// セッションが存在しないか期限切れの場合は、timezoneを初期値として新しい訪問者を作成する。
// 有効期限の残りが半分を切ったセッションは延長する。
func (s *Service) Resolve(ctx context.Context, sessionID, timezone string) (*Visitor, error) {
	if sessionID != "" {
		session, err := s.sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to find session: %w", err)
		}
		if session != nil {
			return s.refresh(ctx, session), nil
		}
	}

	session, err := s.createVisitor(ctx, timezone)
	if err != nil {
		return nil, err
	}
	return &Visitor{Session: session, Created: true}, nil
}

// refresh はスライディング方式でセッションの有効期限を延長する。
// 延長に失敗しても現在のセッションはそのまま使う。
func (s *Service) refresh(ctx context.Context, session *model.Session) *Visitor {
	v := &Visitor{Session: session}
	now := s.now()
	if session.ExpiresAt.Sub(now) > s.maxAge()/2 {
		return v
	}

	expiresAt := now.Add(s.maxAge())
	ok, err := s.sessionRepo.Extend(ctx, session.ID, expiresAt)
	if err != nil {
		slog.Warn("failed to extend session",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return v
	}
	if ok {
		session.ExpiresAt = expiresAt
		v.Refreshed = true
	}
	return v
}

// createVisitor はusersレコードとセッションを同一トランザクションで作成する。
func (s *Service) createVisitor(ctx context.Context, timezone string) (*model.Session, error) {
	if !model.ValidTimezone(timezone) {
		timezone = s.config.DefaultTimezone
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Timezone:  timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.maxAge()),
		CreatedAt: now,
	}

	if err := s.userRepo.CreateWithSession(ctx, user, session); err != nil {
		return nil, fmt.Errorf("failed to create visitor: %w", err)
	}

	slog.Info("new visitor created",
		slog.String("user_id", user.ID),
		slog.String("timezone", timezone),
	)
	return session, nil
}

// Logout はセッションを破棄する。学習記録は残り、次回アクセス時は新しい訪問者になる。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("visitor logged out", slog.String("session_id", sessionID))
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
