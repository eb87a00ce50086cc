package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/studystreak/internal/middleware"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Profile は訪問者のプロフィールを返す。
	Profile(ctx context.Context, userID string) (*userResponse, error)
	// UpdateTimezone は訪問者のタイムゾーンを変更する。
	UpdateTimezone(ctx context.Context, userID, timezone string) (*userResponse, error)
}

// SessionTerminator はログインセッションを破棄するインターフェース。
// auth.Serviceが満たす。
type SessionTerminator interface {
	Logout(ctx context.Context, sessionID string) error
}

// UserHandler は訪問者自身のプロフィールとセッションのHTTPハンドラー。
type UserHandler struct {
	service      UserServiceInterface
	terminator   SessionTerminator
	cookieConfig middleware.VisitorCookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, terminator SessionTerminator, cookieConfig middleware.VisitorCookieConfig) *UserHandler {
	return &UserHandler{
		service:      service,
		terminator:   terminator,
		cookieConfig: cookieConfig,
	}
}

// userResponse は訪問者情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

// updateTimezoneRequest はタイムゾーン変更リクエストのボディ。
type updateTimezoneRequest struct {
	Timezone string `json:"timezone"`
}

// Me は訪問者自身の情報を返す。
// GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateTimezone は訪問者のタイムゾーンを変更する。
// PUT /api/me/timezone
func (h *UserHandler) UpdateTimezone(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateTimezoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateTimezone(r.Context(), userID, req.Timezone)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Logout はこの端末のログインセッションを破棄し、Cookieを削除する。
// 学習記録は削除しない。次のリクエストでは新しい訪問者として扱われる。
// DELETE /api/session
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err == nil {
		if err := h.terminator.Logout(r.Context(), sessionID); err != nil {
			slog.Error("failed to delete session",
				slog.String("error", err.Error()),
			)
		}
	}

	middleware.ClearSessionCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}
