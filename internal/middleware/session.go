// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/studystreak/internal/auth"
)

const (
	sessionCookieName = "session_id"

	// timezoneHeaderName は新規訪問者のタイムゾーンをクライアントから受け取るヘッダー名。
	timezoneHeaderName = "X-Timezone"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
)

// VisitorResolver はCookieのセッションIDから訪問者を特定するインターフェース。
// auth.Serviceが満たす。
type VisitorResolver interface {
	Resolve(ctx context.Context, sessionID, timezone string) (*auth.Visitor, error)
}

// VisitorCookieConfig はセッションCookieの設定。
type VisitorCookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// NewVisitorMiddleware はHTTP Only Cookieから訪問者を特定するミドルウェアを返す。
// Cookieがない、または無効な場合は新しい訪問者を作成してCookieを発行する。
// 訪問者のユーザーIDとセッションIDをリクエストコンテキストに注入する。
func NewVisitorMiddleware(resolver VisitorResolver, config VisitorCookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			var sessionID string
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			// 2. 訪問者を特定（必要なら作成）
			visitor, err := resolver.Resolve(r.Context(), sessionID, r.Header.Get(timezoneHeaderName))
			if err != nil {
				slog.Error("failed to resolve visitor",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// 3. 新規作成または延長した場合はCookieを発行し直す
			if visitor.Created || visitor.Refreshed {
				SetSessionCookie(w, visitor.Session.ID, config)
			}

			// 4. ユーザーIDとセッションIDをコンテキストに注入
			ctx := context.WithValue(r.Context(), userIDContextKey, visitor.Session.UserID)
			ctx = context.WithValue(ctx, sessionIDContextKey, visitor.Session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, sessionID string, config VisitorCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config VisitorCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 訪問者ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
