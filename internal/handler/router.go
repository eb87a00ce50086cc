// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studystreak/internal/metrics"
	"github.com/hitoshi/studystreak/internal/middleware"
	"github.com/hitoshi/studystreak/internal/timer"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	VisitorResolver   middleware.VisitorResolver
	CookieConfig      middleware.VisitorCookieConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（nilの場合は /metrics を公開しない）
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 学習セッション
	TimerService TimerServiceInterface
	StatsService StatsServiceInterface

	// タイマー状態
	SnapshotStore timer.SnapshotStore
	SnapshotBus   timer.Bus

	// 訪問者
	UserService       UserServiceInterface
	SessionTerminator SessionTerminator
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Logging
//	  → Visitor → CSRF → RateLimit(General)
//
// /health、/metrics、/api/csrf-token は訪問者の作成を伴わない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieConfig.Secure,
		CookieDomain: deps.CookieConfig.Domain,
	}

	timerHandler := NewTimerHandler(deps.TimerService)
	stateHandler := NewTimerStateHandler(deps.SnapshotStore, deps.SnapshotBus)
	statsHandler := NewStatsHandler(deps.StatsService)
	userHandler := NewUserHandler(deps.UserService, deps.SessionTerminator, deps.CookieConfig)

	// --- 訪問者不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	// --- 訪問者ルート ---
	// ミドルウェアスタック: Visitor → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewVisitorMiddleware(deps.VisitorResolver, deps.CookieConfig))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// タイマー
		r.Route("/api/timer", func(r chi.Router) {
			// POST /api/timer/start - 開始専用レート制限を追加
			r.With(deps.RateLimiter.TimerStartMiddleware()).Post("/start", timerHandler.Start)
			r.Post("/complete", timerHandler.Complete)
			r.Delete("/cancel/{session_id}", timerHandler.Cancel)

			r.Get("/state", stateHandler.Get)
			r.Put("/state", stateHandler.Put)
			r.Delete("/state", stateHandler.Delete)
			r.Get("/events", stateHandler.Events)
		})

		// 集計
		r.Get("/api/calendar-data", statsHandler.Calendar)
		r.Get("/api/streak/{user_id}", statsHandler.Streak)
		r.Get("/api/badges", statsHandler.Badges)
		r.Get("/api/dashboard", statsHandler.Dashboard)
		r.Get("/api/sessions", statsHandler.Sessions)

		// 訪問者
		r.Route("/api/me", func(r chi.Router) {
			r.Get("/", userHandler.Me)
			r.Put("/timezone", userHandler.UpdateTimezone)
		})
		r.Delete("/api/session", userHandler.Logout)
	})

	return r
}

// healthHandler はDB疎通を確認し、{status:"ok"}を返すハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
