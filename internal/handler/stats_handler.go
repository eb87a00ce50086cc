package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/streak"
	"github.com/hitoshi/studystreak/internal/study"
)

// StatsServiceInterface は集計系ハンドラーが必要とするサービスインターフェース。
// study.Serviceが満たす。
type StatsServiceInterface interface {
	StreakStatus(ctx context.Context, userID string) (*streak.Status, error)
	Calendar(ctx context.Context, userID string, year, month int) (map[string]streak.CalendarDay, error)
	Badges(ctx context.Context, userID string) (*study.BadgeSummary, error)
	Dashboard(ctx context.Context, userID string) (*study.Dashboard, error)
	History(ctx context.Context, userID string, limit int) (*study.History, error)
}

// StatsHandler はストリーク、カレンダー、バッジ、ダッシュボードのHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface) *StatsHandler {
	return &StatsHandler{service: service}
}

// calendarResponse はカレンダーのAPIレスポンス。
type calendarResponse struct {
	CalendarData map[string]streak.CalendarDay `json:"calendar_data"`
}

// streakResponse はストリーク情報のAPIレスポンス。
type streakResponse struct {
	StreakInfo   *streak.Status                `json:"streak_info"`
	CalendarData map[string]streak.CalendarDay `json:"calendar_data"`
}

// meAlias は自分自身のユーザーIDの代わりに使えるパス値。
const meAlias = "me"

// Calendar は指定年月の日ごとの学習状況を返す。year/month省略時は今月。
// GET /api/calendar-data?year=Y&month=M
func (h *StatsHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	yearParam := r.URL.Query().Get("year")
	monthParam := r.URL.Query().Get("month")
	var year, month int
	if yearParam != "" || monthParam != "" {
		var errY, errM error
		year, errY = strconv.Atoi(yearParam)
		month, errM = strconv.Atoi(monthParam)
		if errY != nil || errM != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMonthError(yearParam, monthParam))
			return
		}
		if year == 0 && month == 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMonthError(yearParam, monthParam))
			return
		}
	}

	days, err := h.service.Calendar(r.Context(), userID, year, month)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{CalendarData: days})
}

// Streak はストリーク状況と今月のカレンダーを返す。
// 他の訪問者のストリークは参照できず、未検出として扱う。
// GET /api/streak/{user_id}
func (h *StatsHandler) Streak(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	target := chi.URLParam(r, "user_id")
	if target != meAlias && target != userID {
		handleServiceError(w, model.NewUserNotFoundError())
		return
	}

	status, err := h.service.StreakStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	days, err := h.service.Calendar(r.Context(), userID, 0, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, streakResponse{StreakInfo: status, CalendarData: days})
}

// Badges は獲得済みバッジと進捗を返す。
// GET /api/badges
func (h *StatsHandler) Badges(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Badges(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Dashboard はダッシュボードの集計を返す。
// GET /api/dashboard
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	dashboard, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Sessions は直近の学習履歴を返す。limitが数値でない場合はデフォルト件数を使う。
// GET /api/sessions?limit=N
func (h *StatsHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}
