package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studystreak/internal/model"
)

// TimerServiceInterface はタイマーハンドラーが必要とする学習セッションのサービスインターフェース。
type TimerServiceInterface interface {
	// StartSession はactiveな学習セッションを作成する。
	StartSession(ctx context.Context, userID string, req startSessionRequest) (*startSessionResponse, error)
	// CompleteSession は学習セッションを完了し、ストリークと新規バッジを返す。
	CompleteSession(ctx context.Context, userID, sessionID string, minutes int) (*model.CompletionResult, error)
	// CancelSession は学習セッションを破棄する。
	CancelSession(ctx context.Context, userID, sessionID string) error
}

// TimerHandler は学習セッションのHTTPハンドラー。
type TimerHandler struct {
	service TimerServiceInterface
}

// NewTimerHandler はTimerHandlerを生成する。
func NewTimerHandler(service TimerServiceInterface) *TimerHandler {
	return &TimerHandler{service: service}
}

// startSessionRequest はタイマー開始リクエストのボディ。
type startSessionRequest struct {
	Subject         string `json:"subject"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes,omitempty"`
}

// startSessionResponse はタイマー開始のAPIレスポンス。
type startSessionResponse struct {
	SessionID       string     `json:"session_id"`
	Subject         string     `json:"subject"`
	DurationMinutes int        `json:"duration_minutes"`
	StartedAt       time.Time  `json:"started_at"`
	SessionDate     model.Date `json:"session_date"`
}

// completeSessionRequest はタイマー完了リクエストのボディ。
// completed が省略された場合は完了として扱う。
type completeSessionRequest struct {
	SessionID       string `json:"session_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Completed       *bool  `json:"completed"`
}

// discardedResponse は completed=false で破棄したセッションのレスポンス。
type discardedResponse struct {
	SessionID string              `json:"session_id"`
	Status    model.SessionStatus `json:"status"`
}

// Start は学習セッションを作成する。
// POST /api/timer/start
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.StartSession(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Complete は学習セッションを完了する。completed=false の場合はキャンセルとして扱う。
// POST /api/timer/complete
func (h *TimerHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req completeSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "session_idが指定されていません。",
			Category: "validation",
			Action:   "タイマーを開始し直してください。",
		})
		return
	}

	if req.Completed != nil && !*req.Completed {
		if err := h.service.CancelSession(r.Context(), userID, req.SessionID); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, discardedResponse{
			SessionID: req.SessionID,
			Status:    model.SessionStatusCanceled,
		})
		return
	}

	result, err := h.service.CompleteSession(r.Context(), userID, req.SessionID, req.DurationMinutes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Cancel は学習セッションを破棄する。
// DELETE /api/timer/cancel/{session_id}
func (h *TimerHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "session_id")
	if err := h.service.CancelSession(r.Context(), userID, sessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
