package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/timer"
)

const (
	// maxSnapshotBytes はタイマー状態として受け付けるボディの上限。
	maxSnapshotBytes = 4 << 10

	// eventsKeepAlive はイベントストリームでコメント行を送る間隔。
	eventsKeepAlive = 25 * time.Second
)

var errEventsUnavailable = &model.APIError{
	Code:     "EVENTS_UNAVAILABLE",
	Message:  "タイマーイベントの配信を利用できません。",
	Category: "system",
	Action:   "GET /api/timer/state で状態を取得してください。",
}

// TimerStateHandler はビュー間で共有するタイマー状態のHTTPハンドラー。
type TimerStateHandler struct {
	store timer.SnapshotStore
	bus   timer.Bus
}

// NewTimerStateHandler はTimerStateHandlerを生成する。busがnilの場合は配信しない。
func NewTimerStateHandler(store timer.SnapshotStore, bus timer.Bus) *TimerStateHandler {
	return &TimerStateHandler{store: store, bus: bus}
}

// Get は保存済みのタイマー状態を返す。未保存の場合は null を返す。
// GET /api/timer/state
func (h *TimerStateHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	snap, err := h.store.Load(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Put はタイマー状態を保存し、同じ訪問者の他のビューへ配信する。
// PUT /api/timer/state
func (h *TimerStateHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes+1))
	if err != nil || len(body) > maxSnapshotBytes {
		writeAPIErrorResponse(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	snap, err := timer.DecodeSnapshot(body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.store.Save(r.Context(), userID, snap); err != nil {
		handleServiceError(w, err)
		return
	}
	h.publish(r, userID, snap)

	w.WriteHeader(http.StatusNoContent)
}

// Delete はタイマー状態を削除し、アイドル状態を配信する。
// DELETE /api/timer/state
func (h *TimerStateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.publish(r, userID, timer.SnapshotOf(timer.State{}))

	w.WriteHeader(http.StatusNoContent)
}

// Events は同じ訪問者のタイマー状態の変更をServer-Sent Eventsで配信する。
// 接続直後に保存済みの状態があればそれを送り、以降は変更ごとに snapshot イベントを送る。
// GET /api/timer/events
func (h *TimerStateHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if h.bus == nil {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, errEventsUnavailable)
		return
	}

	ctx := r.Context()
	ch, unsubscribe, err := h.bus.Subscribe(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer unsubscribe()

	current, err := h.store.Load(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// サーバー全体のWriteTimeoutはストリームには適用しない
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if current != nil {
		if err := writeSnapshotEvent(w, *current); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		slog.Warn("timer events: flush not supported", slog.String("error", err.Error()))
		return
	}

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSnapshotEvent(w, snap); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSnapshotEvent(w io.Writer, snap timer.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

// publish は配信の失敗をログに残すだけで、保存結果には影響させない。
func (h *TimerStateHandler) publish(r *http.Request, userID string, snap timer.Snapshot) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(r.Context(), userID, snap); err != nil {
		slog.Warn("failed to publish timer snapshot",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
