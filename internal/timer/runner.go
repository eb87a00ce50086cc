package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/studystreak/internal/model"
)

// SessionAPI はRunnerが利用するセッションAPI。
type SessionAPI interface {
	StartSession(ctx context.Context, subject model.Subject, minutes int) (string, error)
	CompleteSession(ctx context.Context, sessionID string, minutes int) (*model.CompletionResult, error)
	CancelSession(ctx context.Context, sessionID string) error
}

// Result はタイマー1回分の終了結果。
type Result struct {
	Canceled bool
	Minutes  int
	// Local はサーバーで確定できなかったことを示す。この場合バッジは付与されない。
	Local      bool
	Completion *model.CompletionResult
	Err        error
}

// Options はRunnerの動作設定。
type Options struct {
	// ViewID はこのビューの識別子。空なら生成する。
	ViewID       string
	Now          func() time.Time
	TickInterval time.Duration
	CallTimeout  time.Duration
	Logger       *slog.Logger
}

const (
	defaultTickInterval = time.Second
	defaultCallTimeout  = 10 * time.Second
	resultBuffer        = 8
)

// Runner は1ビュー分のタイマー状態を所有し、1秒ごとのティックと副作用を実行する。
// すべての遷移は mu で直列化する。
type Runner struct {
	userID string
	api    SessionAPI
	store  SnapshotStore
	bus    Bus
	opts   Options

	mu       sync.Mutex
	state    State
	tickStop chan struct{}
	lastSnap Snapshot
	// rev と revOrigin は最後に保存または取り込んだ版。
	rev       int64
	revOrigin string

	// gen はセッション作成依頼ごとに増える世代番号。
	gen      uint64
	inflight map[uint64]bool
	// finished は作成応答より先に終了した世代の結果。
	finished map[uint64]finish

	results chan Result
}

// NewRunner はRunnerを生成する。storeとbusはnilでもよい。
func NewRunner(userID string, api SessionAPI, store SnapshotStore, bus Bus, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ViewID == "" {
		opts.ViewID = uuid.NewString()
	}
	return &Runner{
		userID:   userID,
		api:      api,
		store:    store,
		bus:      bus,
		opts:     opts,
		inflight: make(map[uint64]bool),
		finished: make(map[uint64]finish),
		results:  make(chan Result, resultBuffer),
	}
}

type finish struct {
	completed bool
	minutes   int
}

// Results は完了・キャンセルの結果を受け取るチャネルを返す。
func (r *Runner) Results() <-chan Result {
	return r.results
}

// State は現在の状態のコピーを返す。
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start はタイマーを開始（一時停止中なら再開）する。
func (r *Runner) Start(ctx context.Context, subject model.Subject, minutes int) error {
	if _, ok := model.ParseSubject(string(subject)); !ok {
		return model.NewInvalidSubjectError(string(subject))
	}
	if minutes < 1 {
		return model.NewInvalidDurationError(minutes)
	}
	r.transition(ctx, func(s State, now time.Time) (State, Outcome) {
		return Start(s, subject, minutes, now)
	})
	return nil
}

// Pause はタイマーを一時停止する。
func (r *Runner) Pause(ctx context.Context) {
	r.transition(ctx, Pause)
}

// Resume は一時停止中のタイマーを再開する。
func (r *Runner) Resume(ctx context.Context) {
	r.transition(ctx, Resume)
}

// Stop はタイマーを手動で止める。結果は Results に届く。
func (r *Runner) Stop(ctx context.Context) {
	r.transition(ctx, Stop)
}

// Reset は終了状態のタイマーを待機状態に戻す。
func (r *Runner) Reset(ctx context.Context) {
	r.transition(ctx, func(s State, _ time.Time) (State, Outcome) {
		return Reset(s)
	})
}

// Restore は保存済みのスナップショットから状態を復元する。
func (r *Runner) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snap, err := r.store.Load(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("failed to restore timer: %w", err)
	}
	if snap != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.rev = max(r.rev, snap.Revision)
		r.applyLocked(*snap)
	}
	return nil
}

// Follow は他のビューが配信したスナップショットを取り込み続ける。ctxの終了で停止する。
func (r *Runner) Follow(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}
	ch, cancel, err := r.bus.Subscribe(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("failed to follow timer events: %w", err)
	}
	go func() {
		defer cancel()
		for snap := range ch {
			r.adopt(snap)
		}
	}()
	return nil
}

// Close はティックを停止する。
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTickerLocked()
}

// effects はロック解放後に実行する副作用。
type effects struct {
	create     bool
	gen        uint64
	subject    model.Subject
	minutes    int
	completeID string
	cancelID   string
	result     *Result
}

func (r *Runner) transition(ctx context.Context, fn func(State, time.Time) (State, Outcome)) {
	r.mu.Lock()
	next, out := fn(r.state, r.opts.Now())
	eff := r.commitLocked(ctx, next, out)
	r.mu.Unlock()
	r.run(eff)
}

// commitLocked は遷移結果を反映し、必要なら保存と配信を行う。r.mu を保持して呼ぶ。
func (r *Runner) commitLocked(ctx context.Context, next State, out Outcome) effects {
	prev := r.state
	r.state = next
	if !out.Changed {
		return effects{}
	}

	// 完了処理より先にティックを止める
	if next.Phase == PhaseRunning {
		if r.tickStop == nil {
			r.startTickerLocked()
		}
	} else {
		r.stopTickerLocked()
	}

	if prev.Phase != next.Phase || prev.SessionID != next.SessionID {
		r.persistLocked(ctx)
	}

	var eff effects
	if out.RequestSession {
		r.gen++
		r.inflight[r.gen] = true
		eff.create = true
		eff.gen = r.gen
		eff.subject = next.Subject
		eff.minutes = next.DurationMinutes
	}

	if out.Complete {
		eff.completeID = next.SessionID
		eff.minutes = out.Minutes
	}
	if out.Cancel {
		eff.cancelID = next.SessionID
	}
	if !prev.Phase.Terminal() && next.Phase.Terminal() {
		creating := r.inflight[r.gen] && next.SessionID == ""
		if creating {
			r.finished[r.gen] = finish{completed: next.Phase == PhaseCompleted, minutes: next.StudiedMinutes}
		}
		switch {
		case next.Phase == PhaseCanceled:
			eff.result = &Result{Canceled: true}
		case !out.Complete && !creating:
			// サーバーのセッションIDがないためローカルのみで完了する
			eff.result = &Result{Minutes: next.StudiedMinutes, Local: true}
		}
	}
	return eff
}

// ViewID はこのビューの識別子を返す。
func (r *Runner) ViewID() string {
	return r.opts.ViewID
}

func (r *Runner) persistLocked(ctx context.Context) {
	r.rev++
	r.revOrigin = r.opts.ViewID
	snap := SnapshotOf(r.state)
	snap.Origin = r.opts.ViewID
	snap.Revision = r.rev
	r.lastSnap = snap
	if r.store != nil {
		if err := r.store.Save(ctx, r.userID, snap); err != nil {
			r.opts.Logger.Warn("failed to save timer snapshot",
				slog.String("user_id", r.userID),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.bus != nil {
		if err := r.bus.Publish(ctx, r.userID, snap); err != nil {
			r.opts.Logger.Warn("failed to publish timer snapshot",
				slog.String("user_id", r.userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Runner) run(eff effects) {
	if eff.create {
		go r.createSession(eff.gen, eff.subject, eff.minutes)
	}
	if eff.completeID != "" {
		r.completeSession(eff.completeID, eff.minutes)
	}
	if eff.cancelID != "" {
		r.cancelSession(eff.cancelID)
	}
	if eff.result != nil {
		r.emit(*eff.result)
	}
}

func (r *Runner) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opts.CallTimeout)
}

func (r *Runner) createSession(gen uint64, subject model.Subject, minutes int) {
	ctx, cancel := r.callContext()
	defer cancel()

	id, err := r.api.StartSession(ctx, subject, minutes)
	if err != nil {
		r.opts.Logger.Warn("failed to create study session, continuing locally",
			slog.String("user_id", r.userID),
			slog.String("error", err.Error()),
		)
	}

	r.mu.Lock()
	delete(r.inflight, gen)
	fin, done := r.finished[gen]
	delete(r.finished, gen)

	switch {
	case done:
		// 応答より先にタイマーが終了していた
		r.mu.Unlock()
		var eff effects
		switch {
		case !fin.completed && err == nil:
			eff.cancelID = id
		case fin.completed && err == nil:
			eff.completeID = id
			eff.minutes = fin.minutes
		case fin.completed:
			eff.result = &Result{Minutes: fin.minutes, Local: true, Err: err}
		}
		r.run(eff)
	case err != nil:
		r.mu.Unlock()
	case gen != r.gen:
		// 後続のタイマーに置き換えられたセッションは破棄する
		r.mu.Unlock()
		r.cancelSession(id)
	default:
		next, out := AttachSession(r.state, id)
		eff := r.commitLocked(ctx, next, out)
		r.mu.Unlock()
		r.run(eff)
	}
}

func (r *Runner) completeSession(sessionID string, minutes int) {
	ctx, cancel := r.callContext()
	defer cancel()

	res, err := r.api.CompleteSession(ctx, sessionID, minutes)
	if err != nil {
		r.opts.Logger.Warn("failed to complete study session, reporting locally",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		r.emit(Result{Minutes: minutes, Local: true, Err: err})
		return
	}
	r.emit(Result{Minutes: minutes, Completion: res})
}

func (r *Runner) cancelSession(sessionID string) {
	ctx, cancel := r.callContext()
	defer cancel()

	if err := r.api.CancelSession(ctx, sessionID); err != nil {
		r.opts.Logger.Warn("failed to cancel study session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) emit(res Result) {
	select {
	case r.results <- res:
	default:
		r.opts.Logger.Warn("timer result dropped", slog.String("user_id", r.userID))
	}
}

func (r *Runner) startTickerLocked() {
	stop := make(chan struct{})
	r.tickStop = stop
	go r.tickLoop(stop)
}

func (r *Runner) stopTickerLocked() {
	if r.tickStop != nil {
		close(r.tickStop)
		r.tickStop = nil
	}
}

func (r *Runner) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.tick(stop)
		}
	}
}

func (r *Runner) tick(stop chan struct{}) {
	r.mu.Lock()
	select {
	case <-stop:
		// 停止済みのティッカーからの遅延ティックは無視する
		r.mu.Unlock()
		return
	default:
	}
	ctx, cancel := r.callContext()
	defer cancel()
	next, out := Tick(r.state, r.opts.Now())
	eff := r.commitLocked(ctx, next, out)
	r.mu.Unlock()
	r.run(eff)
}

// adopt は他のビューのスナップショットを自分の状態として取り込む。
// 自分が配信したもの（エコー）と、取り込み済みの版以前のものは無視する。
func (r *Runner) adopt(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap == r.lastSnap {
		return
	}
	if snap.Origin != "" && snap.Origin == r.opts.ViewID {
		return
	}
	if snap.Revision != 0 {
		if !snap.NewerThan(r.rev, r.revOrigin) {
			return
		}
		r.rev = snap.Revision
		r.revOrigin = snap.Origin
	}
	r.applyLocked(snap)
}

func (r *Runner) applyLocked(snap Snapshot) {
	r.lastSnap = snap

	next := snap.State(r.opts.Now())
	// 同じタイマーのスナップショットで既知のセッションIDを消さない
	if next.SessionID == "" && r.state.SessionID != "" && (next.Phase == PhaseRunning || next.Phase == PhasePaused) &&
		next.StartedAt.Equal(r.state.StartedAt) {
		next.SessionID = r.state.SessionID
	}
	r.state = next
	if r.state.Phase == PhaseRunning {
		if r.tickStop == nil {
			r.startTickerLocked()
		}
	} else {
		r.stopTickerLocked()
	}
}
