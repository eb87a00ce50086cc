package timer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
)

// mockSessionAPI はSessionAPIのモック実装。
type mockSessionAPI struct {
	startFn    func(ctx context.Context, subject model.Subject, minutes int) (string, error)
	completeFn func(ctx context.Context, sessionID string, minutes int) (*model.CompletionResult, error)
	cancelFn   func(ctx context.Context, sessionID string) error

	completeCalls atomic.Int32
	cancelCalls   atomic.Int32
}

func (m *mockSessionAPI) StartSession(ctx context.Context, subject model.Subject, minutes int) (string, error) {
	if m.startFn != nil {
		return m.startFn(ctx, subject, minutes)
	}
	return "sess-1", nil
}

func (m *mockSessionAPI) CompleteSession(ctx context.Context, sessionID string, minutes int) (*model.CompletionResult, error) {
	m.completeCalls.Add(1)
	if m.completeFn != nil {
		return m.completeFn(ctx, sessionID, minutes)
	}
	return &model.CompletionResult{SessionID: sessionID, NewStreak: 1}, nil
}

func (m *mockSessionAPI) CancelSession(ctx context.Context, sessionID string) error {
	m.cancelCalls.Add(1)
	if m.cancelFn != nil {
		return m.cancelFn(ctx, sessionID)
	}
	return nil
}

// fakeClock はテストから進められる時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRunner(api SessionAPI, clock *fakeClock, store SnapshotStore, bus Bus) *Runner {
	return NewRunner("user-1", api, store, bus, Options{
		Now:          clock.Now,
		TickInterval: time.Millisecond,
		CallTimeout:  time.Second,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func nextResult(t *testing.T, r *Runner) Result {
	t.Helper()
	select {
	case res := <-r.Results():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return Result{}
}

func expectNoResult(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case res := <-r.Results():
		t.Errorf("unexpected extra result: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunner_StartRejectsInvalidInput(t *testing.T) {
	r := newTestRunner(&mockSessionAPI{}, newFakeClock(), nil, nil)
	defer r.Close()

	var apiErr *model.APIError
	if err := r.Start(context.Background(), "Art", 25); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidSubject {
		t.Errorf("Start(Art) = %v", err)
	}
	if err := r.Start(context.Background(), model.SubjectMath, 0); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidDuration {
		t.Errorf("Start(0) = %v", err)
	}
	if r.State().Phase != PhaseIdle {
		t.Error("invalid start changed phase")
	}
}

func TestRunner_TickToZeroCompletesOnce(t *testing.T) {
	api := &mockSessionAPI{}
	clock := newFakeClock()
	r := newTestRunner(api, clock, nil, nil)
	defer r.Close()

	if err := r.Start(context.Background(), model.SubjectMath, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return r.State().SessionID == "sess-1" })

	// ティックによる完了と手動停止が競合しても完了は1回だけ
	clock.Advance(time.Minute)
	r.Stop(context.Background())

	res := nextResult(t, r)
	if res.Local || res.Completion == nil || res.Minutes != 1 {
		t.Errorf("result = %+v", res)
	}
	expectNoResult(t, r)
	if got := api.completeCalls.Load(); got != 1 {
		t.Errorf("CompleteSession called %d times, want 1", got)
	}
	if r.State().Phase != PhaseCompleted {
		t.Errorf("Phase = %s", r.State().Phase)
	}
}

func TestRunner_StopUnderOneMinuteCancels(t *testing.T) {
	api := &mockSessionAPI{}
	clock := newFakeClock()
	r := newTestRunner(api, clock, nil, nil)
	defer r.Close()

	_ = r.Start(context.Background(), model.SubjectScience, 25)
	waitFor(t, func() bool { return r.State().SessionID != "" })

	clock.Advance(40 * time.Second)
	r.Stop(context.Background())

	res := nextResult(t, r)
	if !res.Canceled {
		t.Errorf("result = %+v, want canceled", res)
	}
	if api.cancelCalls.Load() != 1 || api.completeCalls.Load() != 0 {
		t.Errorf("cancel=%d complete=%d", api.cancelCalls.Load(), api.completeCalls.Load())
	}
}

func TestRunner_NetworkFailureDegradesToLocalCompletion(t *testing.T) {
	api := &mockSessionAPI{
		startFn: func(context.Context, model.Subject, int) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	clock := newFakeClock()
	r := newTestRunner(api, clock, nil, nil)
	defer r.Close()

	_ = r.Start(context.Background(), model.SubjectEnglish, 25)
	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.inflight) == 0
	})

	// 作成に失敗してもカウントダウンは続く
	clock.Advance(5 * time.Minute)
	waitFor(t, func() bool { return r.State().RemainingSeconds == 1200 })

	r.Stop(context.Background())
	res := nextResult(t, r)
	if !res.Local || res.Minutes != 5 || res.Completion != nil {
		t.Errorf("result = %+v, want local completion of 5 minutes", res)
	}
	if api.completeCalls.Load() != 0 {
		t.Error("CompleteSession must not be called without a session id")
	}
}

func TestRunner_CompleteFailureReportsLocal(t *testing.T) {
	api := &mockSessionAPI{
		completeFn: func(context.Context, string, int) (*model.CompletionResult, error) {
			return nil, errors.New("timeout")
		},
	}
	clock := newFakeClock()
	r := newTestRunner(api, clock, nil, nil)
	defer r.Close()

	_ = r.Start(context.Background(), model.SubjectHistory, 25)
	waitFor(t, func() bool { return r.State().SessionID != "" })
	clock.Advance(10 * time.Minute)
	r.Stop(context.Background())

	res := nextResult(t, r)
	if !res.Local || res.Err == nil || res.Minutes != 10 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunner_StopBeforeSessionCreatedCompletesLate(t *testing.T) {
	release := make(chan struct{})
	api := &mockSessionAPI{
		startFn: func(context.Context, model.Subject, int) (string, error) {
			<-release
			return "late-1", nil
		},
	}
	clock := newFakeClock()
	r := newTestRunner(api, clock, nil, nil)
	defer r.Close()

	_ = r.Start(context.Background(), model.SubjectMath, 25)
	clock.Advance(3 * time.Minute)
	r.Stop(context.Background())
	expectNoResult(t, r)

	close(release)
	res := nextResult(t, r)
	if res.Local || res.Completion == nil || res.Completion.SessionID != "late-1" || res.Minutes != 3 {
		t.Errorf("result = %+v", res)
	}
	if api.completeCalls.Load() != 1 {
		t.Errorf("CompleteSession called %d times", api.completeCalls.Load())
	}
}

func TestRunner_PersistsAndPublishesOnTransitions(t *testing.T) {
	store := NewMemorySnapshotStore()
	bus := NewMemoryBus()
	ch, cancel, _ := bus.Subscribe(context.Background(), "user-1")
	defer cancel()

	clock := newFakeClock()
	r := newTestRunner(&mockSessionAPI{}, clock, store, bus)
	defer r.Close()

	_ = r.Start(context.Background(), model.SubjectMath, 25)
	first := receive(t, ch)
	if !first.IsRunning || first.TotalTime != 1500 || first.StartTime != t0.UnixMilli() {
		t.Errorf("first snapshot = %+v", first)
	}

	// セッションID取得後にも保存される
	attached := receive(t, ch)
	if attached.SessionID != "sess-1" {
		t.Errorf("attached snapshot = %+v", attached)
	}

	clock.Advance(2 * time.Minute)
	r.Pause(context.Background())
	paused := receive(t, ch)
	if !paused.IsPaused || paused.Remaining(clock.Now().Add(time.Hour)) != 1380 {
		t.Errorf("paused snapshot = %+v", paused)
	}

	saved, _ := store.Load(context.Background(), "user-1")
	if saved == nil || *saved != paused {
		t.Errorf("stored = %+v, want %+v", saved, paused)
	}
}

func TestRunner_FollowAdoptsOtherView(t *testing.T) {
	store := NewMemorySnapshotStore()
	bus := NewMemoryBus()
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := newTestRunner(&mockSessionAPI{}, clock, store, bus)
	defer owner.Close()
	widget := newTestRunner(&mockSessionAPI{}, clock, store, bus)
	defer widget.Close()
	if err := widget.Follow(ctx); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	_ = owner.Start(ctx, model.SubjectScience, 10)
	waitFor(t, func() bool { return widget.State().SessionID == "sess-1" })

	clock.Advance(4 * time.Minute)
	waitFor(t, func() bool { return widget.State().RemainingSeconds == 360 })

	owner.Pause(ctx)
	waitFor(t, func() bool { return widget.State().Phase == PhasePaused })
}

func TestRunner_RestoreFromStore(t *testing.T) {
	store := NewMemorySnapshotStore()
	clock := newFakeClock()
	snap := Snapshot{
		IsRunning:     true,
		TimeRemaining: 600,
		TotalTime:     600,
		Subject:       "Math",
		SessionID:     "sess-9",
		StartTime:     t0.UnixMilli(),
	}
	_ = store.Save(context.Background(), "user-1", snap)
	clock.Advance(90 * time.Second)

	r := newTestRunner(&mockSessionAPI{}, clock, store, nil)
	defer r.Close()
	if err := r.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	st := r.State()
	if st.Phase != PhaseRunning || st.SessionID != "sess-9" || st.RemainingSeconds != 510 {
		t.Errorf("restored = %+v", st)
	}
}

// heldBus は配信順を保ったまま、deliver が呼ばれるまで配送を保留するBus。
// 購読チャネルはバッファなしなので、deliver から戻った時点で直前の配送は取り込み済みになる。
type heldBus struct {
	mu      sync.Mutex
	pending []Snapshot
	sub     chan Snapshot
}

func (b *heldBus) Publish(_ context.Context, _ string, snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, snap)
	return nil
}

func (b *heldBus) Subscribe(ctx context.Context, _ string) (<-chan Snapshot, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sub = make(chan Snapshot)
	return b.sub, func() {}, nil
}

func (b *heldBus) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// deliver は保留中の配信を順に送り、最後に barrier を送る。
func (b *heldBus) deliver(barrier Snapshot) {
	b.mu.Lock()
	msgs := append(b.pending, barrier)
	b.pending = nil
	sub := b.sub
	b.mu.Unlock()
	for _, snap := range msgs {
		sub <- snap
	}
}

func TestRunner_IgnoresOwnDelayedEcho(t *testing.T) {
	bus := &heldBus{}
	clock := newFakeClock()
	api := &mockSessionAPI{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newTestRunner(api, clock, nil, bus)
	defer r.Close()
	if err := r.Follow(ctx); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	_ = r.Start(ctx, model.SubjectMath, 10)
	waitFor(t, func() bool { return r.State().SessionID == "sess-1" })
	waitFor(t, func() bool { return bus.pendingCount() == 2 })

	// 開始直後（セッションIDなし）のエコーが、ID取得後に遅れて届く
	bus.deliver(Snapshot{Origin: r.ViewID()})

	if got := r.State().SessionID; got != "sess-1" {
		t.Fatalf("自分のエコーでセッションIDが失われた: %q", got)
	}

	clock.Advance(5 * time.Minute)
	r.Stop(ctx)

	res := nextResult(t, r)
	if res.Local || res.Minutes != 5 || res.Completion == nil {
		t.Errorf("result = %+v", res)
	}
	if api.completeCalls.Load() != 1 {
		t.Errorf("CompleteSession called %d times, want 1", api.completeCalls.Load())
	}
}

func TestRunner_AdoptOrdering(t *testing.T) {
	clock := newFakeClock()
	r := newTestRunner(&mockSessionAPI{}, clock, nil, NewMemoryBus())
	defer r.Close()

	_ = r.Start(context.Background(), model.SubjectHistory, 20)
	waitFor(t, func() bool { return r.State().SessionID == "sess-1" })
	running := SnapshotOf(r.State())

	t.Run("同じタイマーの版なしスナップショットはセッションIDを消さない", func(t *testing.T) {
		stale := running
		stale.SessionID = ""
		stale.Origin = "web-view"
		r.adopt(stale)
		if got := r.State().SessionID; got != "sess-1" {
			t.Errorf("SessionID = %q, want sess-1", got)
		}
	})

	paused := running
	paused.IsRunning = false
	paused.IsPaused = true
	paused.PausedAt = t0.Add(time.Minute).UnixMilli()
	paused.Origin = "other-view"

	t.Run("取り込み済みより古い版は無視する", func(t *testing.T) {
		older := paused
		older.Revision = 1
		r.adopt(older)
		if r.State().Phase != PhaseRunning {
			t.Errorf("phase = %v, want running", r.State().Phase)
		}
	})

	t.Run("新しい版は取り込む", func(t *testing.T) {
		newer := paused
		newer.Revision = 10
		r.adopt(newer)
		if st := r.State(); st.Phase != PhasePaused || st.SessionID != "sess-1" {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("取り込んだ版の次から自分の版を振る", func(t *testing.T) {
		ch, cancel, _ := r.bus.Subscribe(context.Background(), "user-1")
		defer cancel()
		r.Resume(context.Background())
		if snap := receive(t, ch); snap.Revision != 11 || snap.Origin != r.ViewID() {
			t.Errorf("revision = %d origin = %q", snap.Revision, snap.Origin)
		}
	})
}
