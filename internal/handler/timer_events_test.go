package handler

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/studystreak/internal/apiclient"
	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/timer"
)

// newVisitorClient は既存訪問者のCookieを持つAPIクライアントを返す。
func newVisitorClient(t *testing.T, baseURL string) *apiclient.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	u, _ := url.Parse(baseURL)
	jar.SetCookies(u, []*http.Cookie{{Name: "session_id", Value: "valid-session", Path: "/"}})
	return apiclient.New(baseURL,
		apiclient.WithHTTPClient(&http.Client{Timeout: 5 * time.Second, Jar: jar}),
		apiclient.WithRetry(0),
	)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTimerEvents_SaveReachesOtherClient(t *testing.T) {
	srv := httptest.NewServer(createTestRouter(t, nil).handler)
	defer srv.Close()

	writer := newVisitorClient(t, srv.URL)
	reader := newVisitorClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, unsubscribe, err := reader.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	snap := timer.Snapshot{
		IsRunning:     true,
		TimeRemaining: 1500,
		TotalTime:     1500,
		Subject:       "Math",
		SessionID:     "session-1",
		StartTime:     time.Now().UnixMilli(),
		Origin:        "view-a",
		Revision:      1,
	}
	if err := writer.Save(ctx, "", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case got := <-ch:
		if got != snap {
			t.Errorf("received = %+v, want %+v", got, snap)
		}
	case <-ctx.Done():
		t.Fatal("snapshot not delivered over event stream")
	}

	unsubscribe()
	eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	})
}

func TestTimerEvents_RemoteRunnerFollowsOwner(t *testing.T) {
	srv := httptest.NewServer(createTestRouter(t, nil).handler)
	defer srv.Close()

	ownerClient := newVisitorClient(t, srv.URL)
	widgetClient := newVisitorClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := timer.NewRunner("", ownerClient, ownerClient, ownerClient, timer.Options{})
	defer owner.Close()
	widget := timer.NewRunner("", widgetClient, widgetClient, widgetClient, timer.Options{})
	defer widget.Close()
	// 所有者も自分の保存のエコーを受け取る
	if err := owner.Follow(ctx); err != nil {
		t.Fatalf("owner Follow: %v", err)
	}
	if err := widget.Follow(ctx); err != nil {
		t.Fatalf("widget Follow: %v", err)
	}

	if err := owner.Start(ctx, model.SubjectScience, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return widget.State().SessionID == "session-1" })
	if st := widget.State(); st.Phase != timer.PhaseRunning || st.Subject != model.SubjectScience {
		t.Errorf("widget state = %+v", st)
	}

	owner.Pause(ctx)
	eventually(t, func() bool { return widget.State().Phase == timer.PhasePaused })

	if got := owner.State(); got.Phase != timer.PhasePaused || got.SessionID != "session-1" {
		t.Errorf("owner state after echoes = %+v", got)
	}
}
