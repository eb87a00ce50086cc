package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// testLimiterConfig は1分間クリーンアップが走らない小さな設定を返す。
func testLimiterConfig(generalBurst, timerStartBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		TimerStartRate:  1,
		TimerStartBurst: timerStartBurst,
		CleanupInterval: time.Minute,
	}
}

// serveAs はビジターIDをコンテキストに入れてリクエストを処理する。
func serveAs(h http.Handler, method, path, visitorID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if visitorID != "" {
		req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, visitorID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_GeneralMiddleware(t *testing.T) {
	t.Run("バースト内は通り超過で429", func(t *testing.T) {
		rl := NewRateLimiter(testLimiterConfig(3, 10))
		defer rl.Stop()
		h := rl.GeneralMiddleware()(okHandler())

		for i := 0; i < 3; i++ {
			if w := serveAs(h, http.MethodGet, "/api/dashboard", "visitor-1"); w.Code != http.StatusOK {
				t.Fatalf("request %d: status = %d, want 200", i, w.Code)
			}
		}
		if w := serveAs(h, http.MethodGet, "/api/dashboard", "visitor-1"); w.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", w.Code)
		}
	})

	t.Run("ビジターごとに独立", func(t *testing.T) {
		rl := NewRateLimiter(testLimiterConfig(1, 10))
		defer rl.Stop()
		h := rl.GeneralMiddleware()(okHandler())

		serveAs(h, http.MethodGet, "/api/badges", "visitor-a")
		if w := serveAs(h, http.MethodGet, "/api/badges", "visitor-a"); w.Code != http.StatusTooManyRequests {
			t.Errorf("visitor-a second: status = %d, want 429", w.Code)
		}
		if w := serveAs(h, http.MethodGet, "/api/badges", "visitor-b"); w.Code != http.StatusOK {
			t.Errorf("visitor-b first: status = %d, want 200", w.Code)
		}
	})

	t.Run("ビジターIDがなければ401", func(t *testing.T) {
		rl := NewRateLimiter(testLimiterConfig(5, 10))
		defer rl.Stop()
		h := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called without visitor")
		}))

		if w := serveAs(h, http.MethodGet, "/api/dashboard", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestRateLimiter_TooManyRequestsResponse(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 10))
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	serveAs(h, http.MethodGet, "/api/sessions", "visitor-429")
	w := serveAs(h, http.MethodGet, "/api/sessions", "visitor-429")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if sec, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || sec < 1 {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "RATE_LIMITED" || body.Category != "system" || body.Message == "" || body.Action == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimiter_TimerStartIsIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		TimerStartRate:  1,
		TimerStartBurst: 2,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	general := rl.GeneralMiddleware()
	start := rl.TimerStartMiddleware()
	// POST /api/timer/start は両方の制限を通る
	startHandler := general(start(okHandler()))
	readHandler := general(okHandler())

	for i := 0; i < 2; i++ {
		if w := serveAs(startHandler, http.MethodPost, "/api/timer/start", "visitor-s"); w.Code != http.StatusOK {
			t.Fatalf("start %d: status = %d", i, w.Code)
		}
	}
	if w := serveAs(startHandler, http.MethodPost, "/api/timer/start", "visitor-s"); w.Code != http.StatusTooManyRequests {
		t.Errorf("third start: status = %d, want 429", w.Code)
	}

	// タイマー開始の超過はAPI全般に影響しない
	if w := serveAs(readHandler, http.MethodGet, "/api/dashboard", "visitor-s"); w.Code != http.StatusOK {
		t.Errorf("dashboard after start limit: status = %d, want 200", w.Code)
	}

	if rl.TimerStartLimiterCount() != 1 || rl.GeneralLimiterCount() != 1 {
		t.Errorf("counts = general %d / timer start %d", rl.GeneralLimiterCount(), rl.TimerStartLimiterCount())
	}
}

func TestBucketPool_EvictIdle(t *testing.T) {
	pool := newBucketPool("general", 1, 1)
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	pool.allow("old", base)
	pool.allow("recent", base.Add(9*time.Minute))

	if n := pool.evictIdle(base.Add(10*time.Minute), 5*time.Minute); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if pool.len() != 1 {
		t.Fatalf("len = %d, want 1", pool.len())
	}
	if _, ok := pool.buckets["recent"]; !ok {
		t.Error("recent bucket should remain")
	}
}

func TestRateLimiter_CleanupLoopRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		TimerStartRate:  1,
		TimerStartBurst: 10,
		CleanupInterval: 50 * time.Millisecond,
	})
	defer rl.Stop()

	serveAs(rl.GeneralMiddleware()(okHandler()), http.MethodGet, "/api/dashboard", "visitor-idle")
	if rl.GeneralLimiterCount() != 1 {
		t.Fatal("expected one limiter entry")
	}

	// TTLは50ms*2。十分に待てば削除される
	deadline := time.Now().Add(2 * time.Second)
	for rl.GeneralLimiterCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("entries after cleanup = %d, want 0", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestRateLimitMiddleware_InChainWithVisitorAndCORS(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 10))
	defer rl.Stop()

	visitorMW := NewVisitorMiddleware(knownVisitor(), testCookieConfig)
	corsMW := NewCORSMiddleware("http://localhost:3000")

	// CORS -> Visitor -> RateLimit -> Handler
	handler := corsMW(visitorMW(rl.GeneralMiddleware()(okHandler())))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session-id"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(); code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want 429", code)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.TimerStartRate == 0 || cfg.TimerStartBurst != 20 {
		t.Errorf("timer start = %v/%d", cfg.TimerStartRate, cfg.TimerStartBurst)
	}
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := PerMinuteRateLimiterConfig(60, 6)
	if cfg.GeneralRate != 1.0 || cfg.GeneralBurst != 60 {
		t.Errorf("general = %v/%d, want 1/60", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.TimerStartRate != 0.1 || cfg.TimerStartBurst != 6 {
		t.Errorf("timer start = %v/%d, want 0.1/6", cfg.TimerStartRate, cfg.TimerStartBurst)
	}

	t.Run("0以下は1に丸める", func(t *testing.T) {
		cfg := PerMinuteRateLimiterConfig(0, -3)
		if cfg.GeneralBurst != 1 || cfg.TimerStartBurst != 1 {
			t.Errorf("bursts = %d/%d, want 1/1", cfg.GeneralBurst, cfg.TimerStartBurst)
		}
	})
}
