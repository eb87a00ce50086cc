package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	TimerStartRate  rate.Limit    // タイマー開始のレート（req/sec）。20/60
	TimerStartBurst int           // タイマー開始のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/visitor、タイマー開始 20 req/min/visitor
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteRateLimiterConfig(120, 20)
}

// PerMinuteRateLimiterConfig はreq/min単位の上限からレート制限設定を生成する。
// バーストサイズは1分あたりの上限と同じにする。1未満の値は1として扱う。
func PerMinuteRateLimiterConfig(generalPerMin, timerStartPerMin int) RateLimiterConfig {
	generalPerMin = max(generalPerMin, 1)
	timerStartPerMin = max(timerStartPerMin, 1)
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		TimerStartRate:  rate.Limit(float64(timerStartPerMin) / 60.0),
		TimerStartBurst: timerStartPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// visitorBucket はビジターごとのリミッターと最終アクセス時刻。
type visitorBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// bucketPool は1種類の制限についてビジターごとのバケットを保持する。
type bucketPool struct {
	kind  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*visitorBucket
}

func newBucketPool(kind string, limit rate.Limit, burst int) *bucketPool {
	return &bucketPool{
		kind:    kind,
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*visitorBucket),
	}
}

// allow はビジターのバケットからトークンを1つ消費できるかを返す。
// バケットが未作成なら作成し、最終アクセス時刻を更新する。
func (p *bucketPool) allow(visitorID string, now time.Time) bool {
	p.mu.Lock()
	b, ok := p.buckets[visitorID]
	if !ok {
		b = &visitorBucket{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[visitorID] = b
	}
	b.lastAccess = now
	p.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// evictIdle はttlより長くアクセスのないバケットを削除し、削除数を返す。
func (p *bucketPool) evictIdle(now time.Time, ttl time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for id, b := range p.buckets {
		if now.Sub(b.lastAccess) > ttl {
			delete(p.buckets, id)
			evicted++
		}
	}
	return evicted
}

func (p *bucketPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// RateLimiter はビジターごとのレート制限を管理する。
// API全般とタイマー開始の2種類のバケットを独立に持つ。
type RateLimiter struct {
	cleanupInterval time.Duration

	general    *bucketPool
	timerStart *bucketPool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		cleanupInterval: config.CleanupInterval,
		general:         newBucketPool("general", config.GeneralRate, config.GeneralBurst),
		timerStart:      newBucketPool("timer_start", config.TimerStartRate, config.TimerStartBurst),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// VisitorMiddlewareの後に配置すること。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// TimerStartMiddleware はタイマー開始専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) TimerStartMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.timerStart)
}

func (rl *RateLimiter) middleware(pool *bucketPool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !pool.allow(visitorID, time.Now()) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", visitorID),
					slog.String("limit_type", pool.kind),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, pool.limit)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// TimerStartLimiterCount は現在管理されているタイマー開始リミッターのエントリ数を返す。
func (rl *RateLimiter) TimerStartLimiterCount() int {
	return rl.timerStart.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的に削除する。
// エントリのTTLはCleanupIntervalの2倍。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	ttl := rl.cleanupInterval * 2
	for {
		select {
		case now := <-ticker.C:
			evicted := rl.general.evictIdle(now, ttl) + rl.timerStart.evictIdle(now, ttl)
			if evicted > 0 {
				slog.Debug("rate limiter entries evicted", slog.Int("count", evicted))
			}
		case <-rl.stopCh:
			return
		}
	}
}

// writeRateLimitResponse は429 Too Many Requestsを統一エラーフォーマットで書き込む。
// Retry-Afterには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfterSec := 1
	if limit > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(limit))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMITED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	})
}
