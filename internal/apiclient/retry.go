package apiclient

import (
	"context"
	"net/http"
	"time"
)

// Outcome はHTTPステータスコードに基づくレスポンスの分類。
type Outcome int

const (
	// OutcomeOK は成功（2xx）。
	OutcomeOK Outcome = iota
	// OutcomeRejected は再送しても結果が変わらない拒否（4xx）。
	OutcomeRejected
	// OutcomeRetry は時間をおいて再送すべき応答（429/5xx）。
	OutcomeRetry
	// OutcomeUnknown は未知のステータスコード。
	OutcomeUnknown
)

const (
	// defaultInitialBackoff は指数バックオフの初回遅延。
	defaultInitialBackoff = 250 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 4 * time.Second
	// defaultMaxRetries は一時的な失敗に対する再送回数の上限。
	defaultMaxRetries = 2
)

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeOK
	case statusCode == http.StatusTooManyRequests:
		return OutcomeRetry
	case statusCode >= 500:
		return OutcomeRetry
	case statusCode >= 400:
		return OutcomeRejected
	default:
		return OutcomeUnknown
	}
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// initialから2倍ずつ増加し、maxBackoffで頭打ちになる。
func CalculateBackoff(initial time.Duration, failures int) time.Duration {
	delay := initial
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// retryable はメソッドとパスから再送してよいリクエストかを判定する。
// セッション開始は再送すると別のセッションを作るため対象外。完了は冪等なので再送できる。
func retryable(method, path string) bool {
	if method == http.MethodPost && path == "/api/timer/start" {
		return false
	}
	return true
}

// sleep はctxがキャンセルされるまでdだけ待つ。
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
