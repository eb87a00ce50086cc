// Package apiclient は学習セッションAPIのHTTPクライアントを提供する。
// タイマーのRunnerがサーバーとやり取りするために使う。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/studystreak/internal/model"
	"github.com/hitoshi/studystreak/internal/timer"
)

const (
	csrfHeaderName   = "X-CSRF-Token"
	timezoneHeader   = "X-Timezone"
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// Client は学習セッションAPIのクライアント。
// Cookie（訪問者セッション・CSRFトークン）を保持し、状態変更リクエストにCSRFトークンを付与する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	timezone   string

	maxRetries     int
	initialBackoff time.Duration

	mu        sync.Mutex
	csrfToken string
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithHTTPClient は使用するhttp.Clientを差し替える。Cookie Jarが未設定なら追加する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimezone はユーザーのタイムゾーン（IANA名）をサーバーへ伝える。
func WithTimezone(tz string) Option {
	return func(c *Client) { c.timezone = tz }
}

// WithRetry は429/5xxや通信エラー時の再送回数の上限を設定する。0で再送しない。
func WithRetry(maxRetries int) Option {
	return func(c *Client) { c.maxRetries = max(maxRetries, 0) }
}

// WithLogger はロガーを差し替える。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New はClientを生成する。baseURLは "http://localhost:8080" の形式。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),

		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}
	return c
}

var (
	_ timer.SessionAPI    = (*Client)(nil)
	_ timer.SnapshotStore = (*Client)(nil)
)

type startRequest struct {
	Subject         string `json:"subject"`
	DurationMinutes int    `json:"duration_minutes"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type completeRequest struct {
	SessionID       string `json:"session_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Completed       bool   `json:"completed"`
}

// StartSession はセッションを作成し、IDを返す。
func (c *Client) StartSession(ctx context.Context, subject model.Subject, minutes int) (string, error) {
	var resp startResponse
	err := c.do(ctx, http.MethodPost, "/api/timer/start", startRequest{
		Subject:         string(subject),
		DurationMinutes: minutes,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("レスポンスにsession_idが含まれていません")
	}
	return resp.SessionID, nil
}

// CompleteSession はセッションの完了を報告し、ストリークと新規バッジを返す。
func (c *Client) CompleteSession(ctx context.Context, sessionID string, minutes int) (*model.CompletionResult, error) {
	var res model.CompletionResult
	err := c.do(ctx, http.MethodPost, "/api/timer/complete", completeRequest{
		SessionID:       sessionID,
		DurationMinutes: minutes,
		Completed:       true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelSession はセッションを破棄する。
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/timer/cancel/"+sessionID, nil, nil)
}

// Load はサーバーに保存されたタイマー状態を取得する。未保存ならnilを返す。
func (c *Client) Load(ctx context.Context, _ string) (*timer.Snapshot, error) {
	var snap *timer.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/timer/state", nil, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save はタイマー状態をサーバーに保存する。ユーザーはCookieのセッションで決まる。
func (c *Client) Save(ctx context.Context, _ string, snap timer.Snapshot) error {
	return c.do(ctx, http.MethodPut, "/api/timer/state", snap, nil)
}

// Delete はサーバーに保存されたタイマー状態を削除する。
func (c *Client) Delete(ctx context.Context, _ string) error {
	return c.do(ctx, http.MethodDelete, "/api/timer/state", nil, nil)
}

// do はJSONリクエストを送信し、2xxならoutへデコードする。
// CSRFトークンが拒否された場合は1度だけ取り直して再送する。
// 429/5xxと通信エラーは、再送可能なリクエストに限り指数バックオフで再送する。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
		}
	}

	csrfRetried := false
	failures := 0
	for {
		resp, err := c.send(ctx, method, path, body)
		if err != nil {
			if c.backoff(ctx, method, path, &failures) {
				continue
			}
			return err
		}
		if resp.StatusCode == http.StatusForbidden && method != http.MethodGet && !csrfRetried {
			resp.Body.Close()
			c.mu.Lock()
			c.csrfToken = ""
			c.mu.Unlock()
			csrfRetried = true
			continue
		}
		if ClassifyHTTPStatus(resp.StatusCode) == OutcomeRetry && c.backoff(ctx, method, path, &failures) {
			resp.Body.Close()
			continue
		}
		defer resp.Body.Close()
		return c.decode(resp, out)
	}
}

// backoff は再送可能ならバックオフ分待機してtrueを返す。
func (c *Client) backoff(ctx context.Context, method, path string, failures *int) bool {
	if *failures >= c.maxRetries || !retryable(method, path) {
		return false
	}
	delay := CalculateBackoff(c.initialBackoff, *failures)
	*failures++
	c.logger.Debug("retrying study API request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("attempt", *failures),
		slog.Duration("delay", delay),
	)
	return sleep(ctx, delay) == nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.timezone != "" {
		req.Header.Set(timezoneHeader, c.timezone)
	}
	if method != http.MethodGet {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set(csrfHeaderName, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("study API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("APIの呼び出しに失敗しました: %w", err)
	}
	return resp, nil
}

func (c *Client) decode(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Code     string `json:"code"`
			Message  string `json:"message"`
			Category string `json:"category"`
			Action   string `json:"action"`
		}
		if json.Unmarshal(data, &body) == nil && body.Code != "" {
			return &StatusError{StatusCode: resp.StatusCode, APIError: &model.APIError{
				Code:     body.Code,
				Message:  body.Message,
				Category: body.Category,
				Action:   body.Action,
			}}
		}
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// token はCSRFトークンを返す。未取得なら /api/csrf-token から取得する。
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.csrfToken != "" {
		return c.csrfToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if c.timezone != "" {
		req.Header.Set(timezoneHeader, c.timezone)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("CSRFトークンの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("CSRFトークンの取得に失敗しました: ステータス %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		return "", errors.New("CSRFトークンのレスポンスが不正です")
	}
	c.csrfToken = body.Token
	return c.csrfToken, nil
}

// StatusError は2xx以外のレスポンスを表す。サーバーが統一エラー形式を返した場合はAPIErrorを含む。
type StatusError struct {
	StatusCode int
	APIError   *model.APIError
}

func (e *StatusError) Error() string {
	if e.APIError != nil {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.APIError.Error())
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Unwrap はerrors.Asで*model.APIErrorを取り出せるようにする。
func (e *StatusError) Unwrap() error {
	if e.APIError == nil {
		return nil
	}
	return e.APIError
}
