package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/studystreak/internal/timer"
)

const (
	eventsPath       = "/api/timer/events"
	eventsBuffer     = 16
	maxEventBytes    = 64 << 10
	snapshotEvent    = "snapshot"
	defaultEventType = "message"
)

var _ timer.Bus = (*Client)(nil)

// Publish は何もしない。PUT /api/timer/state で保存されたときにサーバーが配信する。
func (c *Client) Publish(context.Context, string, timer.Snapshot) error {
	return nil
}

// Subscribe は GET /api/timer/events を購読し、届いたスナップショットをチャネルに流す。
// ユーザーはCookieのセッションで決まる。接続が切れるか cancel を呼ぶとチャネルは閉じる。
func (c *Client) Subscribe(ctx context.Context, _ string) (<-chan timer.Snapshot, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+eventsPath, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.timezone != "" {
		req.Header.Set(timezoneHeader, c.timezone)
	}

	resp, err := c.streamClient().Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("タイマーイベントの購読に失敗しました: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		if err := c.decode(resp, nil); err != nil {
			return nil, nil, err
		}
		return nil, nil, &StatusError{StatusCode: resp.StatusCode}
	}

	ch := make(chan timer.Snapshot, eventsBuffer)
	go c.readEvents(ctx, resp.Body, ch)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			resp.Body.Close()
		})
	}
	return ch, stop, nil
}

// streamClient はタイムアウトなしでCookie Jarを共有するクライアントを返す。
func (c *Client) streamClient() *http.Client {
	return &http.Client{
		Transport:     c.httpClient.Transport,
		Jar:           c.httpClient.Jar,
		CheckRedirect: c.httpClient.CheckRedirect,
	}
}

// readEvents はServer-Sent Eventsを1件ずつ読み、snapshot イベントをデコードして送る。
func (c *Client) readEvents(ctx context.Context, body io.ReadCloser, ch chan<- timer.Snapshot) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventBytes)

	event := defaultEventType
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 && event == snapshotEvent {
				var snap timer.Snapshot
				if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &snap); err != nil {
					c.logger.Warn("invalid timer event", slog.String("error", err.Error()))
				} else {
					select {
					case ch <- snap:
					case <-ctx.Done():
						return
					}
				}
			}
			event, data = defaultEventType, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("timer event stream closed", slog.String("error", err.Error()))
	}
}
