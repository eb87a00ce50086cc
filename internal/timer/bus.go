package timer

import (
	"context"
	"sync"
)

// subscriberBuffer は購読チャネルのバッファ数。
const subscriberBuffer = 16

// Bus はユーザーごとのスナップショット変更を他のビューへ配信する。
type Bus interface {
	Publish(ctx context.Context, userID string, snap Snapshot) error
	// Subscribe は配信を受け取るチャネルと購読解除関数を返す。
	// 解除後、チャネルはクローズされる。
	Subscribe(ctx context.Context, userID string) (<-chan Snapshot, func(), error)
}

// MemoryBus はプロセス内でスナップショットを配信する。
// 受信側が詰まっている場合、そのビューへの古い通知は捨てて最新を優先する。
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Snapshot
}

// NewMemoryBus は空のMemoryBusを生成する。
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]chan Snapshot)}
}

var _ Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Publish(_ context.Context, userID string, snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[userID] {
		deliverLatest(ch, snap)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, userID string) (<-chan Snapshot, func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Snapshot, subscriberBuffer)
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Snapshot)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

// deliverLatest はチャネルが満杯なら最古の通知を1件捨ててから送る。
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
