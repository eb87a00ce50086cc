package timer

import (
	"context"
	"sync"
)

// SnapshotStore はユーザーごとに1つのスナップショットを永続化する。
type SnapshotStore interface {
	// Load は保存済みのスナップショットを返す。存在しない場合は nil, nil を返す。
	Load(ctx context.Context, userID string) (*Snapshot, error)
	Save(ctx context.Context, userID string, snap Snapshot) error
	Delete(ctx context.Context, userID string) error
}

// MemorySnapshotStore はプロセス内にスナップショットを保持する。
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemorySnapshotStore は空のMemorySnapshotStoreを生成する。
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]Snapshot)}
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

func (m *MemorySnapshotStore) Load(_ context.Context, userID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[userID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MemorySnapshotStore) Save(_ context.Context, userID string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[userID] = snap
	return nil
}

func (m *MemorySnapshotStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, userID)
	return nil
}
