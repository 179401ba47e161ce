package mock

import (
	"context"
	"sync"

	"github.com/teamnewpipe/crashreportimporter/internal/storage"
)

// MockFileManager keeps files in memory. Err, when set, is returned by every
// call.
type MockFileManager struct {
	Err error

	mu     sync.Mutex
	Files  map[string][]byte
	Writes int
}

func NewMockFileManager() *MockFileManager {
	return &MockFileManager{Files: make(map[string][]byte)}
}

func (m *MockFileManager) Location() string {
	return "memory"
}

func (m *MockFileManager) Exists(_ context.Context, name string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Files[name]
	return ok, nil
}

func (m *MockFileManager) WriteNew(_ context.Context, name string, data []byte) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Files[name]; ok {
		return storage.ErrAlreadyStored
	}
	m.Files[name] = append([]byte(nil), data...)
	m.Writes++
	return nil
}
