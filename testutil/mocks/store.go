// =============================================================================
// 💾 MockCheckpointStore - 检查点存储模拟实现
// =============================================================================
// 包装内存存储，支持按操作注入错误并记录调用次数
//
// 使用方法:
//
//	store := mocks.NewMockCheckpointStore().WithSaveError(errors.New("disk full"), 1)
//	wf.Run(ctx, input, workflow.WithCheckpointStore(store))
//
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/dataflow/workflow"
)

// MockCheckpointStore 是 workflow.CheckpointStore 的模拟实现
type MockCheckpointStore struct {
	inner *workflow.InMemoryCheckpointStore

	mu sync.Mutex

	// 错误注入; saveFailures < 0 表示一直失败
	saveErr      error
	saveFailures int
	loadErr      error
	listErr      error
	deleteErr    error

	// 调用记录
	saveCalls   int
	loadCalls   int
	listCalls   int
	deleteCalls int
}

// NewMockCheckpointStore 创建新的 MockCheckpointStore
func NewMockCheckpointStore() *MockCheckpointStore {
	return &MockCheckpointStore{inner: workflow.NewInMemoryCheckpointStore()}
}

// WithSaveError makes the next n saves fail with err; n < 0 fails every save.
func (m *MockCheckpointStore) WithSaveError(err error, n int) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	m.saveFailures = n
	return m
}

// WithLoadError 设置 Load 错误
func (m *MockCheckpointStore) WithLoadError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithListError 设置 List 错误
func (m *MockCheckpointStore) WithListError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// WithDeleteError 设置 Delete 错误
func (m *MockCheckpointStore) WithDeleteError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
	return m
}

// Save implements workflow.CheckpointStore.
func (m *MockCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) (string, error) {
	m.mu.Lock()
	m.saveCalls++
	if m.saveErr != nil && m.saveFailures != 0 {
		if m.saveFailures > 0 {
			m.saveFailures--
		}
		err := m.saveErr
		m.mu.Unlock()
		return "", err
	}
	m.mu.Unlock()
	return m.inner.Save(ctx, cp)
}

// Load implements workflow.CheckpointStore.
func (m *MockCheckpointStore) Load(ctx context.Context, checkpointID string) (*workflow.Checkpoint, error) {
	m.mu.Lock()
	m.loadCalls++
	err := m.loadErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Load(ctx, checkpointID)
}

// List implements workflow.CheckpointStore.
func (m *MockCheckpointStore) List(ctx context.Context, workflowID string) ([]string, error) {
	m.mu.Lock()
	m.listCalls++
	err := m.listErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.List(ctx, workflowID)
}

// Delete implements workflow.CheckpointStore.
func (m *MockCheckpointStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
	m.mu.Lock()
	m.deleteCalls++
	err := m.deleteErr
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return m.inner.Delete(ctx, checkpointID)
}

// SaveCalls 返回 Save 调用次数
func (m *MockCheckpointStore) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// LoadCalls 返回 Load 调用次数
func (m *MockCheckpointStore) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ListCalls 返回 List 调用次数
func (m *MockCheckpointStore) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// DeleteCalls 返回 Delete 调用次数
func (m *MockCheckpointStore) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}
