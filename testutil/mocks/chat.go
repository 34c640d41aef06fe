// =============================================================================
// 🤖 MockChatClient - 对话客户端模拟实现
// =============================================================================
// 支持固定响应、按执行器响应、延迟与错误注入
//
// 使用方法:
//
//	client := mocks.NewMockChatClient().WithResponse("hello")
//	resp, err := client.Complete(ctx, req)
//
// =============================================================================
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/dataflow/executors"
)

// ErrMockFailAfter is returned once the configured call budget is spent.
var ErrMockFailAfter = errors.New("mock chat client: configured to fail after N calls")

// MockChatClient 是 executors.ChatClient 的模拟实现
type MockChatClient struct {
	mu sync.Mutex

	// 响应配置
	response  string
	responses map[string]string
	err       error
	fn        func(ctx context.Context, req executors.ChatRequest) (*executors.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int

	// 调用记录
	calls []MockChatCall
}

// MockChatCall 记录单次调用
type MockChatCall struct {
	Request  executors.ChatRequest
	Response *executors.ChatResponse
	Error    error
}

// NewMockChatClient 创建新的 MockChatClient
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{
		response:  "Mock response",
		responses: map[string]string{},
	}
}

// WithResponse 设置固定响应内容
func (m *MockChatClient) WithResponse(response string) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithAgentResponse sets the reply for requests from one executor.
func (m *MockChatClient) WithAgentResponse(agent, response string) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agent] = response
	return m
}

// WithError 设置返回错误
func (m *MockChatClient) WithError(err error) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟，ctx 取消时提前返回
func (m *MockChatClient) WithDelay(d time.Duration) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockChatClient) WithFailAfter(n int) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompleteFunc 设置自定义 Complete 函数
func (m *MockChatClient) WithCompleteFunc(fn func(ctx context.Context, req executors.ChatRequest) (*executors.ChatResponse, error)) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Complete implements executors.ChatClient.
func (m *MockChatClient) Complete(ctx context.Context, req executors.ChatRequest) (*executors.ChatResponse, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAfter > 0 && len(m.calls) >= m.failAfter {
		m.calls = append(m.calls, MockChatCall{Request: req, Error: ErrMockFailAfter})
		return nil, ErrMockFailAfter
	}
	if m.err != nil {
		m.calls = append(m.calls, MockChatCall{Request: req, Error: m.err})
		return nil, m.err
	}
	if m.fn != nil {
		resp, err := m.fn(ctx, req)
		m.calls = append(m.calls, MockChatCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	content, ok := m.responses[req.Agent]
	if !ok {
		content = m.response
	}
	resp := &executors.ChatResponse{Messages: []executors.ChatMessage{
		{Role: executors.RoleAssistant, Content: content, Name: req.Agent},
	}}
	m.calls = append(m.calls, MockChatCall{Request: req, Response: resp})
	return resp, nil
}

func (m *MockChatClient) record(req executors.ChatRequest, resp *executors.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockChatCall{Request: req, Response: resp, Error: err})
}

// Calls 返回所有调用记录的副本
func (m *MockChatClient) Calls() []MockChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockChatCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockChatClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset 清空调用记录
func (m *MockChatClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// NewErrorChatClient 返回总是失败的客户端
func NewErrorChatClient(err error) *MockChatClient {
	return NewMockChatClient().WithError(err)
}
