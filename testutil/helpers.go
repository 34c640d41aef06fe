// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试上下文、运行收集与异步断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	events := testutil.CollectEvents(t, run, 5*time.Second)
//	testutil.AssertEventTypes(t, events, workflow.EventMessageDelivered, ...)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/dataflow/workflow"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔁 运行辅助
// =============================================================================

// CollectEvents drains run and fails the test if it does not finish within
// timeout.
func CollectEvents(t *testing.T, run *workflow.Run, timeout time.Duration) []workflow.Event {
	t.Helper()

	var events []workflow.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				<-run.Done()
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("run %s did not finish within %v", run.ID(), timeout)
			return nil
		}
	}
}

// EventTypes projects events onto their types.
func EventTypes(events []workflow.Event) []workflow.EventType {
	out := make([]workflow.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// FilterEvents returns the events of the given type, in order.
func FilterEvents(events []workflow.Event, typ workflow.EventType) []workflow.Event {
	var out []workflow.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// AssertLastEvent 断言事件流以指定类型结束
func AssertLastEvent(t *testing.T, events []workflow.Event, typ workflow.EventType) {
	t.Helper()
	if len(events) == 0 {
		t.Errorf("expected last event %s, got no events", typ)
		return
	}
	if last := events[len(events)-1].Type; last != typ {
		t.Errorf("expected last event %s, got %s", typ, last)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 📄 数据辅助
// =============================================================================

// MustJSON 序列化为 JSON，失败时 panic
func MustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
