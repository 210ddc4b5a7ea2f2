package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockListener is a mock implementation of HookListener for testing.
type mockListener struct {
	priority  int
	name      string
	callOrder *[]string
	mu        *sync.Mutex
	returnErr error
	isAsync   bool
	workDelay time.Duration
	calls     atomic.Int32
}

func (m *mockListener) OnEvent(ctx context.Context, event HookEvent) error {
	if m.workDelay > 0 {
		time.Sleep(m.workDelay)
	}
	m.calls.Add(1)
	if m.callOrder != nil {
		m.mu.Lock()
		*m.callOrder = append(*m.callOrder, m.name)
		m.mu.Unlock()
	}
	return m.returnErr
}

func (m *mockListener) Priority() int { return m.priority }
func (m *mockListener) IsAsync() bool { return m.isAsync }

func TestNewHookManager(t *testing.T) {
	manager := NewHookManager(nil)
	require.NotNil(t, manager)
	dm, ok := manager.(*DefaultHookManager)
	require.True(t, ok)
	assert.NotNil(t, dm.listeners)
	assert.NotNil(t, dm.logger)
}

func TestDefaultHookManager_Register(t *testing.T) {
	manager := NewHookManager(nil).(*DefaultHookManager)
	manager.Register(EventPreDataFileDelete, &mockListener{name: "l1", priority: 10})
	manager.Register(EventPreDataFileDelete, &mockListener{name: "l2", priority: 1})
	manager.Register(EventPreDataFileDelete, &mockListener{name: "l3", priority: 5})
	manager.Register(EventPreDataFileDelete, &mockListener{name: "l4", priority: 5})

	var names []string
	for _, l := range manager.listeners[EventPreDataFileDelete] {
		names = append(names, l.listener.(*mockListener).name)
	}
	assert.Equal(t, []string{"l2", "l3", "l4", "l1"}, names)
}

func TestDefaultHookManager_Trigger(t *testing.T) {
	ctx := context.Background()
	event := NewPreDataFileDeleteEvent(PreDataFileDeletePayload{Path: "bucket-0/data-1", Bucket: 0, SnapshotID: 3})

	t.Run("pre-hook error stops execution", func(t *testing.T) {
		manager := NewHookManager(nil)
		var order []string
		mu := &sync.Mutex{}
		veto := errors.New("keep it")
		manager.Register(EventPreDataFileDelete, &mockListener{name: "first", priority: 1, callOrder: &order, mu: mu})
		manager.Register(EventPreDataFileDelete, &mockListener{name: "veto", priority: 2, callOrder: &order, mu: mu, returnErr: veto})
		manager.Register(EventPreDataFileDelete, &mockListener{name: "never", priority: 3, callOrder: &order, mu: mu})

		err := manager.Trigger(ctx, event)
		require.ErrorIs(t, err, veto)
		assert.Equal(t, []string{"first", "veto"}, order)
	})

	t.Run("pre-hook ignores async flag", func(t *testing.T) {
		manager := NewHookManager(nil)
		l := &mockListener{isAsync: true, workDelay: 10 * time.Millisecond}
		manager.Register(EventPreDataFileDelete, l)
		require.NoError(t, manager.Trigger(ctx, event))
		assert.Equal(t, int32(1), l.calls.Load(), "listener must have run before Trigger returned")
	})

	t.Run("post-hook errors are swallowed", func(t *testing.T) {
		manager := NewHookManager(nil)
		failing := &mockListener{priority: 1, returnErr: errors.New("boom")}
		next := &mockListener{priority: 2}
		manager.Register(EventPostExpire, failing)
		manager.Register(EventPostExpire, next)
		require.NoError(t, manager.Trigger(ctx, NewPostExpireEvent(PostExpirePayload{BeginID: 1, EndID: 4, Expired: 3})))
		assert.Equal(t, int32(1), next.calls.Load())
	})

	t.Run("async post-hook completes before Stop returns", func(t *testing.T) {
		manager := NewHookManager(nil)
		l := &mockListener{isAsync: true, workDelay: 20 * time.Millisecond}
		manager.Register(EventPostTagDelete, l)
		require.NoError(t, manager.Trigger(ctx, NewPostTagDeleteEvent(PostTagDeletePayload{TagName: "t1", SnapshotID: 2})))
		manager.Stop()
		assert.Equal(t, int32(1), l.calls.Load())
	})

	t.Run("no listeners", func(t *testing.T) {
		require.NoError(t, NewHookManager(nil).Trigger(ctx, NewPostManifestMergeEvent(PostManifestMergePayload{})))
	})
}

func TestTrigger_NilManager(t *testing.T) {
	require.NoError(t, Trigger(context.Background(), nil, NewPostExpireEvent(PostExpirePayload{})))

	manager := NewHookManager(nil)
	var got PreDataFileDeletePayload
	manager.Register(EventPreDataFileDelete, ListenerFunc(func(ctx context.Context, e HookEvent) error {
		got = e.Payload().(PreDataFileDeletePayload)
		return nil
	}))
	require.NoError(t, Trigger(context.Background(), manager, NewPreDataFileDeleteEvent(PreDataFileDeletePayload{Path: "p"})))
	assert.Equal(t, "p", got.Path)
}
