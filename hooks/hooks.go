// Package hooks lets callers observe and veto metadata operations: manifest
// merges, data file deletion and snapshot or tag expiration.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// EventPostManifestMerge fires after the compactor produced a new manifest list.
	EventPostManifestMerge EventType = "PostManifestMerge"
	// EventPreDataFileDelete fires before a data file is removed by garbage collection.
	// A listener error keeps the file.
	EventPreDataFileDelete EventType = "PreDataFileDelete"
	// EventPostExpire fires after a snapshot expiration pass.
	EventPostExpire EventType = "PostExpire"
	// EventPostTagDelete fires after a tag and its unreferenced files were removed.
	EventPostTagDelete EventType = "PostTagDelete"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// Pre-hooks run synchronously and their first error is returned.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PostManifestMergePayload describes one compaction of a manifest list.
type PostManifestMergePayload struct {
	InputFiles  []string
	OutputFiles []string
	NewFiles    []string
	FullCompact bool
}

// NewPostManifestMergeEvent creates an event for after a manifest merge.
func NewPostManifestMergeEvent(payload PostManifestMergePayload) HookEvent {
	return &BaseEvent{eventType: EventPostManifestMerge, payload: payload}
}

// PreDataFileDeletePayload names the data file about to be deleted.
type PreDataFileDeletePayload struct {
	Path       string
	Partition  string
	Bucket     int32
	SnapshotID int64
}

// NewPreDataFileDeleteEvent creates an event for before a data file is deleted.
func NewPreDataFileDeleteEvent(payload PreDataFileDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPreDataFileDelete, payload: payload}
}

// PostExpirePayload summarizes a snapshot expiration pass.
type PostExpirePayload struct {
	BeginID int64
	EndID   int64
	Expired int
	Error   error
}

// NewPostExpireEvent creates an event for after snapshots were expired.
func NewPostExpireEvent(payload PostExpirePayload) HookEvent {
	return &BaseEvent{eventType: EventPostExpire, payload: payload}
}

// PostTagDeletePayload describes a deleted tag.
type PostTagDeletePayload struct {
	TagName    string
	SnapshotID int64
	// Collected is true when the tagged snapshot had already expired and its
	// files were garbage collected together with the tag.
	Collected bool
}

// NewPostTagDeleteEvent creates an event for after a tag was deleted.
func NewPostTagDeleteEvent(payload PostTagDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPostTagDelete, payload: payload}
}

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook cancels the operation for that item.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int
	// IsAsync reports whether a post-hook may run in its own goroutine.
	IsAsync() bool
}

// ListenerFunc adapts a function to a synchronous HookListener with priority 0.
type ListenerFunc func(ctx context.Context, event HookEvent) error

func (f ListenerFunc) OnEvent(ctx context.Context, event HookEvent) error { return f(ctx, event) }
func (f ListenerFunc) Priority() int                                      { return 0 }
func (f ListenerFunc) IsAsync() bool                                      { return false }

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// Listener slices are kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	// Equal priorities keep registration order.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
			continue
		}
		m.wg.Add(1)
		go func(current *listenerWithPriority) {
			defer m.wg.Done()
			if err := current.listener.OnEvent(ctx, event); err != nil {
				m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", current.priority, "error", err)
			}
		}(item)
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}

// Trigger is a nil-safe helper for components holding an optional manager.
func Trigger(ctx context.Context, m HookManager, event HookEvent) error {
	if m == nil {
		return nil
	}
	return m.Trigger(ctx, event)
}
