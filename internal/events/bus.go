// Package events dispatches economy effects to in-process subscribers.
package events

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"resellboost/internal/economy"
)

// Handler handles one published effect.
type Handler func(economy.Effect)

// AllKinds subscribes a handler to every effect kind.
const AllKinds = "*"

// Bus routes effects to handlers registered per effect kind and subscriber
// name. Handlers run synchronously on the publishing goroutine; a panic in
// one is logged and does not reach the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler // kind -> subscriber -> handler
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string]map[string]Handler),
		logger:   logger.Named("events"),
	}
}

// Subscribe registers handler for kind under name, replacing any previous
// handler with the same name.
func (b *Bus) Subscribe(kind, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[kind]; !ok {
		b.handlers[kind] = make(map[string]Handler)
	}
	b.handlers[kind][name] = handler
	b.logger.Debug("subscribed", zap.String("kind", kind), zap.String("subscriber", name))
}

func (b *Bus) Unsubscribe(kind, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hs, ok := b.handlers[kind]; ok {
		delete(hs, name)
		if len(hs) == 0 {
			delete(b.handlers, kind)
		}
	}
}

// UnsubscribeAll removes every handler registered under name.
func (b *Bus) UnsubscribeAll(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, hs := range b.handlers {
		delete(hs, name)
		if len(hs) == 0 {
			delete(b.handlers, kind)
		}
	}
}

// Publish delivers e to the handlers of its kind, then to wildcard handlers,
// each group in subscriber name order.
func (b *Bus) Publish(e economy.Effect) {
	if e == nil {
		return
	}
	kind := e.Kind()

	b.mu.RLock()
	targets := append(sortedHandlers(b.handlers[kind]), sortedHandlers(b.handlers[AllKinds])...)
	b.mu.RUnlock()

	for _, t := range targets {
		b.dispatch(kind, t, e)
	}
}

type namedHandler struct {
	name string
	fn   Handler
}

func sortedHandlers(hs map[string]Handler) []namedHandler {
	out := make([]namedHandler, 0, len(hs))
	for name, fn := range hs {
		out = append(out, namedHandler{name, fn})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (b *Bus) dispatch(kind string, h namedHandler, e economy.Effect) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("kind", kind),
				zap.String("subscriber", h.name),
				zap.Any("panic", r))
		}
	}()
	h.fn(e)
}

// Kinds lists the effect kinds that have at least one handler.
func (b *Bus) Kinds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	kinds := make([]string, 0, len(b.handlers))
	for kind := range b.handlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Subscribers lists the names registered for kind.
func (b *Bus) Subscribers(kind string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.handlers[kind]))
	for name := range b.handlers[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
