// Package relay is the routing core of the chat server: it owns the
// join/leave lifecycle and decides who receives which event. Persistence
// always comes first: no message is delivered that was not durably
// appended.
package relay

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/presence"
)

// Engine orchestrates connection lifecycle events and message routing.
// It serves many connections concurrently; the presence registry and the
// connection set are the only shared state, each behind its own lock, so
// one connection's persistence call never blocks the others.
type Engine struct {
	log      *slog.Logger
	presence *presence.Registry
	users    contract.UserStore
	messages contract.MessageStore
	monitor  *observability.Monitor

	mu    sync.RWMutex
	conns map[contract.EventSink]bool // true once the connection joined the room
}

func NewEngine(
	log *slog.Logger,
	registry *presence.Registry,
	users contract.UserStore,
	messages contract.MessageStore,
	monitor *observability.Monitor,
) *Engine {
	return &Engine{
		log:      log,
		presence: registry,
		users:    users,
		messages: messages,
		monitor:  monitor,
		conns:    make(map[contract.EventSink]bool),
	}
}

// Connect registers a new live connection and returns its session, in the
// Anonymous state. Events for that connection go through the session.
func (e *Engine) Connect(sink contract.EventSink) *Session {
	e.mu.Lock()
	e.conns[sink] = false
	e.mu.Unlock()

	e.monitor.ConnectionOpened()
	return &Session{engine: e, sink: sink, state: StateAnonymous}
}

// Connections returns the number of open connections.
func (e *Engine) Connections() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

// Presence exposes the registry for read-only callers (stats, tests).
func (e *Engine) Presence() *presence.Registry {
	return e.presence
}

func (e *Engine) markJoined(sink contract.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.conns[sink]; ok {
		e.conns[sink] = true
	}
}

func (e *Engine) drop(sink contract.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, sink)
}

// broadcastAll delivers an event to every open connection, joined or not.
// Join and leave notifications use this path.
func (e *Engine) broadcastAll(ctx context.Context, evt event.ServerEvent) {
	e.fanout(ctx, e.snapshot(false), evt)
}

// broadcastRoom delivers an event to every connection that joined the
// public room, sender included.
func (e *Engine) broadcastRoom(ctx context.Context, evt event.ServerEvent) {
	e.fanout(ctx, e.snapshot(true), evt)
}

// snapshot copies the current recipients so delivery happens outside the
// lock. A connection registered mid-fanout simply misses that event.
func (e *Engine) snapshot(joinedOnly bool) []contract.EventSink {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(e.conns))
	for sink, joined := range e.conns {
		if joinedOnly && !joined {
			continue
		}
		sinks = append(sinks, sink)
	}
	return sinks
}

func (e *Engine) fanout(ctx context.Context, sinks []contract.EventSink, evt event.ServerEvent) {
	for _, sink := range sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			e.log.Debug("Dropping event for unreachable connection",
				"event", evt.EventName(), "err", err)
		}
	}
}
