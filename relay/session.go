package relay

import (
	"context"
	"fmt"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
)

// State is the lifecycle of one connection. There is no transition out of
// StateClosed.
type State int

const (
	StateAnonymous State = iota
	StateIdentified
	StateClosed
)

// Session binds one live connection to the engine. The transport calls the
// Handle methods sequentially as frames arrive; Close may race them from
// the connection-loss callback, hence the mutex on state.
type Session struct {
	engine *Engine
	sink   contract.EventSink

	mu       sync.Mutex
	state    State
	username string
}

// Username returns the name bound by the last join, empty while Anonymous.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleJoin binds a username to this connection. The user record is
// upserted first; if that fails the join is aborted, presence is left
// untouched and the error is surfaced to this connection only. On success
// everyone, the joiner included, is told about the new user. A second join
// re-binds the connection; a presence entry for the prior name is left for
// its own disconnect to resolve.
func (s *Session) HandleJoin(ctx context.Context, ev event.Join) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return apperrors.ErrClosed
	}
	s.mu.Unlock()

	if _, err := s.engine.users.UpsertUser(ev.SenderName); err != nil {
		s.engine.monitor.PersistenceFailure()
		return fmt.Errorf("join %q: %w", ev.SenderName, err)
	}

	s.engine.presence.SetOnline(ev.SenderName, s.sink)
	s.engine.markJoined(s.sink)

	s.mu.Lock()
	s.state = StateIdentified
	s.username = ev.SenderName
	s.mu.Unlock()

	s.engine.monitor.Joined()
	s.engine.log.Info("User joined the chat", "username", ev.SenderName)
	s.engine.broadcastAll(ctx, event.UserJoined{SenderName: ev.SenderName})
	return nil
}

// HandleRoomMessage persists a public message, then broadcasts the
// client-submitted payload as-is to the room, sender included. A failed
// append means no broadcast at all.
func (s *Session) HandleRoomMessage(ctx context.Context, ev event.RoomMessage) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return apperrors.ErrClosed
	}
	s.mu.Unlock()

	_, err := s.engine.messages.AppendMessage(domain.Message{
		SenderName: ev.SenderName,
		Body:       ev.Body,
		Status:     ev.Status,
	})
	if err != nil {
		s.engine.monitor.PersistenceFailure()
		return fmt.Errorf("room message from %q: %w", ev.SenderName, err)
	}

	s.engine.monitor.RoomMessageRouted()
	s.engine.broadcastRoom(ctx, ev)
	return nil
}

// HandleDirect persists a private message, delivers it to the receiver's
// connection if one is registered, and always echoes it back to the
// sender. An offline receiver is silent: the message lives only in durable
// history.
func (s *Session) HandleDirect(ctx context.Context, ev event.Direct) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return apperrors.ErrClosed
	}
	s.mu.Unlock()

	_, err := s.engine.messages.AppendMessage(domain.Message{
		SenderName:   ev.SenderName,
		ReceiverName: ev.ReceiverName,
		Body:         ev.Body,
		Status:       ev.Status,
	})
	if err != nil {
		s.engine.monitor.PersistenceFailure()
		return fmt.Errorf("private message %q->%q: %w", ev.SenderName, ev.ReceiverName, err)
	}
	s.engine.monitor.PrivateMessageRouted()

	if receiver, ok := s.engine.presence.Get(ev.ReceiverName); ok {
		if err := receiver.Consume(ctx, ev); err != nil {
			s.engine.log.Debug("Dropping private message for unreachable receiver",
				"receiver", ev.ReceiverName, "err", err)
		}
	} else {
		s.engine.monitor.OfflinePrivateDrop()
		s.engine.log.Info("Private message receiver offline, stored only",
			"sender", ev.SenderName, "receiver", ev.ReceiverName)
	}

	// Echo to the sender so its client renders the outgoing message without
	// a local copy.
	if err := s.sink.Consume(ctx, ev); err != nil {
		s.engine.log.Debug("Dropping private message echo", "sender", ev.SenderName, "err", err)
	}
	return nil
}

// Close transitions the session to Closed and resolves presence. The
// userLeft notification is only sent when this connection still owned its
// presence entry; a connection that never joined, or was superseded by a
// later join under the same name, leaves silently.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.engine.drop(s.sink)
	s.engine.monitor.ConnectionClosed()

	username, removed := s.engine.presence.RemoveIfMatches(s.sink)
	if !removed {
		return
	}
	s.engine.log.Info("User left the chat", "username", username)
	s.engine.broadcastAll(ctx, event.UserLeft{SenderName: username})
}
