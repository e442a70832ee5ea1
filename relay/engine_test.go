package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/presence"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recorder is a connection handle that captures everything it receives.
type recorder struct {
	mu     sync.Mutex
	events []event.ServerEvent
}

func (r *recorder) Consume(ctx context.Context, e event.ServerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) received() []event.ServerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.ServerEvent(nil), r.events...)
}

func newTestEngine(t *testing.T) (*Engine, *mocks.MockUserStore, *mocks.MockMessageStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	messages := mocks.NewMockMessageStore(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewEngine(log, presence.NewRegistry(), users, messages, nil), users, messages
}

func join(t *testing.T, sess *Session, username string) {
	t.Helper()
	require.NoError(t, sess.HandleJoin(context.Background(), event.Join{SenderName: username}))
}

func TestEngine_Join_Broadcasts_To_Everyone_Including_Joiner(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser("erin").Return(domain.User{Username: "erin"}, nil)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(2)

	// Given two connections already joined and one still anonymous
	alice, bob, erin, lurker := &recorder{}, &recorder{}, &recorder{}, &recorder{}
	join(t, engine.Connect(alice), "alice")
	join(t, engine.Connect(bob), "bob")
	engine.Connect(lurker)
	erinSession := engine.Connect(erin)

	// When erin joins
	join(t, erinSession, "erin")

	// Then every open connection observes userJoined{erin}, erin included
	for _, r := range []*recorder{alice, bob, erin, lurker} {
		req.Contains(r.received(), event.UserJoined{SenderName: "erin"})
	}
	req.Equal(StateIdentified, erinSession.State())
	req.Equal("erin", erinSession.Username())
}

func TestEngine_Join_Upsert_Failure_Aborts(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser("alice").Return(domain.User{}, fmt.Errorf("store down"))

	other := &recorder{}
	engine.Connect(other)
	sess := engine.Connect(&recorder{})

	// When the upsert fails
	err := sess.HandleJoin(context.Background(), event.Join{SenderName: "alice"})

	// Then the join is aborted: no presence, no notification, error surfaced
	req.Error(err)
	_, online := engine.Presence().Get("alice")
	req.False(online)
	req.Empty(other.received())
	req.Equal(StateAnonymous, sess.State())
}

func TestEngine_Rejoin_Same_Name_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser("alice").Return(domain.User{}, nil).Times(2)

	conn := &recorder{}
	sess := engine.Connect(conn)

	// When the same connection joins twice under the same name
	join(t, sess, "alice")
	join(t, sess, "alice")

	// Then there is a single presence entry and one broadcast per join call
	req.Equal(1, engine.Presence().Online())
	req.Len(conn.received(), 2)
}

func TestEngine_Superseding_Join_Then_Stale_Disconnect(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser("alice").Return(domain.User{}, nil).Times(2)

	// Given alice on connection A, superseded by connection B
	connA, connB := &recorder{}, &recorder{}
	sessA := engine.Connect(connA)
	sessB := engine.Connect(connB)
	join(t, sessA, "alice")
	join(t, sessB, "alice")

	// When A disconnects
	sessA.Close(context.Background())

	// Then B's presence entry survives and nobody is told alice left
	got, online := engine.Presence().Get("alice")
	req.True(online)
	req.Same(connB, got.(*recorder))
	req.NotContains(connB.received(), event.UserLeft{SenderName: "alice"})
}

func TestEngine_Disconnect_After_Join_Broadcasts_UserLeft(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(2)

	alice, bob := &recorder{}, &recorder{}
	aliceSession := engine.Connect(alice)
	join(t, aliceSession, "alice")
	join(t, engine.Connect(bob), "bob")

	// When alice disconnects
	aliceSession.Close(context.Background())

	// Then the remaining connection observes userLeft{alice}
	req.Contains(bob.received(), event.UserLeft{SenderName: "alice"})
	req.Equal(1, engine.Connections())
	req.Equal(StateClosed, aliceSession.State())

	// Closing twice is a no-op
	aliceSession.Close(context.Background())
	req.Equal(1, engine.Connections())
}

func TestEngine_Anonymous_Disconnect_Is_Silent(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser("alice").Return(domain.User{}, nil)

	alice := &recorder{}
	join(t, engine.Connect(alice), "alice")
	lurker := engine.Connect(&recorder{})

	// When a connection that never joined disconnects
	lurker.Close(context.Background())

	// Then no userLeft is emitted
	for _, e := range alice.received() {
		req.NotEqual(event.NameUserLeft, e.EventName())
	}
}

func TestEngine_Room_Message_Persisted_Then_Broadcast(t *testing.T) {
	req := require.New(t)
	engine, users, messages := newTestEngine(t)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(2)

	var persisted []domain.Message
	messages.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(
		func(msg domain.Message) (domain.Message, error) {
			persisted = append(persisted, msg)
			return msg, nil
		})

	alice, bob, lurker := &recorder{}, &recorder{}, &recorder{}
	aliceSession := engine.Connect(alice)
	join(t, aliceSession, "alice")
	join(t, engine.Connect(bob), "bob")
	engine.Connect(lurker)

	// When alice posts to the room
	ev := event.RoomMessage{SenderName: "alice", Body: "hello room", Status: "sent"}
	req.NoError(aliceSession.HandleRoomMessage(context.Background(), ev))

	// Then the record was appended before anyone saw the payload
	req.Len(persisted, 1)
	req.Equal("hello room", persisted[0].Body)
	req.Empty(persisted[0].ReceiverName)

	// And the original payload reaches every joined connection, echo included
	req.Contains(alice.received(), ev)
	req.Contains(bob.received(), ev)

	// But not the connection that never joined the room
	req.NotContains(lurker.received(), ev)
}

func TestEngine_Room_Message_Append_Failure_Drops_Broadcast(t *testing.T) {
	req := require.New(t)
	engine, users, messages := newTestEngine(t)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(2)
	messages.EXPECT().AppendMessage(gomock.Any()).Return(domain.Message{}, fmt.Errorf("disk full"))

	alice, bob := &recorder{}, &recorder{}
	aliceSession := engine.Connect(alice)
	join(t, aliceSession, "alice")
	join(t, engine.Connect(bob), "bob")
	before := len(bob.received())

	// When the append fails
	err := aliceSession.HandleRoomMessage(context.Background(),
		event.RoomMessage{SenderName: "alice", Body: "lost"})

	// Then the error is surfaced and nothing is delivered, not even the echo
	req.Error(err)
	req.Len(bob.received(), before)
	for _, e := range alice.received() {
		req.NotEqual(event.NameMessage, e.EventName())
	}
}

func TestEngine_Private_Message_Routed_And_Echoed(t *testing.T) {
	req := require.New(t)
	engine, users, messages := newTestEngine(t)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(3)
	messages.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(
		func(msg domain.Message) (domain.Message, error) { return msg, nil })

	bob, carol, third := &recorder{}, &recorder{}, &recorder{}
	bobSession := engine.Connect(bob)
	join(t, bobSession, "bob")
	join(t, engine.Connect(carol), "carol")
	join(t, engine.Connect(third), "dave")

	// When bob messages carol privately
	ev := event.Direct{SenderName: "bob", ReceiverName: "carol", Body: "psst"}
	req.NoError(bobSession.HandleDirect(context.Background(), ev))

	// Then carol receives it, bob gets the echo, and dave sees nothing
	req.Contains(carol.received(), ev)
	req.Contains(bob.received(), ev)
	req.NotContains(third.received(), ev)
}

func TestEngine_Private_Message_Offline_Receiver_Still_Persists_And_Echoes(t *testing.T) {
	req := require.New(t)
	engine, users, messages := newTestEngine(t)
	users.EXPECT().UpsertUser("bob").Return(domain.User{}, nil)

	var persisted []domain.Message
	messages.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(
		func(msg domain.Message) (domain.Message, error) {
			persisted = append(persisted, msg)
			return msg, nil
		})

	bob := &recorder{}
	bobSession := engine.Connect(bob)
	join(t, bobSession, "bob")

	// When bob messages dave, who is not online
	ev := event.Direct{SenderName: "bob", ReceiverName: "dave", Body: "anyone there?"}
	req.NoError(bobSession.HandleDirect(context.Background(), ev))

	// Then the message exists in durable history and bob still gets his echo
	req.Len(persisted, 1)
	req.Equal("dave", persisted[0].ReceiverName)
	req.Contains(bob.received(), ev)
}

func TestEngine_Private_Message_Append_Failure_Aborts_Both_Deliveries(t *testing.T) {
	req := require.New(t)
	engine, users, messages := newTestEngine(t)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(2)
	messages.EXPECT().AppendMessage(gomock.Any()).Return(domain.Message{}, fmt.Errorf("disk full"))

	bob, carol := &recorder{}, &recorder{}
	bobSession := engine.Connect(bob)
	join(t, bobSession, "bob")
	join(t, engine.Connect(carol), "carol")

	// When the append fails
	ev := event.Direct{SenderName: "bob", ReceiverName: "carol", Body: "lost"}
	err := bobSession.HandleDirect(context.Background(), ev)

	// Then neither carol nor bob sees the message
	req.Error(err)
	req.NotContains(carol.received(), ev)
	req.NotContains(bob.received(), ev)
}

func TestEngine_Per_Sender_Order_Is_Preserved(t *testing.T) {
	req := require.New(t)
	engine, users, messages := newTestEngine(t)
	users.EXPECT().UpsertUser(gomock.Any()).Return(domain.User{}, nil).Times(2)
	messages.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(
		func(msg domain.Message) (domain.Message, error) { return msg, nil }).Times(5)

	alice, bob := &recorder{}, &recorder{}
	aliceSession := engine.Connect(alice)
	join(t, aliceSession, "alice")
	join(t, engine.Connect(bob), "bob")

	// When alice sends five messages in order
	for i := 0; i < 5; i++ {
		req.NoError(aliceSession.HandleRoomMessage(context.Background(),
			event.RoomMessage{SenderName: "alice", Body: fmt.Sprintf("msg-%d", i)}))
	}

	// Then bob observes them in the order she sent them
	var bodies []string
	for _, e := range bob.received() {
		if msg, ok := e.(event.RoomMessage); ok {
			bodies = append(bodies, msg.Body)
		}
	}
	req.Equal([]string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, bodies)
}

func TestEngine_Closed_Session_Rejects_Events(t *testing.T) {
	req := require.New(t)
	engine, users, _ := newTestEngine(t)
	users.EXPECT().UpsertUser("alice").Return(domain.User{}, nil)

	sess := engine.Connect(&recorder{})
	join(t, sess, "alice")
	sess.Close(context.Background())

	// A closed session accepts nothing: Closed is terminal
	req.Error(sess.HandleJoin(context.Background(), event.Join{SenderName: "alice"}))
	req.Error(sess.HandleRoomMessage(context.Background(), event.RoomMessage{SenderName: "alice", Body: "x"}))
	req.Error(sess.HandleDirect(context.Background(), event.Direct{SenderName: "alice", ReceiverName: "bob", Body: "x"}))
}
