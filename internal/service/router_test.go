package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/errors"
	"pairchat/internal/models"
)

type routerFixture struct {
	directory *Directory
	store     *memoryStore
	router    *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	d := NewDirectory(testRoster())
	store := newMemoryStore()
	r := NewRouter(d, store, testLogger())

	seq := 0
	r.newID = func() string {
		seq++
		return fmt.Sprintf("msg-%d", seq)
	}
	r.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return &routerFixture{directory: d, store: store, router: r}
}

func TestHandleSendBothOnline(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	bobConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)
	f.directory.Bind("bob", bobConn)

	err := f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "hello",
	}, aliceConn)
	require.NoError(t, err)

	received := bobConn.eventsOfKind(models.EventReceiveMessage)
	require.Len(t, received, 1)
	msg := received[0].Data.(*models.Message)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "alice", msg.From)
	assert.Equal(t, "hello", msg.Payload.Text)

	// Sender gets its own echo plus the confirmation.
	echoes := aliceConn.eventsOfKind(models.EventReceiveMessage)
	require.Len(t, echoes, 1)
	assert.Equal(t, "msg-1", echoes[0].Data.(*models.Message).ID)

	confirmations := aliceConn.eventsOfKind(models.EventMessageSent)
	require.Len(t, confirmations, 1)
	sent := confirmations[0].Data.(models.MessageSent)
	assert.Equal(t, "sent", sent.Status)
	assert.Equal(t, "msg-1", sent.MessageID)
	assert.Equal(t, "bob", sent.To)

	// Appended to both histories, nothing pending.
	assert.Len(t, f.store.historyFor("alice"), 1)
	assert.Len(t, f.store.historyFor("bob"), 1)
	assert.Empty(t, f.store.pendingFor("bob"))
}

func TestHandleSendRecipientOffline(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)

	err := f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "hi",
	}, aliceConn)
	require.NoError(t, err)

	pending := f.store.pendingFor("bob")
	require.Len(t, pending, 1)
	assert.Equal(t, "msg-1", pending[0].ID)
	assert.Len(t, f.store.historyFor("bob"), 1)

	// Sender still gets echo and confirmation.
	assert.Len(t, aliceConn.eventsOfKind(models.EventReceiveMessage), 1)
	assert.Len(t, aliceConn.eventsOfKind(models.EventMessageSent), 1)
}

func TestHandleSendLiveDeliveryFailureQueues(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	bobConn := &mockConn{sendErr: assert.AnError}
	f.directory.Bind("alice", aliceConn)
	f.directory.Bind("bob", bobConn)

	err := f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "hi",
	}, aliceConn)
	require.NoError(t, err)

	// Falls back to the pending queue when the live send fails.
	require.Len(t, f.store.pendingFor("bob"), 1)
}

func TestHandleSendRejectsNonCounterpartTarget(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)

	tests := []struct {
		name string
		to   string
	}{
		{name: "self", to: "alice"},
		{name: "unknown", to: "mallory"},
		{name: "empty", to: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
				To:   tt.to,
				Text: "hi",
			}, aliceConn)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidEvent, errors.GetCode(err))
		})
	}

	// A rejected send leaves no trace anywhere.
	assert.Empty(t, f.store.historyFor("alice"))
	assert.Empty(t, aliceConn.events())
}

func TestHandleSendRejectsAmbiguousPayload(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)

	err := f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:    "bob",
		Text:  "hi",
		Image: "data:image/png;base64,xxx",
	}, aliceConn)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidEvent, errors.GetCode(err))

	err = f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To: "bob",
	}, aliceConn)
	require.Error(t, err)
}

func TestHandleSendPersistenceFailureStillDelivers(t *testing.T) {
	f := newRouterFixture(t)
	f.store.appendErr = assert.AnError
	aliceConn := &mockConn{}
	bobConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)
	f.directory.Bind("bob", bobConn)

	err := f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "hi",
	}, aliceConn)
	require.NoError(t, err)

	// Storage trouble never blocks the live path.
	assert.Len(t, bobConn.eventsOfKind(models.EventReceiveMessage), 1)
	assert.Len(t, aliceConn.eventsOfKind(models.EventMessageSent), 1)
}

func TestHandleDelete(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	bobConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)
	f.directory.Bind("bob", bobConn)

	require.NoError(t, f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "oops",
	}, aliceConn))

	err := f.router.HandleDelete(context.Background(), "alice", models.DeleteMessageRequest{
		MessageID: "msg-1",
		To:        "bob",
	}, aliceConn)
	require.NoError(t, err)

	assert.Empty(t, f.store.historyFor("alice"))
	assert.Empty(t, f.store.historyFor("bob"))

	notices := bobConn.eventsOfKind(models.EventDeleteMessage)
	require.Len(t, notices, 1)
	assert.Equal(t, models.DeleteMessageNotice{MessageID: "msg-1"}, notices[0].Data)
	require.Len(t, aliceConn.eventsOfKind(models.EventDeleteMessage), 1)
}

func TestHandleDeleteMirroredNotOwnerRestricted(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	bobConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)
	f.directory.Bind("bob", bobConn)

	require.NoError(t, f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "sent by alice",
	}, aliceConn))

	// The recipient may delete the sender's message.
	err := f.router.HandleDelete(context.Background(), "bob", models.DeleteMessageRequest{
		MessageID: "msg-1",
		To:        "alice",
	}, bobConn)
	require.NoError(t, err)
	assert.Empty(t, f.store.historyFor("alice"))
	assert.Empty(t, f.store.historyFor("bob"))
}

func TestHandleDeleteBeforeRecipientConnects(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)

	require.NoError(t, f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "retracted",
	}, aliceConn))
	require.Len(t, f.store.pendingFor("bob"), 1)

	require.NoError(t, f.router.HandleDelete(context.Background(), "alice", models.DeleteMessageRequest{
		MessageID: "msg-1",
		To:        "bob",
	}, aliceConn))

	// No trace anywhere: bob connecting later sees nothing.
	assert.Empty(t, f.store.pendingFor("bob"))
	assert.Empty(t, f.store.historyFor("bob"))

	bobConn := &mockConn{}
	f.router.DeliverBacklog(context.Background(), "bob", bobConn)
	assert.Empty(t, bobConn.eventsOfKind(models.EventReceiveMessage))
}

func TestHandleDeleteUnknownIDIsNoOp(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)

	err := f.router.HandleDelete(context.Background(), "alice", models.DeleteMessageRequest{
		MessageID: "never-existed",
		To:        "bob",
	}, aliceConn)
	require.NoError(t, err)
	// Sender is still notified, keeping the client idempotent.
	assert.Len(t, aliceConn.eventsOfKind(models.EventDeleteMessage), 1)
}

func TestHandleSeenForwardsMatchingID(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	bobConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)
	f.directory.Bind("bob", bobConn)

	require.NoError(t, f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
		To:   "bob",
		Text: "look at this",
	}, aliceConn))

	err := f.router.HandleSeen(context.Background(), "bob", models.MessageSeenRequest{
		MessageID: "msg-1",
		To:        "alice",
	})
	require.NoError(t, err)

	seen := aliceConn.eventsOfKind(models.EventMessageSeen)
	require.Len(t, seen, 1)
	assert.Equal(t, models.MessageSeenNotice{MessageID: "msg-1"}, seen[0].Data)
}

func TestHandleSeenDroppedWhenOffline(t *testing.T) {
	f := newRouterFixture(t)

	err := f.router.HandleSeen(context.Background(), "bob", models.MessageSeenRequest{
		MessageID: "msg-1",
		To:        "alice",
	})
	require.NoError(t, err)

	// Never queued: alice connecting later receives nothing.
	aliceConn := &mockConn{}
	f.router.DeliverBacklog(context.Background(), "alice", aliceConn)
	assert.Empty(t, aliceConn.eventsOfKind(models.EventMessageSeen))
}

func TestHandleTyping(t *testing.T) {
	f := newRouterFixture(t)
	bobConn := &mockConn{}
	f.directory.Bind("bob", bobConn)

	err := f.router.HandleTyping(context.Background(), "alice", models.TypingRequest{
		To:       "bob",
		IsTyping: true,
	})
	require.NoError(t, err)

	typing := bobConn.eventsOfKind(models.EventTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, models.TypingNotice{From: "alice", IsTyping: true}, typing[0].Data)

	// Offline target: dropped without error and never persisted.
	f.directory.Unbind("bob")
	require.NoError(t, f.router.HandleTyping(context.Background(), "alice", models.TypingRequest{
		To:       "bob",
		IsTyping: false,
	}))
	assert.Empty(t, f.store.pendingFor("bob"))
}

func TestHandleSignalingRelaysVerbatim(t *testing.T) {
	f := newRouterFixture(t)
	bobConn := &mockConn{}
	f.directory.Bind("bob", bobConn)

	payload := []byte(`{"to":"bob","offer":{"type":"offer","sdp":"v=0 fake sdp"}}`)
	err := f.router.HandleSignaling(context.Background(), "alice", models.EventWebRTCOffer, payload)
	require.NoError(t, err)

	relayed := bobConn.eventsOfKind(models.EventWebRTCOffer)
	require.Len(t, relayed, 1)
	fields := relayed[0].Data.(map[string]interface{})
	assert.Equal(t, "alice", fields["from"])
	assert.NotContains(t, fields, "to")
	// The inner payload passes through untouched.
	offer := fields["offer"].(map[string]interface{})
	assert.Equal(t, "v=0 fake sdp", offer["sdp"])
}

func TestHandleSignalingOfflineSilentDrop(t *testing.T) {
	f := newRouterFixture(t)

	err := f.router.HandleSignaling(context.Background(), "alice", models.EventWebRTCICE,
		[]byte(`{"to":"bob","candidate":{"candidate":"candidate:1"}}`))
	require.NoError(t, err)

	// Nothing queued, nothing persisted.
	assert.Empty(t, f.store.pendingFor("bob"))
	assert.Empty(t, f.store.historyFor("bob"))
}

func TestHandleSignalingRejectsNonCounterpart(t *testing.T) {
	f := newRouterFixture(t)

	err := f.router.HandleSignaling(context.Background(), "alice", models.EventEndCall,
		[]byte(`{"to":"mallory"}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidEvent, errors.GetCode(err))
}

func TestDeliverBacklogPendingThenHistory(t *testing.T) {
	f := newRouterFixture(t)
	aliceConn := &mockConn{}
	f.directory.Bind("alice", aliceConn)

	// Two messages while bob is offline.
	for _, text := range []string{"first", "second"} {
		require.NoError(t, f.router.HandleSend(context.Background(), "alice", models.SendMessageRequest{
			To:   "bob",
			Text: text,
		}, aliceConn))
	}

	bobConn := &mockConn{}
	f.router.DeliverBacklog(context.Background(), "bob", bobConn)

	received := bobConn.eventsOfKind(models.EventReceiveMessage)
	// Pending drain first, then the full history replay.
	require.Len(t, received, 4)
	assert.Equal(t, "first", received[0].Data.(*models.Message).Payload.Text)
	assert.Equal(t, "second", received[1].Data.(*models.Message).Payload.Text)
	assert.Equal(t, "first", received[2].Data.(*models.Message).Payload.Text)
	assert.Equal(t, "second", received[3].Data.(*models.Message).Payload.Text)

	// The drain cleared the queue: a reconnect replays history only.
	reconnect := &mockConn{}
	f.router.DeliverBacklog(context.Background(), "bob", reconnect)
	assert.Len(t, reconnect.eventsOfKind(models.EventReceiveMessage), 2)
	assert.Empty(t, f.store.pendingFor("bob"))
}

func TestDeliverBacklogStoreErrors(t *testing.T) {
	f := newRouterFixture(t)
	f.store.drainErr = assert.AnError
	f.store.historyErr = assert.AnError

	conn := &mockConn{}
	assert.NotPanics(t, func() {
		f.router.DeliverBacklog(context.Background(), "bob", conn)
	})
	assert.Empty(t, conn.events())
}
