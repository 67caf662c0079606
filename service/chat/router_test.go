package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"PulseIM/module/chat/message"
	chatmodel "PulseIM/module/chat/model"
	userservice "PulseIM/module/user/service"
	"PulseIM/service/storage"
	"PulseIM/tools/errs"
)

type notifyRecorder struct {
	mu    sync.Mutex
	calls []string // "user|from"
}

func (n *notifyRecorder) NotifyMessage(userID, fromID, preview string) {
	n.mu.Lock()
	n.calls = append(n.calls, userID+"|"+fromID)
	n.mu.Unlock()
}

func (n *notifyRecorder) Close() error { return nil }

func (n *notifyRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type routerFixture struct {
	reg    *Registry
	store  *message.MemStore
	guard  *userservice.MemGuard
	notify *notifyRecorder
	router *Router
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		reg:    NewRegistry(),
		store:  message.NewMemStore(),
		guard:  userservice.NewMemGuard(),
		notify: &notifyRecorder{},
	}
	f.router = NewRouter(f.reg, f.store, f.guard, f.notify)
	return f
}

func (f *routerFixture) connect(connID, userID string) *Client {
	c := newTestClient(connID, userID)
	f.reg.Add(c)
	return c
}

func TestSendMessageOnlineDelivery(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, chatmodel.StatusSent, m.Status)

	frame := nextFrame(t, bob, time.Second)
	require.Equal(t, EvtReceiveMessage, frame.Event)
	got := decodeData[ReceiveMessageEvent](t, frame)
	require.Equal(t, "hi", got.Message.Content)
	require.Equal(t, chatmodel.StatusSent, got.Message.Status)
	require.Equal(t, "alice", got.Message.SendID)

	// status stays sent until bob's client acks delivery
	stored, err := f.store.GetByID(context.Background(), m.MsgID)
	require.NoError(t, err)
	require.Equal(t, chatmodel.StatusSent, stored.Status)

	// the originating connection gets no echo of its own send
	require.Nil(t, tryNextFrame(t, alice))
}

func TestSendMessageMultiDeviceEcho(t *testing.T) {
	f := newRouterFixture()
	a1 := f.connect("a1", "alice")
	a2 := f.connect("a2", "alice")
	f.connect("b1", "bob")

	_, err := f.router.SendMessage(context.Background(), a1, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)

	echo := nextFrame(t, a2, time.Second)
	require.Equal(t, EvtReceiveMessage, echo.Event)
	require.Nil(t, tryNextFrame(t, a1), "origin device must not receive its own echo")
}

func TestSendMessageBlockedIsSilentlyDropped(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	// alice blocked bob; bob attempts to send
	f.guard.Block("alice", "bob")

	m, err := f.router.SendMessage(context.Background(), bob, &SendMessagePayload{
		ReceiverID: "alice", Message: "hello?",
	})
	require.NoError(t, err, "a blocked send must look like a normal send to the sender")
	require.Nil(t, m)

	msgs, err := f.store.ListBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Empty(t, msgs, "nothing persisted")
	require.Nil(t, tryNextFrame(t, alice), "no event reaches the blocker")
	require.Nil(t, tryNextFrame(t, bob), "no error frame distinguishes the drop")

	// symmetric: the block also stops alice -> bob
	m, err = f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestSendMessageValidation(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	f.connect("b1", "bob")

	_, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "   ",
	})
	require.Error(t, err)

	frame := nextFrame(t, alice, time.Second)
	require.Equal(t, EvtMessageError, frame.Event)

	// media-only is still a valid message
	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", MediaURL: "https://cdn.example.com/x.png", Type: "media",
	})
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestSendMessageOfflineQueuesAndNotifies(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	// bob has no connection

	var queued []storage.OfflineMsg
	var mu sync.Mutex
	orig := enqueueOffline
	enqueueOffline = func(user, from, msgID string, payload []byte) error {
		mu.Lock()
		queued = append(queued, storage.OfflineMsg{From: from, MsgID: msgID, Payload: payload})
		mu.Unlock()
		return nil
	}
	defer func() { enqueueOffline = orig }()

	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hey",
	})
	require.NoError(t, err)
	require.Equal(t, chatmodel.StatusSent, m.Status)

	mu.Lock()
	require.Len(t, queued, 1)
	require.Equal(t, "alice", queued[0].From)
	mu.Unlock()
	require.Equal(t, 1, f.notify.count())

	counts, err := f.store.UnreadCounts(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["alice"])
}

func TestDeliveredAckRoundTrip(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)
	nextFrame(t, bob, time.Second) // drain receiveMessage

	moved, err := f.router.AckDelivered(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{m.MsgID}, moved)

	frame := nextFrame(t, alice, time.Second)
	require.Equal(t, EvtMessagesDelivered, frame.Event)
	evt := decodeData[MessagesDeliveredEvent](t, frame)
	require.Equal(t, []string{m.MsgID}, evt.MessageIDs)

	stored, _ := f.store.GetByID(context.Background(), m.MsgID)
	require.Equal(t, chatmodel.StatusDelivered, stored.Status)

	// replayed ack: no transition, no event
	moved, err = f.router.AckDelivered(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Empty(t, moved)
	require.Nil(t, tryNextFrame(t, alice))
}

func TestReadAckRoundTrip(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)
	nextFrame(t, bob, time.Second)

	moved, err := f.router.AckRead(context.Background(), "bob", "alice", []string{m.MsgID})
	require.NoError(t, err)
	require.Equal(t, []string{m.MsgID}, moved, "exactly the transitioned ids")

	frame := nextFrame(t, alice, time.Second)
	require.Equal(t, EvtMessagesRead, frame.Event)
	evt := decodeData[MessagesReadEvent](t, frame)
	require.Equal(t, []string{m.MsgID}, evt.MessageIDs)

	stored, _ := f.store.GetByID(context.Background(), m.MsgID)
	require.Equal(t, chatmodel.StatusRead, stored.Status)

	// a late delivered ack must not regress read
	moved, err = f.router.AckDelivered(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Empty(t, moved)
	stored, _ = f.store.GetByID(context.Background(), m.MsgID)
	require.Equal(t, chatmodel.StatusRead, stored.Status)
}

func TestReactionUpsertAndScope(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")
	carol := f.connect("c1", "carol")

	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)
	nextFrame(t, bob, time.Second)

	require.NoError(t, f.router.AddReaction(context.Background(), bob, &AddReactionPayload{
		MessageID: m.MsgID, Emoji: "👍",
	}))
	require.NoError(t, f.router.AddReaction(context.Background(), bob, &AddReactionPayload{
		MessageID: m.MsgID, Emoji: "❤️",
	}))

	stored, _ := f.store.GetByID(context.Background(), m.MsgID)
	require.Len(t, stored.Reactions, 1, "second add replaces, never appends")
	require.Equal(t, "❤️", stored.Reactions[0].Emoji)
	require.Equal(t, "bob", stored.Reactions[0].UserID)

	// both participants hear about it, bystanders do not
	for i := 0; i < 2; i++ {
		fa := nextFrame(t, alice, time.Second)
		require.Equal(t, EvtReactionUpdated, fa.Event)
		fb := nextFrame(t, bob, time.Second)
		require.Equal(t, EvtReactionUpdated, fb.Event)
	}
	require.Nil(t, tryNextFrame(t, carol), "reaction updates are scoped to the conversation")

	require.NoError(t, f.router.RemoveReaction(context.Background(), bob, &RemoveReactionPayload{
		MessageID: m.MsgID,
	}))
	stored, _ = f.store.GetByID(context.Background(), m.MsgID)
	require.Empty(t, stored.Reactions)
}

func TestRemoveReactionBlockedIsSuppressed(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	m, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{
		ReceiverID: "bob", Message: "hi",
	})
	require.NoError(t, err)
	nextFrame(t, bob, time.Second)

	require.NoError(t, f.router.AddReaction(context.Background(), bob, &AddReactionPayload{
		MessageID: m.MsgID, Emoji: "👍",
	}))
	nextFrame(t, alice, time.Second)
	nextFrame(t, bob, time.Second)

	// blocked after reacting: the removal is suppressed like any other
	// exchange, with no error and no event toward the blocker
	f.guard.Block("alice", "bob")

	require.NoError(t, f.router.RemoveReaction(context.Background(), bob, &RemoveReactionPayload{
		MessageID: m.MsgID,
	}))
	require.Nil(t, tryNextFrame(t, alice), "no event reaches the blocker")
	require.Nil(t, tryNextFrame(t, bob))

	stored, _ := f.store.GetByID(context.Background(), m.MsgID)
	require.Len(t, stored.Reactions, 1, "the reaction is left untouched")
}

func TestSendMessageValidationPrecedesBlock(t *testing.T) {
	f := newRouterFixture()
	f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	f.guard.Block("alice", "bob")

	// an invalid message to a blocked peer is refused as invalid, not
	// silently dropped
	_, err := f.router.SendMessage(context.Background(), bob, &SendMessagePayload{
		ReceiverID: "alice", Message: "   ",
	})
	require.Error(t, err)
	require.Equal(t, errs.CodeValidation, errs.Code(err))

	frame := nextFrame(t, bob, time.Second)
	require.Equal(t, EvtMessageError, frame.Event)
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	content := strings.Repeat("你", 30) // 90 bytes; byte 64 falls mid-rune
	p := preview(&chatmodel.Message{Content: content})
	require.True(t, utf8.ValidString(p))
	require.Equal(t, strings.Repeat("你", 21), p)

	require.Equal(t, "short", preview(&chatmodel.Message{Content: "short"}))
	require.Equal(t, "[media]", preview(&chatmodel.Message{MediaURL: "https://cdn.example.com/x.png"}))
}

func TestTypingIndicator(t *testing.T) {
	f := newRouterFixture()
	f.connect("a1", "alice")
	bob := f.connect("b1", "bob")
	f.router.SetTypingExpiry(30 * time.Millisecond)

	f.router.Typing("alice", "bob")

	frame := nextFrame(t, bob, time.Second)
	require.Equal(t, EvtUserTyping, frame.Event)
	evt := decodeData[UserTypingEvent](t, frame)
	require.Equal(t, "alice", evt.SenderID)

	// auto-expiry sends the stop without a client stopTyping
	frame = nextFrame(t, bob, time.Second)
	require.Equal(t, EvtUserStoppedTyping, frame.Event)
}

func TestTypingOfflineReceiverIsNoop(t *testing.T) {
	f := newRouterFixture()
	f.connect("a1", "alice")

	f.router.Typing("alice", "bob")

	f.router.typingMu.Lock()
	timers := len(f.router.typingTimers)
	f.router.typingMu.Unlock()
	require.Zero(t, timers, "no timer armed for an offline receiver")
}

func TestHistoryExcludesSoftDeleted(t *testing.T) {
	f := newRouterFixture()
	alice := f.connect("a1", "alice")
	bob := f.connect("b1", "bob")

	m1, err := f.router.SendMessage(context.Background(), alice, &SendMessagePayload{ReceiverID: "bob", Message: "one"})
	require.NoError(t, err)
	_, err = f.router.SendMessage(context.Background(), bob, &SendMessagePayload{ReceiverID: "alice", Message: "two"})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteFor(context.Background(), m1.MsgID, "bob"))

	hist, err := f.router.History(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "two", hist[0].Content)

	hist, err = f.router.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, hist, 2, "soft delete is per viewer")
}
