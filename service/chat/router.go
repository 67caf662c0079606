package chat

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"PulseIM/logger"
	"PulseIM/module/chat/message"
	chatmodel "PulseIM/module/chat/model"
	userservice "PulseIM/module/user/service"
	"PulseIM/service/notify"
	"PulseIM/tools/errs"
)

const defaultTypingExpiry = time.Second

// Router is the delivery orchestration core. Per message it walks
// composed -> authorized -> persisted -> routed, then handles the
// delivered/read acknowledgement round trips. The store is the source
// of truth; the registry is only consulted for routing, and a miss
// there simply means "offline".
type Router struct {
	reg    *Registry
	store  message.Store
	guard  userservice.Guard
	notify notify.Producer

	typingExpiry time.Duration
	typingMu     sync.Mutex
	typingTimers map[string]*time.Timer // sender|receiver -> auto-stop timer
}

func NewRouter(reg *Registry, store message.Store, guard userservice.Guard, np notify.Producer) *Router {
	if np == nil {
		np = notify.Nop{}
	}
	return &Router{
		reg:          reg,
		store:        store,
		guard:        guard,
		notify:       np,
		typingExpiry: defaultTypingExpiry,
		typingTimers: make(map[string]*time.Timer),
	}
}

// SetTypingExpiry overrides the auto-stop timeout (tests shorten it).
func (r *Router) SetTypingExpiry(d time.Duration) { r.typingExpiry = d }

// SendMessage runs the send pipeline for a message composed on origin.
//
// A blocked relationship drops the message with a nil error: the
// sender must not be able to distinguish a blocked send from a normal
// one over this channel.
func (r *Router) SendMessage(ctx context.Context, origin *Client, p *SendMessagePayload) (*chatmodel.Message, error) {
	senderID := p.SenderID
	if origin != nil {
		// never trust the payload's sender over the admitted identity
		senderID = origin.UserID
	}

	// validate before the block check: a malformed message is refused
	// as such even when the relationship would suppress it
	if err := message.ValidateBody(p.Message, p.MediaURL); err != nil {
		r.emitError(origin, err)
		return nil, err
	}

	ok, err := r.guard.CanExchange(ctx, senderID, p.ReceiverID)
	if err != nil {
		r.emitError(origin, err)
		return nil, err
	}
	if !ok {
		logger.Infof("[router] blocked send suppressed sender=%s receiver=%s", senderID, p.ReceiverID)
		return nil, nil
	}

	m, err := r.store.Create(ctx, senderID, p.ReceiverID, p.Message, p.MediaURL)
	if err != nil {
		r.emitError(origin, err)
		return nil, err
	}

	// Route to every recipient connection. Status stays "sent" until
	// the recipient's client acks delivery; a reachable socket says
	// nothing about the chat actually being on screen.
	recipients := r.reg.ListByUser(p.ReceiverID)
	for _, c := range recipients {
		c.Emit(EvtReceiveMessage, ReceiveMessageEvent{Message: m})
	}

	// Multi-device echo: the sender's other connections stay in sync.
	for _, c := range r.reg.ListByUser(senderID) {
		if origin != nil && c.ConnID == origin.ConnID {
			continue
		}
		c.Emit(EvtReceiveMessage, ReceiveMessageEvent{Message: m})
	}

	if len(recipients) == 0 {
		r.onRecipientOffline(m)
	}
	return m, nil
}

// onRecipientOffline queues the message for reconnect drain and hands
// a notification to the collaborator. Both are best effort.
func (r *Router) onRecipientOffline(m *chatmodel.Message) {
	if b, err := MarshalEvent(EvtReceiveMessage, ReceiveMessageEvent{Message: m}); err == nil {
		if err := enqueueOffline(m.RecvID, m.SendID, m.MsgID, b); err != nil {
			logger.Warnf("[router] offline enqueue user=%s err=%v", m.RecvID, err)
		}
	}
	r.notify.NotifyMessage(m.RecvID, m.SendID, preview(m))
}

// AckDelivered: the receiver's client confirms it received the
// conversation with sender. Forward-only in the store; the sender's
// connections learn which ids moved.
func (r *Router) AckDelivered(ctx context.Context, receiverID, senderID string) ([]string, error) {
	moved, err := r.store.MarkDelivered(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if len(moved) == 0 {
		return nil, nil
	}
	evt := MessagesDeliveredEvent{SenderID: senderID, ReceiverID: receiverID, MessageIDs: moved}
	for _, c := range r.reg.ListByUser(senderID) {
		c.Emit(EvtMessagesDelivered, evt)
	}
	return moved, nil
}

// AckRead: analogous, sent-or-delivered -> read.
func (r *Router) AckRead(ctx context.Context, receiverID, senderID string, msgIDs []string) ([]string, error) {
	moved, err := r.store.MarkRead(ctx, senderID, receiverID, msgIDs)
	if err != nil {
		return nil, err
	}
	if len(moved) == 0 {
		return nil, nil
	}
	evt := MessagesReadEvent{SenderID: senderID, ReceiverID: receiverID, MessageIDs: moved}
	for _, c := range r.reg.ListByUser(senderID) {
		c.Emit(EvtMessagesRead, evt)
	}
	return moved, nil
}

// AddReaction authorizes, mutates and announces to the two
// conversation participants only.
func (r *Router) AddReaction(ctx context.Context, origin *Client, p *AddReactionPayload) error {
	reactor := p.SenderID
	if origin != nil {
		reactor = origin.UserID
	}
	m, err := r.store.GetByID(ctx, p.MessageID)
	if err != nil {
		r.emitError(origin, err)
		return err
	}
	ok, err := r.guard.CanExchange(ctx, m.SendID, m.RecvID)
	if err != nil {
		r.emitError(origin, err)
		return err
	}
	if !ok {
		return nil
	}
	m, err = r.store.AddReaction(ctx, p.MessageID, reactor, p.Emoji)
	if err != nil {
		r.emitError(origin, err)
		return err
	}
	r.emitReaction(m)
	return nil
}

func (r *Router) RemoveReaction(ctx context.Context, origin *Client, p *RemoveReactionPayload) error {
	reactor := p.SenderID
	if origin != nil {
		reactor = origin.UserID
	}
	m, err := r.store.GetByID(ctx, p.MessageID)
	if err != nil {
		r.emitError(origin, err)
		return err
	}
	ok, err := r.guard.CanExchange(ctx, m.SendID, m.RecvID)
	if err != nil {
		r.emitError(origin, err)
		return err
	}
	if !ok {
		return nil
	}
	m, err = r.store.RemoveReaction(ctx, p.MessageID, reactor)
	if err != nil {
		r.emitError(origin, err)
		return err
	}
	r.emitReaction(m)
	return nil
}

func (r *Router) emitReaction(m *chatmodel.Message) {
	evt := ReactionUpdatedEvent{MessageID: m.MsgID, Reactions: m.Reactions}
	for _, uid := range []string{m.SendID, m.RecvID} {
		for _, c := range r.reg.ListByUser(uid) {
			c.Emit(EvtReactionUpdated, evt)
		}
	}
}

// Typing announces an ephemeral typing indicator to the receiver if
// online, and arms the auto-stop timer. Nothing is persisted.
func (r *Router) Typing(senderID, receiverID string) {
	conns := r.reg.ListByUser(receiverID)
	if len(conns) == 0 {
		return
	}
	for _, c := range conns {
		c.Emit(EvtUserTyping, UserTypingEvent{SenderID: senderID})
	}

	key := senderID + "|" + receiverID
	r.typingMu.Lock()
	defer r.typingMu.Unlock()
	if t, ok := r.typingTimers[key]; ok {
		t.Reset(r.typingExpiry)
		return
	}
	r.typingTimers[key] = time.AfterFunc(r.typingExpiry, func() {
		r.StopTyping(senderID, receiverID)
	})
}

// StopTyping clears the indicator, either client-driven or by expiry.
func (r *Router) StopTyping(senderID, receiverID string) {
	key := senderID + "|" + receiverID
	r.typingMu.Lock()
	if t, ok := r.typingTimers[key]; ok {
		t.Stop()
		delete(r.typingTimers, key)
	}
	r.typingMu.Unlock()

	for _, c := range r.reg.ListByUser(receiverID) {
		c.Emit(EvtUserStoppedTyping, UserTypingEvent{SenderID: senderID})
	}
}

// CancelTyping drops any timers a disconnecting sender armed, without
// emitting (the receiver's UI expires on its own timeout).
func (r *Router) CancelTyping(senderID string) {
	r.typingMu.Lock()
	defer r.typingMu.Unlock()
	prefix := senderID + "|"
	for key, t := range r.typingTimers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			t.Stop()
			delete(r.typingTimers, key)
		}
	}
}

// History loads the viewer's side of a conversation for initial render.
func (r *Router) History(ctx context.Context, viewer, other string) ([]*chatmodel.Message, error) {
	return r.store.ListBetween(ctx, viewer, other)
}

// NotifyUser pushes a notification over the shared channel (friend
// request class events ride the same socket).
func (r *Router) NotifyUser(userID string, n *chatmodel.Notification) {
	for _, c := range r.reg.ListByUser(userID) {
		c.Emit(EvtNewNotification, NewNotificationEvent{Notification: n})
	}
}

func (r *Router) emitError(origin *Client, err error) {
	if origin == nil || err == nil {
		return
	}
	code := errs.Code(err)
	if code == 0 {
		code = errs.CodeStoreUnavailable
	}
	origin.Emit(EvtMessageError, MessageErrorEvent{Code: code, Msg: err.Error()})
	logger.Errorf("[router] operation failed conn=%s user=%s err=%v", origin.ConnID, origin.UserID, err)
}

func preview(m *chatmodel.Message) string {
	if m.Content == "" {
		return "[media]"
	}
	if len(m.Content) <= 64 {
		return m.Content
	}
	// back off to a rune boundary so the cut never splits a sequence
	cut := 64
	for cut > 0 && !utf8.RuneStart(m.Content[cut]) {
		cut--
	}
	return m.Content[:cut]
}
