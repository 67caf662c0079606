package chat

import (
	"encoding/json"
	"fmt"

	chatmodel "PulseIM/module/chat/model"
)

// ===== wire protocol =====
//
// Every frame on the socket, both directions, is one JSON object:
//
//	{"event": "<name>", "data": {...}}
//
// The bearer credential never appears in frames; it rides the upgrade
// request (Authorization header or token query param).

// inbound events (client -> server)
const (
	EvtSendMessage       = "sendMessage"
	EvtTyping            = "typing"
	EvtStopTyping        = "stopTyping"
	EvtAddReaction       = "addReaction"
	EvtRemoveReaction    = "removeReaction"
	EvtMessagesDelivered = "messagesDelivered" // client confirms delivery of a sender's messages
	EvtMessagesRead      = "messagesRead"      // client confirms read
)

// outbound events (server -> client)
const (
	EvtUpdateUserStatus  = "updateUserStatus"
	EvtReceiveMessage    = "receiveMessage"
	EvtUserTyping        = "userTyping"
	EvtUserStoppedTyping = "userStoppedTyping"
	EvtReactionUpdated   = "reactionUpdated"
	EvtNewNotification   = "newNotification"
	EvtMessageError      = "messageError"
)

type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return &f, nil
}

// MarshalEvent builds the outbound wire bytes for one event.
func MarshalEvent(event string, data any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: data})
}

// ===== inbound payloads =====

type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	MediaURL   string `json:"mediaUrl"`
	Type       string `json:"type"` // text | media
}

type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
}

type AddReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	SenderID  string `json:"senderId"`
}

type RemoveReactionPayload struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

type DeliveredAckPayload struct {
	SenderID   string `json:"senderId"`   // whose messages got delivered
	ReceiverID string `json:"receiverId"` // the acking client
}

type ReadAckPayload struct {
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	MessageIDs []string `json:"messageIds"`
}

// ===== outbound payloads =====

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type UserStatusEvent struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // online | offline
}

type ReceiveMessageEvent struct {
	Message *chatmodel.Message `json:"message"`
}

type UserTypingEvent struct {
	SenderID string `json:"senderId"`
}

type ReactionUpdatedEvent struct {
	MessageID string               `json:"messageId"`
	Reactions []chatmodel.Reaction `json:"reactions"`
}

type MessagesDeliveredEvent struct {
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	MessageIDs []string `json:"messageIds"`
}

type MessagesReadEvent struct {
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	MessageIDs []string `json:"messageIds"`
}

type NewNotificationEvent struct {
	Notification *chatmodel.Notification `json:"notification"`
}

type MessageErrorEvent struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
