package model

// ===== constants & status =====

const MsgTableName = "message"

// MsgStatus is the recipient-acknowledgement lifecycle of a message.
// Transitions only move forward: sent -> delivered -> read.
type MsgStatus int32

const (
	StatusSent      MsgStatus = 1
	StatusDelivered MsgStatus = 2
	StatusRead      MsgStatus = 3
)

// CanTransition reports whether from -> to is a forward move.
// Replayed or out-of-order acknowledgements land on a false here and
// are treated as no-ops by the store, never as errors.
func CanTransition(from, to MsgStatus) bool {
	switch to {
	case StatusDelivered:
		return from == StatusSent
	case StatusRead:
		return from == StatusSent || from == StatusDelivered
	default:
		return false
	}
}

func (s MsgStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

// ===== storage structures =====

// Reaction is a single emoji annotation. At most one per
// (message, reactor) pair; a second add replaces the emoji.
type Reaction struct {
	UserID string `bson:"user_id" json:"userId"`
	Emoji  string `bson:"emoji" json:"emoji"`
}

// Message is the persisted chat message.
type Message struct {
	MsgID  string `bson:"msg_id" json:"msgId"`   // snowflake string id
	SendID string `bson:"send_id" json:"sendId"` // sender user id
	RecvID string `bson:"recv_id" json:"recvId"` // receiver user id

	Content   string     `bson:"content" json:"content"`              // text body; may be empty iff MediaURL set
	MediaURL  string     `bson:"media_url,omitempty" json:"mediaUrl"` // out-of-band upload reference
	Status    MsgStatus  `bson:"status" json:"status"`                // monotonic, see CanTransition
	Reactions []Reaction `bson:"reactions" json:"reactions"`          // ordered by first-add time

	DelList []string `bson:"del_list,omitempty" json:"-"` // user ids the message is soft-deleted for

	CreateTime int64 `bson:"create_time" json:"createTime"` // unix ms
}

func (*Message) TableName() string { return MsgTableName }

// VisibleTo reports whether viewer has not soft-deleted this message.
func (m *Message) VisibleTo(viewer string) bool {
	for _, u := range m.DelList {
		if u == viewer {
			return false
		}
	}
	return true
}

// ReactionOf returns the viewer's reaction index, or -1.
func (m *Message) ReactionOf(reactor string) int {
	for i, r := range m.Reactions {
		if r.UserID == reactor {
			return i
		}
	}
	return -1
}
