package model

// Notification is the message-arrival record handed to the
// notification collaborator. The core only produces these; listing
// and read-state CRUD belong to the surrounding system.
type Notification struct {
	NotifyID string `bson:"notify_id" json:"notifyId"`
	UserID   string `bson:"user_id" json:"userId"` // recipient
	Kind     string `bson:"kind" json:"kind"`      // message | friend_request
	FromID   string `bson:"from_id" json:"fromId"` // originating user
	Body     string `bson:"body" json:"body"`      // short preview text

	CreateTime int64 `bson:"create_time" json:"createTime"` // unix ms
}

func (*Notification) TableName() string { return "notification" }

const (
	NotifyKindMessage       = "message"
	NotifyKindFriendRequest = "friend_request"
)
