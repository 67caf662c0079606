package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the identity record consumed by the gateway. Registration,
// profile and moderation flows own the rest of the document; the core
// reads only the fields admission control needs.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	UserID   string             `bson:"user_id"`  // opaque identity id
	Nickname string             `bson:"nickname"` // display snapshot
	Banned   bool               `bson:"banned"`   // moderation flag; banned identities are refused at handshake

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

func (*User) TableName() string { return "user" }

// Identity is the authenticated view handed to the gateway after
// credential verification.
type Identity struct {
	UserID   string
	Nickname string
}
