package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Friend stores one direction of a relationship (each side keeps its
// own record, unique on owner_user_id + friend_user_id). The gateway
// reads only is_blocked; request/accept CRUD lives outside the core.
type Friend struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	OwnerUserID  string             `bson:"owner_user_id"`  // whose friend list
	FriendUserID string             `bson:"friend_user_id"` // the other party

	Remark    string `bson:"remark"`
	IsBlocked bool   `bson:"is_blocked"` // owner blocked the friend
	IsMuted   bool   `bson:"is_muted"`
	Status    int32  `bson:"status"` // 0=pending, 1=accepted, 2=rejected, 3=removed

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

func (*Friend) TableName() string { return "friend" }
