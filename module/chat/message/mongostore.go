package message

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	chatmodel "PulseIM/module/chat/model"
	"PulseIM/tools/errs"
	"PulseIM/tools/ids"
)

// MongoStore is the store of record.
type MongoStore struct {
	msgColl *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	m := chatmodel.Message{}
	return &MongoStore{
		msgColl: db.Collection(m.TableName()),
	}
}

// EnsureIndexes creates the lookup indexes; call once at boot.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.msgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "msg_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "send_id", Value: 1}, {Key: "recv_id", Value: 1}, {Key: "create_time", Value: 1}}},
		{Keys: bson.D{{Key: "recv_id", Value: 1}, {Key: "status", Value: 1}}},
	})
	return errs.Wrap(err)
}

func (s *MongoStore) Create(ctx context.Context, sendID, recvID, content, mediaURL string) (*chatmodel.Message, error) {
	if err := ValidateBody(content, mediaURL); err != nil {
		return nil, err
	}
	m := &chatmodel.Message{
		MsgID:      ids.GenerateString(),
		SendID:     sendID,
		RecvID:     recvID,
		Content:    content,
		MediaURL:   mediaURL,
		Status:     chatmodel.StatusSent,
		Reactions:  []chatmodel.Reaction{},
		CreateTime: time.Now().UnixMilli(),
	}
	if _, err := s.msgColl.InsertOne(ctx, m); err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("insert message", "err", err)
	}
	return m, nil
}

func (s *MongoStore) GetByID(ctx context.Context, msgID string) (*chatmodel.Message, error) {
	var m chatmodel.Message
	err := s.msgColl.FindOne(ctx, bson.M{"msg_id": msgID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("find message", "err", err)
	}
	return &m, nil
}

func (s *MongoStore) ListBetween(ctx context.Context, viewer, other string) ([]*chatmodel.Message, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"send_id": viewer, "recv_id": other},
			bson.M{"send_id": other, "recv_id": viewer},
		},
		"del_list": bson.M{"$ne": viewer},
	}
	cur, err := s.msgColl.Find(ctx, filter, options.Find().SetSort(bson.M{"create_time": 1}))
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("list messages", "err", err)
	}
	defer cur.Close(ctx)

	var out []*chatmodel.Message
	for cur.Next(ctx) {
		var m chatmodel.Message
		if err := cur.Decode(&m); err != nil {
			return nil, errs.ErrStoreUnavailable.WrapMsg("decode message", "err", err)
		}
		out = append(out, &m)
	}
	return out, errs.Wrap(cur.Err())
}

// fromStatuses is the allowed-transitions table inverted: the statuses
// a message may currently hold to legally move to the target.
func fromStatuses(to chatmodel.MsgStatus) []chatmodel.MsgStatus {
	switch to {
	case chatmodel.StatusDelivered:
		return []chatmodel.MsgStatus{chatmodel.StatusSent}
	case chatmodel.StatusRead:
		return []chatmodel.MsgStatus{chatmodel.StatusSent, chatmodel.StatusDelivered}
	default:
		return nil
	}
}

// transition finds the ids in filter eligible for the forward move and
// applies it. Two steps, so the caller learns exactly which ids moved.
func (s *MongoStore) transition(ctx context.Context, filter bson.M, to chatmodel.MsgStatus) ([]string, error) {
	from := fromStatuses(to)
	if len(from) == 0 {
		return nil, nil
	}
	filter["status"] = bson.M{"$in": from}

	cur, err := s.msgColl.Find(ctx, filter, options.Find().SetProjection(bson.M{"msg_id": 1}))
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("find transition set", "err", err)
	}
	defer cur.Close(ctx)

	var moved []string
	for cur.Next(ctx) {
		var m chatmodel.Message
		if err := cur.Decode(&m); err != nil {
			return nil, errs.ErrStoreUnavailable.WrapMsg("decode id", "err", err)
		}
		moved = append(moved, m.MsgID)
	}
	if len(moved) == 0 {
		return nil, nil
	}

	// Re-filter on status in the update too, so a racing ack that
	// already moved a message further is left alone.
	_, err = s.msgColl.UpdateMany(ctx,
		bson.M{"msg_id": bson.M{"$in": moved}, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("update status", "err", err)
	}
	return moved, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, msgIDs []string, status chatmodel.MsgStatus) ([]string, error) {
	if len(msgIDs) == 0 {
		return nil, nil
	}
	return s.transition(ctx, bson.M{"msg_id": bson.M{"$in": msgIDs}}, status)
}

func (s *MongoStore) MarkDelivered(ctx context.Context, sendID, recvID string) ([]string, error) {
	return s.transition(ctx, bson.M{"send_id": sendID, "recv_id": recvID}, chatmodel.StatusDelivered)
}

func (s *MongoStore) MarkRead(ctx context.Context, sendID, recvID string, msgIDs []string) ([]string, error) {
	filter := bson.M{"send_id": sendID, "recv_id": recvID}
	if len(msgIDs) > 0 {
		filter["msg_id"] = bson.M{"$in": msgIDs}
	}
	return s.transition(ctx, filter, chatmodel.StatusRead)
}

func (s *MongoStore) Delete(ctx context.Context, msgID, requester string) error {
	m, err := s.GetByID(ctx, msgID)
	if err != nil {
		return err
	}
	if m.SendID != requester {
		return errs.ErrUnauthorized.WrapMsg("only the sender may delete", "msg_id", msgID)
	}
	if _, err := s.msgColl.DeleteOne(ctx, bson.M{"msg_id": msgID}); err != nil {
		return errs.ErrStoreUnavailable.WrapMsg("delete message", "err", err)
	}
	return nil
}

func (s *MongoStore) DeleteFor(ctx context.Context, msgID, viewer string) error {
	res, err := s.msgColl.UpdateOne(ctx,
		bson.M{"msg_id": msgID},
		bson.M{"$addToSet": bson.M{"del_list": viewer}},
	)
	if err != nil {
		return errs.ErrStoreUnavailable.WrapMsg("soft delete", "err", err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	return nil
}

func (s *MongoStore) AddReaction(ctx context.Context, msgID, reactor, emoji string) (*chatmodel.Message, error) {
	// Replace in place first, to keep the reactor's original position.
	res, err := s.msgColl.UpdateOne(ctx,
		bson.M{"msg_id": msgID, "reactions.user_id": reactor},
		bson.M{"$set": bson.M{"reactions.$.emoji": emoji}},
	)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("replace reaction", "err", err)
	}
	if res.MatchedCount == 0 {
		res, err = s.msgColl.UpdateOne(ctx,
			bson.M{"msg_id": msgID},
			bson.M{"$push": bson.M{"reactions": chatmodel.Reaction{UserID: reactor, Emoji: emoji}}},
		)
		if err != nil {
			return nil, errs.ErrStoreUnavailable.WrapMsg("push reaction", "err", err)
		}
		if res.MatchedCount == 0 {
			return nil, errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
		}
	}
	return s.GetByID(ctx, msgID)
}

func (s *MongoStore) RemoveReaction(ctx context.Context, msgID, reactor string) (*chatmodel.Message, error) {
	res, err := s.msgColl.UpdateOne(ctx,
		bson.M{"msg_id": msgID},
		bson.M{"$pull": bson.M{"reactions": bson.M{"user_id": reactor}}},
	)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("pull reaction", "err", err)
	}
	if res.MatchedCount == 0 {
		return nil, errs.ErrNotFound.WrapMsg("message", "msg_id", msgID)
	}
	return s.GetByID(ctx, msgID)
}

func (s *MongoStore) UnreadCounts(ctx context.Context, recvID string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"recv_id": recvID,
			"status":  bson.M{"$in": bson.A{chatmodel.StatusSent, chatmodel.StatusDelivered}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$send_id",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := s.msgColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("unread counts", "err", err)
	}
	defer cur.Close(ctx)

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			SendID string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, errs.ErrStoreUnavailable.WrapMsg("decode count", "err", err)
		}
		out[row.SendID] = row.Count
	}
	return out, errs.Wrap(cur.Err())
}
