package service

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	chatmodel "PulseIM/module/chat/model"
	"PulseIM/tools/errs"
)

// Guard answers whether two identities may exchange messages.
// Consulted at operation time, never cached per connection, because
// relationships can change mid-session.
type Guard interface {
	// CanExchange is false when either party has blocked the other.
	CanExchange(ctx context.Context, a, b string) (bool, error)
}

// ===== mongo =====

// MongoGuard reads the friend collection's is_blocked flag in both
// directions.
type MongoGuard struct {
	friendColl *mongo.Collection
}

func NewMongoGuard(db *mongo.Database) *MongoGuard {
	f := chatmodel.Friend{}
	return &MongoGuard{friendColl: db.Collection(f.TableName())}
}

func (g *MongoGuard) CanExchange(ctx context.Context, a, b string) (bool, error) {
	n, err := g.friendColl.CountDocuments(ctx, bson.M{
		"$or": bson.A{
			bson.M{"owner_user_id": a, "friend_user_id": b, "is_blocked": true},
			bson.M{"owner_user_id": b, "friend_user_id": a, "is_blocked": true},
		},
	})
	if err != nil {
		return false, errs.ErrStoreUnavailable.WrapMsg("block lookup", "err", err)
	}
	return n == 0, nil
}

// ===== in-memory (tests / dev mode) =====

type MemGuard struct {
	mu      sync.RWMutex
	blocked map[[2]string]struct{} // blocker -> blocked
}

func NewMemGuard() *MemGuard {
	return &MemGuard{blocked: make(map[[2]string]struct{})}
}

func (g *MemGuard) Block(blocker, blocked string) {
	g.mu.Lock()
	g.blocked[[2]string{blocker, blocked}] = struct{}{}
	g.mu.Unlock()
}

func (g *MemGuard) Unblock(blocker, blocked string) {
	g.mu.Lock()
	delete(g.blocked, [2]string{blocker, blocked})
	g.mu.Unlock()
}

func (g *MemGuard) CanExchange(ctx context.Context, a, b string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.blocked[[2]string{a, b}]; ok {
		return false, nil
	}
	if _, ok := g.blocked[[2]string{b, a}]; ok {
		return false, nil
	}
	return true, nil
}

var (
	_ Guard = (*MongoGuard)(nil)
	_ Guard = (*MemGuard)(nil)
)
