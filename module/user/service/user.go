package service

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	usermodel "PulseIM/module/user/model"
	"PulseIM/tools/errs"
)

// IdentityStore resolves user ids to identity records. The user
// module's registration/profile flows own the writes.
type IdentityStore interface {
	GetUser(ctx context.Context, userID string) (*usermodel.User, error)
}

// ===== mongo =====

type MongoIdentityStore struct {
	userColl *mongo.Collection
}

func NewMongoIdentityStore(db *mongo.Database) *MongoIdentityStore {
	u := usermodel.User{}
	return &MongoIdentityStore{userColl: db.Collection(u.TableName())}
}

func (s *MongoIdentityStore) GetUser(ctx context.Context, userID string) (*usermodel.User, error) {
	var u usermodel.User
	err := s.userColl.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("user", "user_id", userID)
	}
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("find user", "err", err)
	}
	return &u, nil
}

// ===== in-memory (tests / dev mode) =====

type MemIdentityStore struct {
	mu    sync.RWMutex
	users map[string]*usermodel.User
}

func NewMemIdentityStore() *MemIdentityStore {
	return &MemIdentityStore{users: make(map[string]*usermodel.User)}
}

func (s *MemIdentityStore) Put(u *usermodel.User) {
	s.mu.Lock()
	s.users[u.UserID] = u
	s.mu.Unlock()
}

func (s *MemIdentityStore) GetUser(ctx context.Context, userID string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user", "user_id", userID)
	}
	c := *u
	return &c, nil
}
