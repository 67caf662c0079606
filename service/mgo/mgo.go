package mgo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"PulseIM/logger"
	"PulseIM/tools/errs"
)

type Config struct {
	URI         string
	Database    string
	Username    string
	Password    string
	MaxPoolSize uint64
	MaxRetry    int
}

type manager struct {
	mu sync.RWMutex
	db *mongo.Database
}

var globalMgr manager

// Init connects with bounded retry + backoff and keeps the database
// handle process-wide.
func Init(ctx context.Context, cfg Config) error {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	retry := cfg.MaxRetry
	if retry <= 0 {
		retry = 3
	}
	backoff := 200 * time.Millisecond

	var lastErr error
	for i := 0; i < retry; i++ {
		cli, err := mongo.Connect(ctx, opts)
		if err == nil {
			if err = cli.Ping(ctx, nil); err == nil {
				globalMgr.mu.Lock()
				globalMgr.db = cli.Database(cfg.Database)
				globalMgr.mu.Unlock()
				return nil
			}
			_ = cli.Disconnect(ctx)
		}
		lastErr = err
		logger.Warnf("[mgo] connect attempt %d failed: %v", i+1, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errs.Wrap(ctx.Err())
		case <-timer.C:
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	return errs.ErrStoreUnavailable.WrapMsg("mongo connect", "err", lastErr)
}

// GetDB panics when Init has not succeeded; use TryGetDB on paths that
// can degrade.
func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		panic("mongo not ready: call mgo.Init first")
	}
	return globalMgr.db
}

func TryGetDB() (*mongo.Database, bool) {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		return nil, false
	}
	return globalMgr.db, true
}
