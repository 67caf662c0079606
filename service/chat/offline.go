package chat

import (
	"PulseIM/service/storage"
	"PulseIM/tools/decode"
)

// Seams over the redis offline queue; tests stub these to observe
// offline routing without a redis instance.
var (
	enqueueOffline = func(user, from, msgID string, payload []byte) error {
		return storage.EnqueueOffline(user, from, msgID, payload)
	}
	fetchOffline = func(user string, n int) ([]storage.OfflineMsg, error) {
		return storage.FetchOffline(user, n)
	}
)

func decodeMap[T any](m map[string]any) (*T, error) {
	return decode.DecodeMap[T](m)
}
