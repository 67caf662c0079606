package storage

import (
	"encoding/json"
	"fmt"
)

// ===== offline queue: one list per user =====
//
// Messages sent while the recipient has no live connection are queued
// here so the client can drain them on reconnect without a full
// conversation sync.

type OfflineMsg struct {
	From    string `json:"from"`
	MsgID   string `json:"msg_id"`
	Payload []byte `json:"payload"`
}

func offlineKey(user string) string { return "im:offline:" + user }

// EnqueueOffline appends to the user's offline queue, keeping a
// rolling window of the most recent entries.
func EnqueueOffline(user, from, msgID string, payload []byte) error {
	if rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	b, _ := json.Marshal(OfflineMsg{From: from, MsgID: msgID, Payload: payload})
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, offlineKey(user), b)
	pipe.LTrim(ctx, offlineKey(user), 0, 9999)
	_, err := pipe.Exec(ctx)
	return err
}

// FetchOffline pops up to n offline messages, oldest first.
func FetchOffline(user string, n int) ([]OfflineMsg, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis not initialized")
	}
	if n <= 0 {
		n = 100
	}

	llen, err := rdb.LLen(ctx, offlineKey(user)).Result()
	if err != nil {
		return nil, err
	}
	if llen == 0 {
		return nil, nil
	}
	if int64(n) > llen {
		n = int(llen)
	}

	// tail = oldest (LPush prepends), so drain from the tail for FIFO
	start := llen - int64(n)
	vals, err := rdb.LRange(ctx, offlineKey(user), start, llen-1).Result()
	if err != nil {
		return nil, err
	}
	// LTrim(0, -1) keeps everything, so a full drain must DEL instead
	if start == 0 {
		if err := rdb.Del(ctx, offlineKey(user)).Err(); err != nil {
			return nil, err
		}
	} else if err := rdb.LTrim(ctx, offlineKey(user), 0, start-1).Err(); err != nil {
		return nil, err
	}

	out := make([]OfflineMsg, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var m OfflineMsg
		_ = json.Unmarshal([]byte(vals[i]), &m)
		out = append(out, m)
	}
	return out, nil
}
