package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestClient builds a client with no socket; emitted frames pile up
// in the send queue where tests can inspect them.
func newTestClient(connID, userID string) *Client {
	return NewClient(connID, userID, nil, 64)
}

// nextFrame pops one queued frame, failing the test after the timeout.
func nextFrame(t *testing.T, c *Client, timeout time.Duration) *Frame {
	t.Helper()
	select {
	case b := <-c.send:
		f, err := ParseFrame(b)
		require.NoError(t, err)
		return f
	case <-time.After(timeout):
		t.Fatalf("no frame emitted to conn=%s within %v", c.ConnID, timeout)
		return nil
	}
}

// tryNextFrame returns nil when nothing is queued.
func tryNextFrame(t *testing.T, c *Client) *Frame {
	t.Helper()
	select {
	case b := <-c.send:
		f, err := ParseFrame(b)
		require.NoError(t, err)
		return f
	default:
		return nil
	}
}

// decodeData re-marshals a frame's data into a typed payload.
func decodeData[T any](t *testing.T, f *Frame) T {
	t.Helper()
	var out T
	b, err := json.Marshal(f.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}
