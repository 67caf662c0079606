package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"PulseIM/module/chat/message"
	userservice "PulseIM/module/user/service"
	"PulseIM/service/notify"
	"PulseIM/service/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	orig := fetchOffline
	fetchOffline = func(user string, n int) ([]storage.OfflineMsg, error) { return nil, nil }
	t.Cleanup(func() { fetchOffline = orig })

	return NewServer(ServerConf{GatewayID: "gw-test"}, nil,
		message.NewMemStore(), userservice.NewMemGuard(), notify.Nop{})
}

func statusFrames(t *testing.T, c *Client) []UserStatusEvent {
	t.Helper()
	var out []UserStatusEvent
	for {
		f := tryNextFrame(t, c)
		if f == nil {
			return out
		}
		if f.Event == EvtUpdateUserStatus {
			out = append(out, decodeData[UserStatusEvent](t, f))
		}
	}
}

func TestAdmitBroadcastsOnlineOnce(t *testing.T) {
	s := newTestServer(t)
	watcher := newTestClient("w1", "watcher")
	s.Admit(watcher)

	a1 := newTestClient("a1", "alice")
	a2 := newTestClient("a2", "alice")
	s.Admit(a1)
	s.Admit(a2) // second device: no second announcement

	var got []UserStatusEvent
	require.Eventually(t, func() bool {
		got = append(got, statusFrames(t, watcher)...)
		for _, e := range got {
			if e.UserID == "alice" && e.Status == StatusOnline {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	aliceOnline := 0
	for _, e := range got {
		if e.UserID == "alice" && e.Status == StatusOnline {
			aliceOnline++
		}
	}
	require.Equal(t, 1, aliceOnline, "online broadcast exactly once for two devices")
}

func TestTeardownBroadcastsOfflineOnLastDevice(t *testing.T) {
	s := newTestServer(t)
	watcher := newTestClient("w1", "watcher")
	s.Admit(watcher)

	a1 := newTestClient("a1", "alice")
	a2 := newTestClient("a2", "alice")
	s.Admit(a1)
	s.Admit(a2)

	s.Teardown(a1)
	require.True(t, s.Registry().IsOnline("alice"), "still online on the second device")

	s.Teardown(a2)
	require.False(t, s.Registry().IsOnline("alice"))

	var got []UserStatusEvent
	require.Eventually(t, func() bool {
		got = append(got, statusFrames(t, watcher)...)
		for _, e := range got {
			if e.UserID == "alice" && e.Status == StatusOffline {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	offline := 0
	for _, e := range got {
		if e.UserID == "alice" && e.Status == StatusOffline {
			offline++
		}
	}
	require.Equal(t, 1, offline, "offline broadcast exactly once")
}

func TestInboundSendMessageFrame(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient("a1", "alice")
	bob := newTestClient("b1", "bob")
	s.Admit(alice)
	s.Admit(bob)

	f, err := ParseFrame([]byte(`{"event":"sendMessage","data":{"receiverId":"bob","message":"hi","type":"text"}}`))
	require.NoError(t, err)
	require.NoError(t, s.Disp().Dispatch(context.Background(), alice, f))

	var got *Frame
	require.Eventually(t, func() bool {
		if got == nil {
			got = tryNextFrame(t, bob)
		}
		return got != nil && got.Event == EvtReceiveMessage
	}, time.Second, 10*time.Millisecond)

	evt := decodeData[ReceiveMessageEvent](t, got)
	require.Equal(t, "hi", evt.Message.Content)
	require.Equal(t, "alice", evt.Message.SendID, "sender is the admitted identity, not the payload")
}

func TestInboundMalformedPayload(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient("a1", "alice")
	s.Admit(alice)

	f, err := ParseFrame([]byte(`{"event":"typing","data":{"receiverId":{"bad":"shape"}}}`))
	require.NoError(t, err)
	require.Error(t, s.Disp().Dispatch(context.Background(), alice, f))

	var frame *Frame
	require.Eventually(t, func() bool {
		if frame == nil {
			frame = tryNextFrame(t, alice)
		}
		return frame != nil && frame.Event == EvtMessageError
	}, time.Second, 10*time.Millisecond)
}

func TestNotifyUserTargetsConnectionsOnly(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient("a1", "alice")
	s.Admit(alice)

	s.Router().NotifyUser("alice", nil)
	s.Router().NotifyUser("ghost", nil) // offline user: no-op

	f := nextFrame(t, alice, time.Second)
	require.Equal(t, EvtNewNotification, f.Event)
}
