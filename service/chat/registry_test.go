package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	c1 := newTestClient("c1", "alice")

	require.True(t, r.Add(c1), "first connection should flip the user online")
	require.True(t, r.IsOnline("alice"))
	require.Len(t, r.ListByUser("alice"), 1)

	require.True(t, r.Remove(c1), "last connection should flip the user offline")
	require.False(t, r.IsOnline("alice"))
	require.Empty(t, r.ListByUser("alice"))
}

func TestRegistryAddIdempotent(t *testing.T) {
	r := NewRegistry()
	c1 := newTestClient("c1", "alice")

	require.True(t, r.Add(c1))
	require.False(t, r.Add(c1), "re-adding the same connection must not re-announce online")
	require.Len(t, r.ListByUser("alice"), 1, "same connection twice must not duplicate")
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	c1 := newTestClient("c1", "alice")

	require.False(t, r.Remove(c1))

	require.True(t, r.Add(c1))
	require.True(t, r.Remove(c1))
	require.False(t, r.Remove(c1), "second remove is a no-op")
}

func TestRegistryMultiDevice(t *testing.T) {
	r := NewRegistry()
	c1 := newTestClient("c1", "alice")
	c2 := newTestClient("c2", "alice")

	require.True(t, r.Add(c1))
	require.False(t, r.Add(c2), "second device must not re-announce online")
	require.Len(t, r.ListByUser("alice"), 2)

	require.False(t, r.Remove(c1), "user stays online while one device remains")
	require.True(t, r.IsOnline("alice"))

	require.True(t, r.Remove(c2), "offline announced exactly once, on the last device")
	require.False(t, r.IsOnline("alice"))
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	const users = 8
	const connsPerUser = 16

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < connsPerUser; i++ {
			wg.Add(1)
			go func(u, i int) {
				defer wg.Done()
				c := newTestClient(fmt.Sprintf("u%d-c%d", u, i), fmt.Sprintf("user%d", u))
				r.Add(c)
				r.Remove(c)
			}(u, i)
		}
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		require.False(t, r.IsOnline(fmt.Sprintf("user%d", u)))
	}
	require.Equal(t, 0, r.OnlineCount())
	require.Empty(t, r.All())
}
