package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tgardner/go-chatserver/internal/types"
)

func testClient(t *testing.T, accountId int, username string) *Client {
	t.Helper()
	return &Client{
		user: types.User{Id: accountId, Username: username},
		send: make(chan *ServerMessage, 256),
		stop: make(chan struct{}),
	}
}

func TestRegistryInstall(t *testing.T) {
	t.Run("first install returns no evicted connection", func(t *testing.T) {
		reg := NewRegistry()
		c := testClient(t, 1, "user1")

		evicted := reg.Install(c)
		assert.Nil(t, evicted, "expected no evicted connection on first install")

		active, ok := reg.Active(1)
		assert.True(t, ok, "expected an active connection for account 1")
		assert.Equal(t, c, active, "expected installed connection to be active")
		assert.True(t, reg.Online(1), "expected account 1 to be online")
	})

	t.Run("second install evicts the first", func(t *testing.T) {
		reg := NewRegistry()
		c1 := testClient(t, 1, "user1")
		c2 := testClient(t, 1, "user1")

		assert.Nil(t, reg.Install(c1))
		evicted := reg.Install(c2)
		assert.Equal(t, c1, evicted, "expected first connection to be evicted")

		active, ok := reg.Active(1)
		assert.True(t, ok)
		assert.Equal(t, c2, active, "expected second connection to be active")
		assert.Equal(t, 1, reg.Len(), "expected exactly one registered connection")
	})

	t.Run("reinstalling the same connection is a no-op", func(t *testing.T) {
		reg := NewRegistry()
		c := testClient(t, 1, "user1")

		assert.Nil(t, reg.Install(c))
		assert.Nil(t, reg.Install(c), "expected no eviction when reinstalling the same connection")
		assert.Equal(t, 1, reg.Len())
	})
}

func TestRegistryRemove(t *testing.T) {
	t.Run("removes the registered connection", func(t *testing.T) {
		reg := NewRegistry()
		c := testClient(t, 1, "user1")
		reg.Install(c)

		assert.True(t, reg.Remove(c), "expected removal of registered connection to report true")
		assert.False(t, reg.Online(1), "expected account 1 to be offline after removal")
	})

	t.Run("removing a superseded connection is a no-op", func(t *testing.T) {
		reg := NewRegistry()
		c1 := testClient(t, 1, "user1")
		c2 := testClient(t, 1, "user1")
		reg.Install(c1)
		reg.Install(c2)

		// c1 was evicted; its own disconnect path must not disturb c2
		assert.False(t, reg.Remove(c1), "expected removal of superseded connection to be a no-op")
		active, ok := reg.Active(1)
		assert.True(t, ok)
		assert.Equal(t, c2, active, "expected newer connection to remain active")
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		reg := NewRegistry()
		c := testClient(t, 1, "user1")
		reg.Install(c)

		assert.True(t, reg.Remove(c))
		assert.False(t, reg.Remove(c), "expected second removal to be a no-op")
	})
}

func TestRegistryConnectionsFor(t *testing.T) {
	reg := NewRegistry()
	c1 := testClient(t, 1, "user1")
	c3 := testClient(t, 3, "user3")
	reg.Install(c1)
	reg.Install(c3)

	conns := reg.ConnectionsFor([]int{1, 2, 3})
	assert.Len(t, conns, 2, "expected offline member 2 to be absent from the result")
	assert.Contains(t, conns, c1)
	assert.Contains(t, conns, c3)
}
