package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	id     string
	full   bool
	mu     sync.Mutex
	frames []Frame
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Enqueue(frame Frame) bool {
	if c.full {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) received() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	phone := &fakeConn{id: "c1"}
	tablet := &fakeConn{id: "c2"}

	hub.Register("U1", phone)
	hub.Register("U1", tablet)
	hub.Register("U2", &fakeConn{id: "c3"})

	assert.Equal(t, 2, hub.ConnectedUserCount())
	assert.Equal(t, 3, hub.ConnectionCount())
	assert.True(t, hub.IsUserConnected("U1"))

	hub.Unregister("c1")
	assert.True(t, hub.IsUserConnected("U1"))

	hub.Unregister("c2")
	assert.False(t, hub.IsUserConnected("U1"))
	assert.Equal(t, 1, hub.ConnectedUserCount())

	// unknown ids are ignored
	hub.Unregister("c2")
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	a1 := &fakeConn{id: "a1"}
	a2 := &fakeConn{id: "a2"}
	b := &fakeConn{id: "b"}
	slow := &fakeConn{id: "slow", full: true}
	hub.Register("A", a1)
	hub.Register("A", a2)
	hub.Register("B", b)
	hub.Register("C", slow)

	assert.Equal(t, 2, hub.BroadcastToUser("A", "moment:request", map[string]interface{}{"x": 1}))
	assert.Len(t, a1.received(), 1)
	assert.Len(t, a2.received(), 1)
	assert.Empty(t, b.received())

	assert.Equal(t, 0, hub.BroadcastToUser("nobody", "moment:request", nil))
	assert.Equal(t, 0, hub.BroadcastToUser("C", "moment:request", nil))

	assert.Equal(t, 1, hub.BroadcastToUser("B", "moment:response", "hello"))

	frames := b.received()
	assert.Len(t, frames, 1)
	assert.Equal(t, "moment:response", frames[0].Event)
	assert.Equal(t, "hello", frames[0].Data)
}
