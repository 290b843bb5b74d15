package app

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"civic_message_service/internal/messaging/domain"

	"github.com/stretchr/testify/assert"
)

// overlapConn flags any two writes that are in flight at the same time
type overlapConn struct {
	inflight int32
	overlaps int32
	writes   int32
}

func (c *overlapConn) enter() {
	if atomic.AddInt32(&c.inflight, 1) > 1 {
		atomic.AddInt32(&c.overlaps, 1)
	}
	time.Sleep(time.Microsecond)
	atomic.AddInt32(&c.writes, 1)
	atomic.AddInt32(&c.inflight, -1)
}

func (c *overlapConn) WriteJSON(v interface{}) error {
	c.enter()
	return nil
}

func (c *overlapConn) WriteMessage(messageType int, data []byte) error {
	c.enter()
	return nil
}

func (c *overlapConn) Close() error { return nil }

func TestSessionConn_SerializesWrites(t *testing.T) {
	inner := &overlapConn{}
	session := newSessionConn(inner)

	registry := NewConnectionRegistry()
	registry.Add("bob", session)

	const goroutines = 8
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				assert.NoError(t, registry.Push("bob", domain.WSResponse{
					Action:  string(domain.EventNewMessage),
					Success: true,
				}))
			}
		}()
	}
	// the handler's own writes contend with registry pushes too
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perGoroutine; i++ {
			assert.NoError(t, session.WriteMessage(1, []byte("ping")))
		}
	}()
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&inner.overlaps))
	assert.Equal(t, int32((goroutines+1)*perGoroutine), atomic.LoadInt32(&inner.writes))
}
