package app

import "sync"

// wireConn the write surface of one websocket connection the session uses.
// *websocket.Conn satisfies it; tests stand in a fake.
type wireConn interface {
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// sessionConn serializes every write to one underlying connection. The
// websocket library allows a single concurrent writer, and writes land here
// from several goroutines at once: other users' send paths via the registry,
// the read loop's own replies, the ping ticker and pubsub forwards. All of
// them go through this wrapper so no two writes overlap.
type sessionConn struct {
	mu   sync.Mutex
	conn wireConn
}

func newSessionConn(conn wireConn) *sessionConn {
	return &sessionConn{conn: conn}
}

func (s *sessionConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *sessionConn) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *sessionConn) Close() error {
	return s.conn.Close()
}
