// Package wsocket implements the session core's Socket contract over a
// gorilla/websocket connection — the downstream transport for a single
// viewer's private socket.
package wsocket

import (
	"bytes"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netios/guacamole-server/internal/logging"
	"github.com/netios/guacamole-server/pkg/socket"
)

var log = logging.L("wsocket")

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

// Socket adapts a gorilla/websocket connection to the socket.Socket
// contract. Writes between InstructionBegin/InstructionEnd accumulate in
// a buffer under the same mutex that serializes pings, and go out as one
// websocket text message so concurrent writers never interleave two
// instructions. Reads and Select are not exposed here: inbound
// instructions are parsed off RawConn by the transport layer above the
// session core, not through the Socket contract.
type Socket struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	pending bytes.Buffer
	inInstr bool

	closeOnce sync.Once
	stopCh    chan struct{}
}

// New wraps conn and starts its ping keepalive goroutine.
func New(conn *websocket.Conn) *Socket {
	s := &Socket{
		conn:   conn,
		stopCh: make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.keepAlive()
	return s
}

// RawConn exposes the underlying connection so the transport layer can
// read inbound client instructions independently of the Socket contract.
func (s *Socket) RawConn() *websocket.Conn {
	return s.conn
}

func (s *Socket) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.inInstr {
		return s.pending.Write(p)
	}
	if err := s.writeLocked(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read is forbidden on this socket; see the type doc.
func (s *Socket) Read(p []byte) (int, error) {
	return 0, socket.ErrForbidden
}

// Select is forbidden on this socket; see the type doc.
func (s *Socket) Select(timeout time.Duration) error {
	return socket.ErrForbidden
}

func (s *Socket) InstructionBegin() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.inInstr = true
	s.pending.Reset()
}

func (s *Socket) InstructionEnd() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.pending.Len() > 0 {
		if err := s.writeLocked(s.pending.Bytes()); err != nil {
			log.Warn("instruction flush failed", "error", err)
		}
		s.pending.Reset()
	}
	s.inInstr = false
}

// writeLocked sends one complete websocket text message. Caller must
// hold writeMu.
func (s *Socket) writeLocked(p []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	buf := make([]byte, len(p))
	copy(buf, p)
	return s.conn.WriteMessage(websocket.TextMessage, buf)
}

// Flush is a no-op: writeLocked sends complete messages immediately.
func (s *Socket) Flush() error {
	return nil
}

func (s *Socket) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				log.Warn("ping failed, closing socket", "error", err)
				s.Close()
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the keepalive goroutine and closes the underlying
// connection. Safe to call more than once.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		err = s.conn.Close()
	})
	return err
}

var _ socket.Socket = (*Socket)(nil)
