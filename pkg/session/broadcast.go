package session

import (
	"time"

	"github.com/netios/guacamole-server/pkg/socket"
)

// broadcastSocket is the Session's write-only fan-out sink: a write
// delivers to every Running viewer's private socket; read and select
// are forbidden (spec §4.2).
type broadcastSocket struct {
	session *Session
}

func newBroadcastSocket(s *Session) *broadcastSocket {
	return &broadcastSocket{session: s}
}

// writeLocked delivers p to every Running viewer. Caller must hold
// session.mu. A write error on an individual viewer stops that viewer
// alone; the broadcast write as a whole always succeeds (spec §4.2).
func (b *broadcastSocket) writeLocked(p []byte) {
	for n := b.session.head; n != nil; n = n.next {
		v := n.viewer
		if v.State() != ViewerRunning {
			continue
		}
		if _, err := v.socket.Write(p); err != nil {
			v.Stop()
		}
	}
}

func (b *broadcastSocket) beginLocked() {
	for n := b.session.head; n != nil; n = n.next {
		n.viewer.socket.InstructionBegin()
	}
}

func (b *broadcastSocket) endLocked() {
	for n := b.session.head; n != nil; n = n.next {
		n.viewer.socket.InstructionEnd()
	}
}

func (b *broadcastSocket) Write(p []byte) (int, error) {
	b.session.mu.Lock()
	defer b.session.mu.Unlock()
	b.writeLocked(p)
	return len(p), nil
}

// Read is forbidden on the broadcast socket (spec §4.2).
func (b *broadcastSocket) Read(p []byte) (int, error) {
	return 0, socket.ErrForbidden
}

// Select is forbidden on the broadcast socket (spec §4.2).
func (b *broadcastSocket) Select(timeout time.Duration) error {
	return socket.ErrForbidden
}

func (b *broadcastSocket) InstructionBegin() {
	b.session.mu.Lock()
	defer b.session.mu.Unlock()
	b.beginLocked()
}

func (b *broadcastSocket) InstructionEnd() {
	b.session.mu.Lock()
	defer b.session.mu.Unlock()
	b.endLocked()
}

func (b *broadcastSocket) Flush() error {
	b.session.mu.Lock()
	defer b.session.mu.Unlock()
	for n := b.session.head; n != nil; n = n.next {
		n.viewer.socket.Flush()
	}
	return nil
}

var _ socket.Socket = (*broadcastSocket)(nil)
