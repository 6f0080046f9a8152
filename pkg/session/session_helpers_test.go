package session

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/netios/guacamole-server/pkg/socket"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBoom = errors.New("boom")

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }

// memSink is a Sink that records every flushed write, for asserting what
// a viewer actually received on the wire.
type memSink struct {
	mu      sync.Mutex
	writes  [][]byte
	flushes int
}

func (m *memSink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), p...)
	m.writes = append(m.writes, cp)
	return len(p), nil
}

func (m *memSink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memSink) all() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	for _, w := range m.writes {
		buf.Write(w)
	}
	return buf.Bytes()
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func newTestViewer(owner bool, caps Capabilities) (*Viewer, *memSink) {
	sink := &memSink{}
	sock := socket.NewBufferSocket(sink)
	return NewViewer(sock, owner, caps), sink
}

func socketFromSink(sink socket.Sink) socket.Socket {
	return socket.NewBufferSocket(sink)
}
