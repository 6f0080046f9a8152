package wsocket

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func newPair(t *testing.T) (*Socket, *websocket.Conn, func()) {
	t.Helper()

	srvConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		srvConnCh <- c
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	srvConn := <-srvConnCh
	s := New(srvConn)

	cleanup := func() {
		s.Close()
		clientConn.Close()
		srv.Close()
	}
	return s, clientConn, cleanup
}

func TestWriteOutsideInstructionSendsImmediately(t *testing.T) {
	s, client, cleanup := newPair(t)
	defer cleanup()

	s.Write([]byte("1.0;"))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(msg) != "1.0;" {
		t.Fatalf("got %q, want %q", msg, "1.0;")
	}
}

func TestInstructionBoundaryDeliversOneMessage(t *testing.T) {
	s, client, cleanup := newPair(t)
	defer cleanup()

	s.InstructionBegin()
	s.Write([]byte("4.sync,"))
	s.Write([]byte("8.00000001;"))
	s.InstructionEnd()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	want := "4.sync,8.00000001;"
	if string(msg) != want {
		t.Fatalf("got %q, want %q", msg, want)
	}
}

func TestReadAndSelectAreForbidden(t *testing.T) {
	s, _, cleanup := newPair(t)
	defer cleanup()

	if _, err := s.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected Read to be forbidden")
	}
	if err := s.Select(0); err == nil {
		t.Fatal("expected Select to be forbidden")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _, cleanup := newPair(t)
	defer cleanup()

	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
