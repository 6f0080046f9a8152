package session

import (
	"sync"
	"sync/atomic"

	"github.com/netios/guacamole-server/internal/logging"
	"github.com/netios/guacamole-server/pkg/idgen"
	"github.com/netios/guacamole-server/pkg/idpool"
	"github.com/netios/guacamole-server/pkg/socket"
)

var log = logging.L("session")

// ViewerState is the lag-control state (spec §4.5).
type ViewerState int32

const (
	ViewerRunning ViewerState = iota
	ViewerSuspended
)

// LogLevel mirrors the original guac_client_log/guac_user_log severity
// levels (supplemented from original_source/src/libguac/client.c), so
// Session.Handlers.Log and Viewer.Log carry a level rather than an
// unleveled callback.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// HandshakeInfo carries the handshake hints a viewer supplies before
// join: the guac_user_handshake "info" struct from the original source,
// supplemented here as a concrete parsed type rather than raw wire
// arguments (spec §3 Viewer.info).
type HandshakeInfo struct {
	OptimalWidth      int
	OptimalHeight     int
	OptimalResolution int
	AudioMimetypes    []string
	VideoMimetypes    []string
}

// Capabilities collapses a Viewer's optional per-event handlers into one
// object supplied at join time (spec §9, "per-handler pointers ->
// capability interface"). A nil field means the dispatcher silently
// ignores that instruction or event.
type Capabilities struct {
	Mouse     func(v *Viewer, x, y, mask int)
	Key       func(v *Viewer, keysym int, pressed bool)
	Clipboard func(v *Viewer, stream *Stream, mimetype string)
	Size      func(v *Viewer, w, h int)
	File      func(v *Viewer, stream *Stream, mimetype, name string)
	Pipe      func(v *Viewer, stream *Stream, mimetype, name string)
	Ack       func(v *Viewer, stream *Stream, msg string, status int)
	Blob      func(v *Viewer, stream *Stream, data []byte)
	End       func(v *Viewer, stream *Stream)
	Sync      func(v *Viewer, timestamp int64)
	Frame     func(v *Viewer, timestamp int64)
	Leave     func(v *Viewer)
	Suspend   func(v *Viewer)
	Resume    func(v *Viewer)
}

// Viewer is one physical observer of a Session (spec §3, §4.3).
type Viewer struct {
	session *Session // non-owning; valid only while joined
	id      string
	Owner   bool

	active atomic.Bool
	state  atomic.Int32

	socket socket.Socket

	lastSentTimestamp     atomic.Int64
	lastReceivedTimestamp atomic.Int64

	Info HandshakeInfo
	caps Capabilities

	streamPool *idpool.Pool

	mu            sync.Mutex
	outputStreams map[int]*Stream
	inputStreams  map[int]*Stream

	epoch uint64
}

// NewViewer allocates a blank viewer with no session membership. The
// caller connects it to a session via Session.AddViewer (spec §4.3
// alloc).
func NewViewer(sock socket.Socket, owner bool, caps Capabilities) *Viewer {
	v := &Viewer{
		id:            idgen.ViewerID(),
		Owner:         owner,
		socket:        sock,
		caps:          caps,
		streamPool:    idpool.New(),
		outputStreams: make(map[int]*Stream),
		inputStreams:  make(map[int]*Stream),
	}
	v.active.Store(true)
	v.state.Store(int32(ViewerRunning))
	v.lastReceivedTimestamp.Store(nowMillis())
	return v
}

// ID returns the viewer's globally unique identifier.
func (v *Viewer) ID() string { return v.id }

// Active reports whether the viewer's transport is still considered
// live.
func (v *Viewer) Active() bool { return v.active.Load() }

// State returns the viewer's current lag-control state.
func (v *Viewer) State() ViewerState { return ViewerState(v.state.Load()) }

// Socket returns the viewer's private Socket.
func (v *Viewer) Socket() socket.Socket { return v.socket }

// LastSentTimestamp returns the timestamp of the most recent frame
// dispatched to this viewer.
func (v *Viewer) LastSentTimestamp() int64 { return v.lastSentTimestamp.Load() }

// LastReceivedTimestamp returns the timestamp of the most recent sync
// reply from this viewer.
func (v *Viewer) LastReceivedTimestamp() int64 { return v.lastReceivedTimestamp.Load() }

// Stop signals the viewer must disconnect. Cooperative and idempotent:
// it flips the active flag and closes the transport if it is closeable.
// It does not touch the session's viewer set — that is RemoveViewer's
// job (spec §4.3).
func (v *Viewer) Stop() {
	v.active.Store(false)
	if closer, ok := v.socket.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// Abort is the viewer-scoped analogue of Session.Abort: it logs msg,
// emits a fixed, sparse error instruction on this viewer's socket alone
// (detail stays in the log, per spec §7), then stops it (spec §4.3).
func (v *Viewer) Abort(status int, msg string) {
	v.Log(LogError, msg)

	v.socket.InstructionBegin()
	v.socket.Write(encodeError(status, abortedWireMessage))
	v.socket.InstructionEnd()
	v.socket.Flush()
	v.Stop()
}

// Log delegates to the owning session's log handler, if any (spec
// §4.3).
func (v *Viewer) Log(level LogLevel, format string, args ...any) {
	if v.session == nil || v.session.Handlers.Log == nil {
		return
	}
	v.session.Handlers.Log(level, format, args...)
}

// AllocStream allocates a new outbound stream slot for a server-
// initiated transfer, drawing from this viewer's own stream_pool (spec
// §4.3).
func (v *Viewer) AllocStream() *Stream {
	idx := v.streamPool.Next()
	st := &Stream{index: idx}
	v.mu.Lock()
	v.outputStreams[idx] = st
	v.mu.Unlock()
	return st
}

// FreeStream returns an outbound stream's slot index to stream_pool.
func (v *Viewer) FreeStream(st *Stream) {
	v.mu.Lock()
	delete(v.outputStreams, st.index)
	v.mu.Unlock()
	v.streamPool.Free(st.index)
}

// resolveStream returns the Stream handle for an inbound wire index,
// allocating it on first reference (spec §4.4). The index was chosen by
// the remote peer from its own pool, not drawn from streamPool here.
func (v *Viewer) resolveStream(index int) *Stream {
	v.mu.Lock()
	defer v.mu.Unlock()
	if st, ok := v.inputStreams[index]; ok {
		return st
	}
	st := &Stream{index: index}
	v.inputStreams[index] = st
	return st
}

// releaseInputStream forgets an inbound stream on `end`.
func (v *Viewer) releaseInputStream(st *Stream) {
	v.mu.Lock()
	delete(v.inputStreams, st.index)
	v.mu.Unlock()
}
