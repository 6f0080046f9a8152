package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/netios/guacamole-server/pkg/idgen"
	"github.com/netios/guacamole-server/pkg/idpool"
	"github.com/netios/guacamole-server/pkg/socket"
)

// State is the session's coarse lifecycle state (spec §3, §9 property 7:
// state only ever moves forward, Running -> Stopping -> Stopped).
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// InitFunc is the entry point a loaded protocol plugin exposes: it wires
// Handlers and Args onto the session before the session accepts viewers
// (spec §6.2).
type InitFunc func(s *Session) error

// Binding is the live resource a Loader hands back alongside InitFunc —
// the session core releases it via Release when the session frees (spec
// §6.2). A plugin with nothing to release can return a no-op Binding.
type Binding interface {
	Release() error
}

// Loader resolves a protocol name to an InitFunc/Binding pair. It is
// declared here, not in pkg/plugin, so pkg/plugin can depend on
// pkg/session without a cycle (spec §6.2).
type Loader interface {
	Load(protocolName string) (InitFunc, Binding, error)
}

// Handlers are the session-wide event callbacks a protocol plugin
// installs from its InitFunc (spec §4.2, §9 capability-object note).
type Handlers struct {
	Join    func(s *Session, v *Viewer, args []string) error
	Leave   func(s *Session, v *Viewer)
	Suspend func(s *Session, v *Viewer)
	Resume  func(s *Session, v *Viewer)
	Free    func(s *Session) error
	Log     func(level LogLevel, format string, args ...any)
}

// node is an intrusive element of the session's owned viewer list. The
// list plus the index map below gives O(1) append, O(1) removal by
// pointer, and stable forward iteration — the alternative chosen over
// spec §9's suggested generational-arena index table.
type node struct {
	viewer *Viewer
	prev   *node
	next   *node
}

// Session is one remote-desktop session core: the shared display state,
// the viewer set, and the plugin binding driving it (spec §3, §4).
type Session struct {
	ID string

	state atomic.Int32

	layerPool  *idpool.Pool
	bufferPool *idpool.Pool

	lastSentTimestamp atomic.Int64
	LagThresholdMS    int64

	mu          sync.Mutex
	head, tail  *node
	index       map[*Viewer]*node
	viewerCount int
	nextEpoch   uint64

	broadcast *broadcastSocket

	pluginBinding Binding

	Handlers Handlers
	Args     []string
}

// New allocates an idle session with no plugin loaded and no viewers
// joined (spec §4.1 alloc).
func New(lagThresholdMS int64) *Session {
	s := &Session{
		ID:             idgen.SessionID(),
		layerPool:      idpool.New(),
		bufferPool:     idpool.New(),
		LagThresholdMS: lagThresholdMS,
		index:          make(map[*Viewer]*node),
	}
	s.broadcast = newBroadcastSocket(s)
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// BroadcastSocket returns the session-wide fan-out Socket (spec §4.2).
func (s *Session) BroadcastSocket() socket.Socket { return s.broadcast }

// LoadPlugin resolves protocolName via loader and runs its InitFunc
// against this session (spec §6.2). LoadPlugin may only be called once
// per session, before any viewer joins.
func (s *Session) LoadPlugin(loader Loader, protocolName string) error {
	initFn, binding, err := loader.Load(protocolName)
	if err != nil {
		return wrapErr(KindNotFound, fmt.Errorf("load plugin %q: %w", protocolName, err))
	}
	if err := initFn(s); err != nil {
		if binding != nil {
			binding.Release()
		}
		return wrapErr(KindInternal, fmt.Errorf("init plugin %q: %w", protocolName, err))
	}
	s.pluginBinding = binding
	return nil
}

// AllocLayer allocates a new non-default display layer, indices starting
// at 1 (original_source/src/libguac/client.c: guac_pool_next_int+1).
func (s *Session) AllocLayer() *Layer {
	return &Layer{index: s.layerPool.Next() + 1}
}

// FreeLayer returns l's index to the layer pool. Freeing DefaultLayer is
// a no-op: it was never allocated from the pool.
func (s *Session) FreeLayer(l *Layer) {
	if l == DefaultLayer || l.index == 0 {
		return
	}
	s.layerPool.Free(l.index - 1)
}

// AllocBuffer allocates a new off-screen buffer, indices running negative
// (original_source/src/libguac/client.c: -guac_pool_next_int-1).
func (s *Session) AllocBuffer() *Buffer {
	return &Buffer{index: -s.bufferPool.Next() - 1}
}

// FreeBuffer returns b's index to the buffer pool.
func (s *Session) FreeBuffer(b *Buffer) {
	s.bufferPool.Free(-b.index - 1)
}

// AddViewer joins v to the session under the viewer-set lock, invoking
// the plugin's Join handler before splicing v into the list so a
// rejecting handler never leaves a half-joined viewer behind (spec §4.2
// add_viewer). Returns the viewer count after the join.
func (s *Session) AddViewer(v *Viewer, args []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Handlers.Join != nil {
		if err := s.Handlers.Join(s, v, args); err != nil {
			return s.viewerCount, wrapErr(KindProtocol, err)
		}
	}

	v.session = s
	s.nextEpoch++
	v.epoch = s.nextEpoch

	n := &node{viewer: v}
	if s.tail == nil {
		s.head, s.tail = n, n
	} else {
		n.prev = s.tail
		s.tail.next = n
		s.tail = n
	}
	s.index[v] = n
	s.viewerCount++
	return s.viewerCount, nil
}

// RemoveViewer leaves v from the session under the viewer-set lock,
// calling v's own Leave capability if installed (else the session's
// Leave handler) before unsplicing (spec §4.2 remove_viewer). Returns
// ErrStaleViewerHandle if v was already removed or never joined this
// session, rather than corrupting the list.
func (s *Session) RemoveViewer(v *Viewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeViewerLocked(v)
}

func (s *Session) removeViewerLocked(v *Viewer) error {
	n, ok := s.index[v]
	if !ok || v.session != s {
		return ErrStaleViewerHandle
	}

	if v.caps.Leave != nil {
		v.caps.Leave(v)
	} else if s.Handlers.Leave != nil {
		s.Handlers.Leave(s, v)
	}

	delete(s.index, v)
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	s.viewerCount--
	v.session = nil
	return nil
}

// SuspendViewer transitions v to Suspended, stops broadcasting frames to
// it, and fires the viewer's Suspend capability if installed, falling
// back to the session-wide Suspend handler otherwise (spec §4.5).
func (s *Session) SuspendViewer(v *Viewer) {
	if !v.state.CompareAndSwap(int32(ViewerRunning), int32(ViewerSuspended)) {
		return
	}
	if v.caps.Suspend != nil {
		v.caps.Suspend(v)
	} else if s.Handlers.Suspend != nil {
		s.Handlers.Suspend(s, v)
	}
}

// ResumeViewer transitions v back to Running once it has caught up (spec
// §4.5), firing the viewer's Resume capability if installed, else the
// session-wide Resume handler. Called from the sync dispatch path when
// the viewer's reply timestamp matches the last frame sent to it.
func (s *Session) ResumeViewer(v *Viewer) {
	if !v.state.CompareAndSwap(int32(ViewerSuspended), int32(ViewerRunning)) {
		return
	}
	if v.caps.Resume != nil {
		v.caps.Resume(v)
	} else if s.Handlers.Resume != nil {
		s.Handlers.Resume(s, v)
	}
}

// ForEachViewer calls fn once per currently-joined viewer, in join order.
// fn must not call AddViewer/RemoveViewer on this session (spec §4.2
// for_each_viewer is read-only over the set it iterates).
func (s *Session) ForEachViewer(fn func(v *Viewer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := s.head; n != nil; n = n.next {
		fn(n.viewer)
	}
}

// ViewerCount returns the number of currently-joined viewers.
func (s *Session) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewerCount
}

// EndFrame stamps and flushes a sync instruction to every Running viewer,
// then evaluates the lag-control predicate per viewer and suspends any
// that have fallen too far behind (spec §4.5). The suspend calls happen
// after the viewer-set lock is released, since SuspendViewer only touches
// per-viewer atomics, not the list.
func (s *Session) EndFrame() error {
	ts := nowMillis()

	s.mu.Lock()
	s.lastSentTimestamp.Store(ts)

	s.broadcast.beginLocked()
	s.broadcast.writeLocked(encodeSync(ts))
	s.broadcast.endLocked()

	var toSuspend []*Viewer
	for n := s.head; n != nil; n = n.next {
		v := n.viewer
		if v.State() != ViewerRunning {
			continue
		}
		v.lastSentTimestamp.Store(ts)
		if v.caps.Frame != nil {
			v.caps.Frame(v, ts)
		}
		if s.lagExceeds(v) {
			toSuspend = append(toSuspend, v)
		}
	}
	s.mu.Unlock()

	for _, v := range toSuspend {
		s.SuspendViewer(v)
	}
	return nil
}

// Stop transitions the session to Stopping, idempotently (spec §4.1
// stop). It does not itself remove viewers or release the plugin
// binding — that is Free's job.
func (s *Session) Stop() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
}

// abortedWireMessage is the fixed, deliberately sparse message put on the
// wire for an abort (original_source/src/libguac/client.c:266-271 sends
// "Aborted. See logs.", a fixed string, not the caller's msg). Detail
// goes to the log sink instead (spec §7).
const abortedWireMessage = "Aborted. See logs."

// Abort logs msg and stops the session after broadcasting an error
// instruction to every viewer, so clients learn why the session ended
// (spec §4.1 abort). Idempotent: calls after the first are no-ops while
// the session is already Stopping or Stopped.
func (s *Session) Abort(status int, msg string) {
	if s.State() != StateRunning {
		return
	}

	if s.Handlers.Log != nil {
		s.Handlers.Log(LogError, msg)
	}

	s.mu.Lock()
	s.broadcast.beginLocked()
	s.broadcast.writeLocked(encodeError(status, abortedWireMessage))
	s.broadcast.endLocked()
	s.mu.Unlock()
	s.Stop()
}

// Free tears the session down: every remaining viewer is removed (Leave
// fires for each), the plugin's Free handler runs, and the plugin
// binding is released. Handler and release errors are logged, not
// propagated — free must always complete (spec §4.1 free).
func (s *Session) Free() {
	s.state.Store(int32(StateStopping))

	for {
		s.mu.Lock()
		n := s.head
		s.mu.Unlock()
		if n == nil {
			break
		}
		n.viewer.Stop()
		if err := s.RemoveViewer(n.viewer); err != nil && err != ErrStaleViewerHandle {
			log.Warn("remove viewer during free", "viewer", n.viewer.ID(), "error", err)
		}
	}

	if s.Handlers.Free != nil {
		if err := s.Handlers.Free(s); err != nil {
			log.Warn("plugin free handler returned error", "session", s.ID, "error", err)
		}
	}
	if s.pluginBinding != nil {
		if err := s.pluginBinding.Release(); err != nil {
			log.Warn("plugin binding release returned error", "session", s.ID, "error", err)
		}
	}

	s.state.Store(int32(StateStopped))
}
