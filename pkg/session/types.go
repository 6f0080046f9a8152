package session

// Layer wraps a positive display-layer index (spec §3). Layer indices
// come from the session's layer_pool, offset by one so index 0 stays
// reserved for DefaultLayer.
type Layer struct{ index int }

// Index returns the layer's wire index.
func (l *Layer) Index() int { return l.index }

// Buffer wraps a negative off-screen buffer index (spec §3): the
// negation of a layer_pool-style allocation minus one.
type Buffer struct{ index int }

// Index returns the buffer's wire index.
func (b *Buffer) Index() int { return b.index }

// Stream wraps a stream slot index used to correlate multi-chunk
// clipboard, file, pipe, and blob transfers (spec §3).
type Stream struct{ index int }

// Index returns the stream's wire index.
func (s *Stream) Index() int { return s.index }

// DefaultLayer is the process-wide root layer, index 0. It is a shared
// static: never allocated from a pool and never freed.
var DefaultLayer = &Layer{index: 0}
