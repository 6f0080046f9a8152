package session

// lagExceeds reports whether v's lag (last_sent - last_received) has
// reached the session's configured lag_threshold (spec §4.5).
func (s *Session) lagExceeds(v *Viewer) bool {
	lag := v.lastSentTimestamp.Load() - v.lastReceivedTimestamp.Load()
	return lag >= s.LagThresholdMS
}

// matchesLastSent reports whether a sync timestamp exactly matches the
// last frame dispatched to v — the resume precondition. Matching the
// exact stamp (not merely "recent enough") guarantees the viewer
// observed precisely the frame the server is waiting on (spec §4.5).
func matchesLastSent(v *Viewer, timestamp int64) bool {
	return timestamp == v.lastSentTimestamp.Load()
}
