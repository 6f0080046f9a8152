// Package backend defines the interface a protocol implementation
// exposes to drive a session's display (spec §6.3). Real screen capture
// and remote-protocol handling are out of scope; this interface is the
// seam a future implementation, or the illustrative webrtcdemo backend,
// plugs into.
package backend

import "github.com/netios/guacamole-server/pkg/session"

// ProtocolBackend installs a session's Handlers and drives its frame
// loop once a session has loaded it as a plugin.
type ProtocolBackend interface {
	Init(s *session.Session) error
}
