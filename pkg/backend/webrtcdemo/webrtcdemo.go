// Package webrtcdemo is an illustrative ProtocolBackend that drives a
// session over a WebRTC data channel instead of real screen capture
// (out of scope per spec §1). It exists to exercise the session core's
// plugin seam end to end: SDP handshake on join, synthetic periodic
// frames, RTCP-driven diagnostics, and clean teardown on Free — adapted
// from the teacher's WebRTC desktop session (grounded on
// LanternOps-breeze agent/internal/remote/desktop/webrtc.go), with the
// video/audio/input-capture machinery stripped out.
package webrtcdemo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/netios/guacamole-server/internal/logging"
	"github.com/netios/guacamole-server/pkg/backend"
	"github.com/netios/guacamole-server/pkg/session"
)

var log = logging.L("webrtcdemo")

const defaultFrameInterval = 16 * time.Millisecond

// Backend drives a Session's frame loop over a WebRTC data channel. Only
// the owner viewer may complete the handshake; EndFrame is called on a
// fixed interval instead of in response to real display changes.
type Backend struct {
	FrameInterval time.Duration

	mu sync.Mutex
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	stopOnce sync.Once
	stopCh   chan struct{}
	running  atomic.Bool
}

// New returns a Backend that ends a frame every interval once streaming
// starts. A non-positive interval falls back to 16ms (~60fps).
func New(interval time.Duration) *Backend {
	if interval <= 0 {
		interval = defaultFrameInterval
	}
	return &Backend{FrameInterval: interval, stopCh: make(chan struct{})}
}

// Init declares the owner's single join argument ("offer", an SDP offer)
// in s.Args and wires the owner join handshake and teardown handler onto
// s (spec §6.3 ProtocolBackend.Init).
func (b *Backend) Init(s *session.Session) error {
	s.Args = []string{"offer"}
	s.Handlers.Join = func(s *session.Session, v *session.Viewer, args []string) error {
		if !v.Owner {
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("webrtcdemo: owner join requires an SDP offer argument")
		}
		return b.start(args[0], s)
	}
	s.Handlers.Free = func(s *session.Session) error {
		b.Stop()
		return nil
	}
	return nil
}

func (b *Backend) start(offerSDP string, s *session.Session) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("webrtcdemo: new peer connection: %w", err)
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == "rtcp" {
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				b.handleRTCPReport(msg.Data)
			})
			return
		}
		b.mu.Lock()
		b.dc = dc
		b.mu.Unlock()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info("webrtc connection state changed", "session", s.ID, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			b.Stop()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("webrtcdemo: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("webrtcdemo: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return fmt.Errorf("webrtcdemo: set local description: %w", err)
	}

	b.mu.Lock()
	b.pc = pc
	b.mu.Unlock()

	b.running.Store(true)
	go b.produce(s)
	return nil
}

// produce ends a frame on every tick until the session stops or Stop is
// called (spec §6.3: a real backend calls EndFrame once per rendered
// frame; this one calls it on a timer).
func (b *Backend) produce(s *session.Session) {
	ticker := time.NewTicker(b.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			if s.State() != session.StateRunning {
				return
			}
			if err := s.EndFrame(); err != nil {
				log.Warn("end frame failed", "session", s.ID, "error", err)
			}
		}
	}
}

func (b *Backend) handleRTCPReport(data []byte) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return
	}
	for _, p := range pkts {
		switch p.(type) {
		case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
			log.Debug("rtcp keyframe request received")
		}
	}
}

// Stop tears down the peer connection and halts the frame producer.
// Idempotent.
func (b *Backend) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.running.Store(false)
		b.mu.Lock()
		pc := b.pc
		b.mu.Unlock()
		if pc != nil {
			pc.Close()
		}
	})
}

var _ backend.ProtocolBackend = (*Backend)(nil)
