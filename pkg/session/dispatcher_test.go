package session

import (
	"encoding/base64"
	"testing"
)

func TestHandleInstructionUnknownOpcodeIsIgnored(t *testing.T) {
	v, _ := newTestViewer(true, Capabilities{})
	if err := v.HandleInstruction("nope", nil); err != nil {
		t.Fatalf("unknown opcode returned %v, want nil", err)
	}
}

func TestHandleInstructionBelowMinArityReturnsErrArity(t *testing.T) {
	v, _ := newTestViewer(true, Capabilities{})
	if err := v.HandleInstruction("mouse", []string{"1", "2"}); err != ErrArity {
		t.Fatalf("HandleInstruction(mouse, 2 args) = %v, want ErrArity", err)
	}
}

func TestDispatchMouseInvokesCapability(t *testing.T) {
	var gotX, gotY, gotMask int
	called := false
	v, _ := newTestViewer(true, Capabilities{
		Mouse: func(v *Viewer, x, y, mask int) {
			called = true
			gotX, gotY, gotMask = x, y, mask
		},
	})
	if err := v.HandleInstruction("mouse", []string{"10", "20", "4"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called || gotX != 10 || gotY != 20 || gotMask != 4 {
		t.Fatalf("mouse handler got (%d,%d,%d), called=%v", gotX, gotY, gotMask, called)
	}
}

func TestDispatchKeyParsesPressedFlag(t *testing.T) {
	var gotPressed bool
	v, _ := newTestViewer(true, Capabilities{
		Key: func(v *Viewer, keysym int, pressed bool) { gotPressed = pressed },
	})
	v.HandleInstruction("key", []string{"65307", "1"})
	if !gotPressed {
		t.Fatal("expected pressed=true for key arg \"1\"")
	}
}

func TestDispatchBlobDecodesBase64Payload(t *testing.T) {
	want := []byte("hello world")
	encoded := base64.StdEncoding.EncodeToString(want)

	var got []byte
	var gotStream *Stream
	v, _ := newTestViewer(true, Capabilities{
		Blob: func(v *Viewer, stream *Stream, data []byte) {
			got = data
			gotStream = stream
		},
	})
	if err := v.HandleInstruction("blob", []string{"3", encoded}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("blob payload = %q, want %q", got, want)
	}
	if gotStream.Index() != 3 {
		t.Fatalf("stream index = %d, want 3", gotStream.Index())
	}
}

func TestDispatchEndReleasesInputStream(t *testing.T) {
	var endedStream *Stream
	v, _ := newTestViewer(true, Capabilities{
		End: func(v *Viewer, stream *Stream) { endedStream = stream },
	})

	v.HandleInstruction("blob", []string{"7", base64.StdEncoding.EncodeToString([]byte("x"))})
	if _, ok := v.inputStreams[7]; !ok {
		t.Fatal("expected stream 7 to be tracked after first reference")
	}

	v.HandleInstruction("end", []string{"7"})
	if endedStream == nil || endedStream.Index() != 7 {
		t.Fatalf("End handler stream = %v, want index 7", endedStream)
	}
	if _, ok := v.inputStreams[7]; ok {
		t.Fatal("expected stream 7 to be released after end")
	}
}

func TestDispatchAckParsesStatusCode(t *testing.T) {
	var gotStatus int
	v, _ := newTestViewer(true, Capabilities{
		Ack: func(v *Viewer, stream *Stream, msg string, status int) { gotStatus = status },
	})
	v.HandleInstruction("ack", []string{"1", "ok", "0"})
	if gotStatus != 0 {
		t.Fatalf("ack status = %d, want 0", gotStatus)
	}
}

func TestDispatchWithoutCapabilityInstalledIsNoop(t *testing.T) {
	v, _ := newTestViewer(true, Capabilities{})
	if err := v.HandleInstruction("mouse", []string{"1", "2", "0"}); err != nil {
		t.Fatalf("unexpected error when no Mouse handler installed: %v", err)
	}
}
