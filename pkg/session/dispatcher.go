package session

import (
	"encoding/base64"
	"strconv"
)

type opcodeSpec struct {
	minArgs int
	handle  func(v *Viewer, argv []string) error
}

var dispatchTable = map[string]opcodeSpec{
	"mouse":     {3, dispatchMouse},
	"key":       {2, dispatchKey},
	"size":      {2, dispatchSize},
	"clipboard": {2, dispatchClipboard},
	"file":      {3, dispatchFile},
	"pipe":      {3, dispatchPipe},
	"ack":       {3, dispatchAck},
	"blob":      {2, dispatchBlob},
	"end":       {1, dispatchEnd},
	"sync":      {1, dispatchSync},
}

// HandleInstruction routes an inbound (opcode, argv) pair to the
// matching typed handler on v, validating arity and resolving stream
// slots for stream-bearing opcodes (spec §4.4). An opcode the table does
// not recognize is silently ignored, same as an opcode with no handler
// installed.
func (v *Viewer) HandleInstruction(opcode string, argv []string) error {
	spec, ok := dispatchTable[opcode]
	if !ok {
		return nil
	}
	if len(argv) < spec.minArgs {
		v.Log(LogWarn, "opcode %q expects at least %d arguments, got %d", opcode, spec.minArgs, len(argv))
		return ErrArity
	}
	return spec.handle(v, argv)
}

func dispatchMouse(v *Viewer, argv []string) error {
	if v.caps.Mouse == nil {
		return nil
	}
	x, _ := strconv.Atoi(argv[0])
	y, _ := strconv.Atoi(argv[1])
	mask, _ := strconv.Atoi(argv[2])
	v.caps.Mouse(v, x, y, mask)
	return nil
}

func dispatchKey(v *Viewer, argv []string) error {
	if v.caps.Key == nil {
		return nil
	}
	keysym, _ := strconv.Atoi(argv[0])
	v.caps.Key(v, keysym, argv[1] == "1")
	return nil
}

func dispatchSize(v *Viewer, argv []string) error {
	if v.caps.Size == nil {
		return nil
	}
	w, _ := strconv.Atoi(argv[0])
	h, _ := strconv.Atoi(argv[1])
	v.caps.Size(v, w, h)
	return nil
}

func dispatchClipboard(v *Viewer, argv []string) error {
	idx, err := strconv.Atoi(argv[0])
	if err != nil {
		return err
	}
	stream := v.resolveStream(idx)
	if v.caps.Clipboard != nil {
		v.caps.Clipboard(v, stream, argv[1])
	}
	return nil
}

func dispatchFile(v *Viewer, argv []string) error {
	idx, err := strconv.Atoi(argv[0])
	if err != nil {
		return err
	}
	stream := v.resolveStream(idx)
	if v.caps.File != nil {
		v.caps.File(v, stream, argv[1], argv[2])
	}
	return nil
}

func dispatchPipe(v *Viewer, argv []string) error {
	idx, err := strconv.Atoi(argv[0])
	if err != nil {
		return err
	}
	stream := v.resolveStream(idx)
	if v.caps.Pipe != nil {
		v.caps.Pipe(v, stream, argv[1], argv[2])
	}
	return nil
}

func dispatchAck(v *Viewer, argv []string) error {
	idx, err := strconv.Atoi(argv[0])
	if err != nil {
		return err
	}
	stream := v.resolveStream(idx)
	status, _ := strconv.Atoi(argv[2])
	if v.caps.Ack != nil {
		v.caps.Ack(v, stream, argv[1], status)
	}
	return nil
}

func dispatchBlob(v *Viewer, argv []string) error {
	idx, err := strconv.Atoi(argv[0])
	if err != nil {
		return err
	}
	stream := v.resolveStream(idx)
	data, err := base64.StdEncoding.DecodeString(argv[1])
	if err != nil {
		return err
	}
	if v.caps.Blob != nil {
		v.caps.Blob(v, stream, data)
	}
	return nil
}

func dispatchEnd(v *Viewer, argv []string) error {
	idx, err := strconv.Atoi(argv[0])
	if err != nil {
		return err
	}
	stream := v.resolveStream(idx)
	if v.caps.End != nil {
		v.caps.End(v, stream)
	}
	v.releaseInputStream(stream)
	return nil
}

// dispatchSync updates last_received_timestamp and drives the resume
// half of the lag-control state machine (spec §4.5).
func dispatchSync(v *Viewer, argv []string) error {
	ts, err := strconv.ParseInt(argv[0], 10, 64)
	if err != nil {
		return err
	}
	v.lastReceivedTimestamp.Store(ts)

	if v.State() == ViewerSuspended && matchesLastSent(v, ts) && v.session != nil {
		v.session.ResumeViewer(v)
	}

	if v.caps.Sync != nil {
		v.caps.Sync(v, ts)
	}
	return nil
}
