package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// encodeInstruction renders opcode and args in the length-prefixed wire
// form the downstream client protocol uses ("length.value,length.value;"),
// just enough to let the session core emit its own sync/error
// instructions. It is not a general wire codec — encoding/decoding
// arbitrary instructions is out of scope (spec §1); callers above the
// core parse inbound instructions themselves before calling
// Viewer.HandleInstruction.
func encodeInstruction(opcode string, args ...string) []byte {
	var b strings.Builder
	writeElem(&b, opcode)
	for _, a := range args {
		b.WriteByte(',')
		writeElem(&b, a)
	}
	b.WriteByte(';')
	return []byte(b.String())
}

func writeElem(b *strings.Builder, s string) {
	fmt.Fprintf(b, "%d.%s", len(s), s)
}

func encodeSync(ts int64) []byte {
	return encodeInstruction("sync", strconv.FormatInt(ts, 10))
}

func encodeError(status int, msg string) []byte {
	return encodeInstruction("error", msg, strconv.Itoa(status))
}
