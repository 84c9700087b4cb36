// pkg/framing/framing.go
package framing

// ReceiveRule reports whether b completes a packet. buf holds the bytes
// accumulated since the last packet boundary and does not include b.
// A rule must not modify or retain buf.
type ReceiveRule func(buf []byte, b byte) bool

// SendRule transforms an outgoing payload into the bytes put on the wire.
// It must not modify data; return a new slice when changing it.
type SendRule func(data []byte) []byte

// DefaultMaxPacketSize forces a packet boundary when a receive rule never fires.
const DefaultMaxPacketSize = 64 * 1024

// Framer accumulates received bytes and splits them into packets.
// It is not safe for concurrent use.
type Framer struct {
	rule    ReceiveRule
	maxSize int
	buf     []byte
}

// NewFramer creates a framer. A nil rule passes every chunk through as one
// packet; maxSize <= 0 selects DefaultMaxPacketSize.
func NewFramer(rule ReceiveRule, maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultMaxPacketSize
	}
	return &Framer{rule: rule, maxSize: maxSize}
}

// SetRule replaces the receive rule. Buffered bytes are kept.
func (f *Framer) SetRule(rule ReceiveRule) {
	f.rule = rule
}

// Feed appends chunk byte by byte and returns the packets it completed, in
// order. Returned slices are owned by the caller.
func (f *Framer) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}

	if f.rule == nil {
		packet := make([]byte, 0, len(f.buf)+len(chunk))
		packet = append(packet, f.buf...)
		packet = append(packet, chunk...)
		f.buf = nil
		return [][]byte{packet}
	}

	var packets [][]byte
	for _, b := range chunk {
		complete := f.rule(f.buf, b)
		f.buf = append(f.buf, b)
		if complete || len(f.buf) >= f.maxSize {
			packets = append(packets, f.buf)
			f.buf = nil
		}
	}
	return packets
}

// Pending returns the number of buffered bytes not yet emitted.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset drops buffered bytes.
func (f *Framer) Reset() {
	f.buf = nil
}
