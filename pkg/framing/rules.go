// pkg/framing/rules.go
package framing

import (
	"bytes"
	"encoding/binary"

	"github.com/dim13/cobs"
	"github.com/kjx98/crc16"
)

// Delimiter completes a packet on every occurrence of d. The delimiter stays
// in the packet.
func Delimiter(d byte) ReceiveRule {
	return func(_ []byte, b byte) bool {
		return b == d
	}
}

// DelimiterSequence completes a packet when the buffered bytes end with seq.
// An empty seq returns nil, which means pass-through.
func DelimiterSequence(seq []byte) ReceiveRule {
	switch len(seq) {
	case 0:
		return nil
	case 1:
		return Delimiter(seq[0])
	}

	seq = append([]byte(nil), seq...)
	last := len(seq) - 1
	return func(buf []byte, b byte) bool {
		if b != seq[last] || len(buf) < last {
			return false
		}
		return bytes.Equal(buf[len(buf)-last:], seq[:last])
	}
}

// FixedLength completes a packet every n bytes.
func FixedLength(n int) ReceiveRule {
	if n < 1 {
		n = 1
	}
	return func(buf []byte, _ byte) bool {
		return len(buf)+1 >= n
	}
}

// Built-in receive rules.
var (
	LineFeed       = Delimiter('\n')
	CarriageReturn = Delimiter('\r')
	CRLF           = DelimiterSequence([]byte{'\r', '\n'})
	// COBSFrame splits on the zero byte that terminates a COBS frame.
	COBSFrame = Delimiter(0x00)
)

// XORChecksum returns the XOR of all bytes in data.
func XORChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// AppendXORChecksum appends the XOR of all payload bytes.
func AppendXORChecksum(data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, data...)
	return append(out, XORChecksum(data))
}

// AppendCRC16CCITT appends the CCITT CRC-16 of the payload, little endian.
func AppendCRC16CCITT(data []byte) []byte {
	out := make([]byte, len(data), len(data)+2)
	copy(out, data)
	return binary.LittleEndian.AppendUint16(out, crc16.ChecksumCCITT(data))
}

// AppendSuffix returns a rule that appends suffix to every payload.
func AppendSuffix(suffix ...byte) SendRule {
	suffix = append([]byte(nil), suffix...)
	return func(data []byte) []byte {
		out := make([]byte, 0, len(data)+len(suffix))
		out = append(out, data...)
		return append(out, suffix...)
	}
}

// Wrap returns a rule that surrounds every payload with sof and eof.
func Wrap(sof, eof []byte) SendRule {
	sof = append([]byte(nil), sof...)
	eof = append([]byte(nil), eof...)
	return func(data []byte) []byte {
		out := make([]byte, 0, len(sof)+len(data)+len(eof))
		out = append(out, sof...)
		out = append(out, data...)
		return append(out, eof...)
	}
}

// COBSEncode stuffs the payload into a single zero terminated frame.
func COBSEncode(data []byte) []byte {
	return cobs.Encode(data)
}

// Chain applies rules left to right. Nil rules are skipped.
func Chain(rules ...SendRule) SendRule {
	var active []SendRule
	for _, r := range rules {
		if r != nil {
			active = append(active, r)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(data []byte) []byte {
		for _, r := range active {
			data = r(data)
		}
		return data
	}
}
