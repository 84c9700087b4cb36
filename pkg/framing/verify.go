// pkg/framing/verify.go
package framing

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/dim13/cobs"
	"github.com/kjx98/crc16"
)

var (
	ErrShortPacket = errors.New("packet too short")
	ErrChecksum    = errors.New("checksum mismatch")
	ErrBadFrame    = errors.New("malformed COBS frame")
)

// VerifyXOR checks a trailing XOR checksum and returns the payload without it.
func VerifyXOR(packet []byte) ([]byte, error) {
	if len(packet) < 1 {
		return nil, ErrShortPacket
	}
	payload := packet[:len(packet)-1]
	if XORChecksum(payload) != packet[len(packet)-1] {
		return nil, ErrChecksum
	}
	return payload, nil
}

// VerifyCRC16 checks a trailing little endian CCITT CRC-16 and returns the
// payload without it.
func VerifyCRC16(packet []byte) ([]byte, error) {
	l := len(packet)
	if l < 2 {
		return nil, ErrShortPacket
	}
	crc := binary.LittleEndian.Uint16(packet[l-2:])
	if crc != crc16.ChecksumCCITT(packet[:l-2]) {
		return nil, ErrChecksum
	}
	return packet[:l-2], nil
}

// COBSDecode unstuffs a COBS frame. The zero terminator is optional.
func COBSDecode(frame []byte) ([]byte, error) {
	if len(frame) == 0 || (len(frame) == 1 && frame[0] == 0x00) {
		return nil, ErrShortPacket
	}
	if frame[len(frame)-1] != 0x00 {
		frame = append(append(make([]byte, 0, len(frame)+1), frame...), 0x00)
	}
	// a zero before the terminator would end decoding early
	if bytes.IndexByte(frame[:len(frame)-1], 0x00) >= 0 {
		return nil, ErrBadFrame
	}

	payload := cobs.Decode(frame)
	if payload == nil {
		// 01 00 is the encoding of an empty payload
		if len(frame) == 2 && frame[0] == 0x01 {
			return []byte{}, nil
		}
		return nil, ErrBadFrame
	}
	return payload, nil
}
