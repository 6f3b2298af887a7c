// Package safestream implements the reliable, ordered byte-stream protocol
// that runs on top of a connected, lossy UDP socket.
package safestream

import "encoding/binary"

// PacketKind tags every datagram exchanged by a Stream.
type PacketKind byte

const (
	PacketWrite PacketKind = iota
	PacketAck
	PacketResend
	PacketEnd
)

func (k PacketKind) String() string {
	switch k {
	case PacketWrite:
		return "WRITE"
	case PacketAck:
		return "ACK"
	case PacketResend:
		return "RESEND"
	case PacketEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

const (
	// headerSize is the fixed id+kind prefix on every datagram.
	headerSize = 3
	// MaxPayload is the largest payload a single WRITE/END packet may carry.
	MaxPayload = 0xfffc
)

// encodePacket builds the wire representation of a packet: a 2-byte
// big-endian sequence id, a 1-byte kind, then the payload.
func encodePacket(id uint16, kind PacketKind, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint16(buf, id)
	buf[2] = byte(kind)
	copy(buf[headerSize:], payload)
	return buf
}

// decodeHeader extracts the sequence id and kind from a received datagram.
// ok is false if the datagram is shorter than the fixed header.
func decodeHeader(buf []byte) (id uint16, kind PacketKind, ok bool) {
	if len(buf) < headerSize {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(buf[:2]), PacketKind(buf[2]), true
}
