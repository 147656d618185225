// Package swppacket defines the SWP wire format: a 5-byte header (1-byte
// type tag, 4-byte big-endian sequence number) followed by an opaque
// payload. There is no length field; the payload is whatever remains of
// the datagram after the header.
package swppacket

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Packet type tags.
const (
	TypeData byte = 'D'
	TypeAck  byte = 'A'
)

const (
	// HeaderSize is the fixed size of the wire header.
	HeaderSize = 5
	// MaxDataSize bounds a single DATA payload. Leaves plenty of space
	// for IP + UDP + SWP headers inside one datagram.
	MaxDataSize = 1400
)

// ErrMalformedPacket is returned when a datagram cannot be decoded.
var ErrMalformedPacket = errors.New("malformed SWP packet")

// Packet is a single SWP frame: either a DATA segment carrying a payload
// or an ACK carrying a cumulative acknowledgment (empty payload).
type Packet struct {
	Type   byte
	SeqNum uint32
	Data   []byte
}

// SerializePacket encodes a packet into wire form.
func SerializePacket(p *Packet) []byte {
	buffer := make([]byte, HeaderSize+len(p.Data))
	buffer[0] = p.Type
	binary.BigEndian.PutUint32(buffer[1:HeaderSize], p.SeqNum)
	copy(buffer[HeaderSize:], p.Data)
	return buffer
}

// DeserializePacket decodes a datagram. It fails if fewer than HeaderSize
// bytes are supplied or the type tag is unrecognized. The payload is
// copied out of the caller's buffer.
func DeserializePacket(buffer []byte) (*Packet, error) {
	if len(buffer) < HeaderSize {
		return nil, errors.Wrapf(ErrMalformedPacket, "short datagram: %d bytes", len(buffer))
	}
	p := Packet{
		Type:   buffer[0],
		SeqNum: binary.BigEndian.Uint32(buffer[1:HeaderSize]),
	}
	if p.Type != TypeData && p.Type != TypeAck {
		return nil, errors.Wrapf(ErrMalformedPacket, "unknown type tag 0x%02x", p.Type)
	}
	if len(buffer) > HeaderSize {
		p.Data = make([]byte, len(buffer)-HeaderSize)
		copy(p.Data, buffer[HeaderSize:])
	}
	return &p, nil
}

func (p *Packet) String() string {
	name := "ACK"
	if p.Type == TypeData {
		name = "DATA"
	}
	return fmt.Sprintf("%s %d (%d bytes)", name, p.SeqNum, len(p.Data))
}
