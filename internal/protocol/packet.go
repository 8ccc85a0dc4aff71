// Package protocol implements the jeux wire format: a fixed 16-byte header
// in network byte order followed by an optional opaque payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// HeaderSize is the fixed on-wire size of a packet header, in bytes.
const HeaderSize = 16

// MaxPayloadSize is the largest payload a single packet may carry.
const MaxPayloadSize = 1<<16 - 1

// Type identifies the kind of packet being sent.
type Type uint8

const (
	// Client -> server requests.
	Login Type = iota + 1
	Users
	Invite
	Revoke
	Decline
	Accept
	Move
	Resign

	// Server -> client responses to the request's sender.
	Ack
	Nack

	// Server -> client asynchronous notifications to a peer session.
	Invited
	Revoked
	Declined
	Accepted
	Moved
	Resigned
	Ended
)

func (t Type) String() string {
	switch t {
	case Login:
		return "LOGIN"
	case Users:
		return "USERS"
	case Invite:
		return "INVITE"
	case Revoke:
		return "REVOKE"
	case Decline:
		return "DECLINE"
	case Accept:
		return "ACCEPT"
	case Move:
		return "MOVE"
	case Resign:
		return "RESIGN"
	case Ack:
		return "ACK"
	case Nack:
		return "NACK"
	case Invited:
		return "INVITED"
	case Revoked:
		return "REVOKED"
	case Declined:
		return "DECLINED"
	case Accepted:
		return "ACCEPTED"
	case Moved:
		return "MOVED"
	case Resigned:
		return "RESIGNED"
	case Ended:
		return "ENDED"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Header is the fixed-size packet header. Multi-byte fields are written
// and read in network byte order.
type Header struct {
	Type          Type
	ID            uint8
	Role          uint8
	Size          uint16
	TimestampSec  uint32
	TimestampNsec uint32
}

// clockStart anchors the server's monotonic clock; timestamps are elapsed
// time since process start rather than wall-clock time, matching a
// CLOCK_MONOTONIC source.
var clockStart = time.Now()

// Stamp fills in the timestamp fields of h from the monotonic clock.
func (h *Header) Stamp() {
	elapsed := time.Since(clockStart)
	h.TimestampSec = uint32(elapsed / time.Second)
	h.TimestampNsec = uint32(elapsed % time.Second)
}

// marshal encodes h into a HeaderSize-byte buffer, network byte order,
// zero-padded to HeaderSize.
func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = h.ID
	buf[2] = h.Role
	binary.BigEndian.PutUint16(buf[3:5], h.Size)
	binary.BigEndian.PutUint32(buf[5:9], h.TimestampSec)
	binary.BigEndian.PutUint32(buf[9:13], h.TimestampNsec)
	// buf[13:16] left as padding
	return buf
}

func unmarshalHeader(buf []byte) Header {
	return Header{
		Type:          Type(buf[0]),
		ID:            buf[1],
		Role:          buf[2],
		Size:          binary.BigEndian.Uint16(buf[3:5]),
		TimestampSec:  binary.BigEndian.Uint32(buf[5:9]),
		TimestampNsec: binary.BigEndian.Uint32(buf[9:13]),
	}
}

// Send writes header then, if size>0 and payload is non-nil, payload to w.
// Callers sharing w across goroutines must serialize their own Send calls;
// Session.Send does this per connection.
func Send(w io.Writer, h Header, payload []byte) error {
	h.Stamp()
	h.Size = uint16(len(payload))
	if _, err := w.Write(h.marshal()); err != nil {
		return fmt.Errorf("send header: %w", err)
	}
	if h.Size > 0 && payload != nil {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("send payload: %w", err)
		}
	}
	return nil
}

// Recv reads one packet from r, blocking until a full header (and payload,
// if any) is available. Returns io.EOF if the peer closed the connection
// before any bytes of a new packet were read.
func Recv(r io.Reader) (Header, []byte, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("recv header: %w", err)
		}
		return Header{}, nil, err
	}
	h := unmarshalHeader(hdrBuf[:])
	if h.Size == 0 {
		return h, nil, nil
	}
	// h.Size is a uint16, so it can never exceed MaxPayloadSize (2^16-1).
	payload := make([]byte, h.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("recv payload: %w", err)
	}
	return h, payload, nil
}
