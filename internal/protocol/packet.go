// Package protocol implements the framed binary wire codec: a fixed
// 20-byte header (magic, type, payload length, CRC-32, sender id, reserved)
// followed by a payload. Once a session reaches handshake READY, the
// payload carries a nonce-prefixed AEAD ciphertext instead of plaintext;
// this package only frames bytes, it does not know about encryption.
package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// HeaderSize is the fixed size of a packet header, in bytes.
const HeaderSize = 20

// Magic is the fixed 32-bit constant every packet header must start with.
// Chosen once and must match across peers; there is no negotiation for it.
const Magic uint32 = 0x41534349 // "ASCI"

// Type identifies the kind of packet. Implementer-assigned, stable across
// releases once shipped.
type Type uint16

const (
	TypeKeyExchangeInit Type = iota + 1
	TypeKeyExchangeResp
	TypeAuthChallenge
	TypeAuthResponse
	TypeServerAuthResponse
	TypeAuthFailed
	TypeHandshakeComplete
	TypeClientJoin
	TypeClientLeave
	TypeCapabilities
	TypeDisplayName
	TypeTerminalCaps
	TypeStreamStart
	TypeStreamStop
	TypeImageFrame
	TypeAudioFrame
	TypeASCIIFrame
	TypeClearConsole
	TypeServerState
	TypePing
	TypePong
)

func (t Type) String() string {
	switch t {
	case TypeKeyExchangeInit:
		return "KX_INIT"
	case TypeKeyExchangeResp:
		return "KX_RESP"
	case TypeAuthChallenge:
		return "AUTH_CHAL"
	case TypeAuthResponse:
		return "AUTH_RESP"
	case TypeServerAuthResponse:
		return "SERVER_AUTH_RESP"
	case TypeAuthFailed:
		return "AUTH_FAILED"
	case TypeHandshakeComplete:
		return "HANDSHAKE_COMPLETE"
	case TypeClientJoin:
		return "CLIENT_JOIN"
	case TypeClientLeave:
		return "CLIENT_LEAVE"
	case TypeCapabilities:
		return "CAPABILITIES"
	case TypeDisplayName:
		return "DISPLAY_NAME"
	case TypeTerminalCaps:
		return "TERMINAL_CAPS"
	case TypeStreamStart:
		return "STREAM_START"
	case TypeStreamStop:
		return "STREAM_STOP"
	case TypeImageFrame:
		return "IMAGE_FRAME"
	case TypeAudioFrame:
		return "AUDIO_FRAME"
	case TypeASCIIFrame:
		return "ASCII_FRAME"
	case TypeClearConsole:
		return "CLEAR_CONSOLE"
	case TypeServerState:
		return "SERVER_STATE"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// IsValid reports whether t is one of the enumerated packet types.
func (t Type) IsValid() bool {
	return t >= TypeKeyExchangeInit && t <= TypePong
}

// BadFrameReason enumerates why a frame failed to decode.
type BadFrameReason int

const (
	ReasonBadMagic BadFrameReason = iota
	ReasonUnknownType
	ReasonOversize
	ReasonCRCMismatch
	ReasonShortRead
)

func (r BadFrameReason) String() string {
	switch r {
	case ReasonBadMagic:
		return "bad magic"
	case ReasonUnknownType:
		return "unknown type"
	case ReasonOversize:
		return "oversize payload"
	case ReasonCRCMismatch:
		return "crc mismatch"
	case ReasonShortRead:
		return "short read"
	default:
		return "unknown reason"
	}
}

// BadFrameError reports a framing-level protocol violation.
type BadFrameError struct {
	Reason BadFrameReason
	Detail string
}

func (e *BadFrameError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("protocol: bad frame (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("protocol: bad frame (%s)", e.Reason)
}

// Packet is a decoded frame: header fields plus payload.
type Packet struct {
	Type     Type
	SenderID uint32
	Reserved uint16
	Payload  []byte
}

// crcTable is the IEEE polynomial table used for the frame's integrity
// code. Any 32-bit CRC is acceptable as long as both peers agree; IEEE is
// stdlib's default and requires no extra negotiation.
var crcTable = crc32.MakeTable(crc32.IEEE)

// Encode serializes a packet into the wire header+payload form.
func Encode(p *Packet, maxPayload int) ([]byte, error) {
	if len(p.Payload) > maxPayload {
		return nil, &BadFrameError{Reason: ReasonOversize, Detail: fmt.Sprintf("%d > %d", len(p.Payload), maxPayload)}
	}
	if !p.Type.IsValid() {
		return nil, &BadFrameError{Reason: ReasonUnknownType, Detail: p.Type.String()}
	}

	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(p.Payload)))
	binary.BigEndian.PutUint32(buf[10:14], crc32.Checksum(p.Payload, crcTable))
	binary.BigEndian.PutUint32(buf[14:18], p.SenderID)
	binary.BigEndian.PutUint16(buf[18:20], p.Reserved)
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// header is the decoded fixed-size prefix of a frame.
type header struct {
	magic    uint32
	typ      Type
	length   uint32
	crc      uint32
	senderID uint32
	reserved uint16
}

func decodeHeader(raw []byte) (header, error) {
	if len(raw) < HeaderSize {
		return header{}, &BadFrameError{Reason: ReasonShortRead}
	}
	h := header{
		magic:    binary.BigEndian.Uint32(raw[0:4]),
		typ:      Type(binary.BigEndian.Uint16(raw[4:6])),
		length:   binary.BigEndian.Uint32(raw[6:10]),
		crc:      binary.BigEndian.Uint32(raw[10:14]),
		senderID: binary.BigEndian.Uint32(raw[14:18]),
		reserved: binary.BigEndian.Uint16(raw[18:20]),
	}
	if h.magic != Magic {
		return header{}, &BadFrameError{Reason: ReasonBadMagic}
	}
	if !h.typ.IsValid() {
		return header{}, &BadFrameError{Reason: ReasonUnknownType, Detail: h.typ.String()}
	}
	return h, nil
}

// ReadPacket reads one framed packet from r. The header is validated, and
// the length field is checked against maxPayload *before* the payload
// buffer is allocated, so an oversize frame never causes an allocation.
func ReadPacket(r io.Reader, maxPayload int) (*Packet, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("protocol: read header: %w", err)
	}

	h, err := decodeHeader(raw[:])
	if err != nil {
		return nil, err
	}

	if int(h.length) > maxPayload {
		return nil, &BadFrameError{Reason: ReasonOversize, Detail: fmt.Sprintf("%d > %d", h.length, maxPayload)}
	}

	payload := make([]byte, h.length)
	if h.length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("protocol: read payload: %w", err)
		}
	}

	if crc32.Checksum(payload, crcTable) != h.crc {
		return nil, &BadFrameError{Reason: ReasonCRCMismatch}
	}

	return &Packet{
		Type:     h.typ,
		SenderID: h.senderID,
		Reserved: h.reserved,
		Payload:  payload,
	}, nil
}

// WritePacket encodes p and writes it to w.
func WritePacket(w io.Writer, p *Packet, maxPayload int) error {
	buf, err := Encode(p, maxPayload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
