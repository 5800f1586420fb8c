package protocol

import (
	"encoding/binary"
	"fmt"
)

// CapabilityBits is a bitset carried by the CAPABILITIES packet.
type CapabilityBits uint32

const (
	CapVideo CapabilityBits = 1 << iota
	CapAudio
	CapStretch
	CapTerminalCaps
)

// FeatureBits is a bitset negotiated in CLIENT_JOIN.
type FeatureBits uint32

const (
	FeatureRLE FeatureBits = 1 << iota
	FeatureDeltaFrames
)

// Compression identifies the payload compression scheme, if any.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionLZ4
	CompressionZstd
)

// ProtocolMajor/ProtocolMinor are this build's wire protocol version. The
// server rejects a client whose major version differs.
const (
	ProtocolMajor = 1
	ProtocolMinor = 0
)

// ClientJoin is the body of a CLIENT_JOIN packet.
type ClientJoin struct {
	Major       uint8
	Minor       uint8
	Features    FeatureBits
	Compression Compression
}

// EncodeClientJoin serializes a ClientJoin body: major(1) minor(1) features(4) compression(1).
func EncodeClientJoin(cj ClientJoin) []byte {
	buf := make([]byte, 7)
	buf[0] = cj.Major
	buf[1] = cj.Minor
	binary.BigEndian.PutUint32(buf[2:6], uint32(cj.Features))
	buf[6] = byte(cj.Compression)
	return buf
}

// DecodeClientJoin parses a ClientJoin body.
func DecodeClientJoin(payload []byte) (ClientJoin, error) {
	if len(payload) < 7 {
		return ClientJoin{}, fmt.Errorf("protocol: short CLIENT_JOIN body (%d bytes)", len(payload))
	}
	return ClientJoin{
		Major:       payload[0],
		Minor:       payload[1],
		Features:    FeatureBits(binary.BigEndian.Uint32(payload[2:6])),
		Compression: Compression(payload[6]),
	}, nil
}

// EncodeCapabilities serializes a CAPABILITIES body: a single big-endian
// uint32 bitset.
func EncodeCapabilities(bits CapabilityBits) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(bits))
	return buf
}

// DecodeCapabilities parses a CAPABILITIES body.
func DecodeCapabilities(payload []byte) (CapabilityBits, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("protocol: short CAPABILITIES body (%d bytes)", len(payload))
	}
	return CapabilityBits(binary.BigEndian.Uint32(payload)), nil
}

// MaxDisplayNameBytes bounds DISPLAY_NAME payloads.
const MaxDisplayNameBytes = 32

// EncodeDisplayName truncates name to MaxDisplayNameBytes UTF-8 bytes (on a
// rune boundary) and returns the raw payload.
func EncodeDisplayName(name string) []byte {
	b := []byte(name)
	if len(b) <= MaxDisplayNameBytes {
		return b
	}
	trimmed := b[:MaxDisplayNameBytes]
	for len(trimmed) > 0 && !isRuneStart(trimmed[len(trimmed)-1]) {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// TerminalCaps is the body of a TERMINAL_CAPS packet.
type TerminalCaps struct {
	ColorDepth uint8
	Unicode    bool
	Width      uint16
	Height     uint16
}

// EncodeTerminalCaps serializes TerminalCaps: colorDepth(1) unicode(1) width(2) height(2).
func EncodeTerminalCaps(tc TerminalCaps) []byte {
	buf := make([]byte, 6)
	buf[0] = tc.ColorDepth
	if tc.Unicode {
		buf[1] = 1
	}
	binary.BigEndian.PutUint16(buf[2:4], tc.Width)
	binary.BigEndian.PutUint16(buf[4:6], tc.Height)
	return buf
}

// DecodeTerminalCaps parses a TerminalCaps body.
func DecodeTerminalCaps(payload []byte) (TerminalCaps, error) {
	if len(payload) < 6 {
		return TerminalCaps{}, fmt.Errorf("protocol: short TERMINAL_CAPS body (%d bytes)", len(payload))
	}
	return TerminalCaps{
		ColorDepth: payload[0],
		Unicode:    payload[1] != 0,
		Width:      binary.BigEndian.Uint16(payload[2:4]),
		Height:     binary.BigEndian.Uint16(payload[4:6]),
	}, nil
}

// PixelFormat identifies the layout of an IMAGE_FRAME's pixel data.
type PixelFormat uint8

const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatRGBA
	PixelFormatBGR
	PixelFormatBGRA
)

// ImageFrameFlags is a bitset on IMAGE_FRAME.
type ImageFrameFlags uint8

const (
	ImageFlagHasColor ImageFrameFlags = 1 << iota
	ImageFlagCompressed
	ImageFlagRLE
	ImageFlagStretched
)

// ImageFrame is the body of an IMAGE_FRAME packet (header only; Data
// follows it in the payload).
type ImageFrame struct {
	Width  uint16
	Height uint16
	Format PixelFormat
	Flags  ImageFrameFlags
	Data   []byte
}

const imageFrameHeaderSize = 6

// EncodeImageFrame serializes width(2) height(2) format(1) flags(1) then data.
func EncodeImageFrame(f ImageFrame) []byte {
	buf := make([]byte, imageFrameHeaderSize+len(f.Data))
	binary.BigEndian.PutUint16(buf[0:2], f.Width)
	binary.BigEndian.PutUint16(buf[2:4], f.Height)
	buf[4] = byte(f.Format)
	buf[5] = byte(f.Flags)
	copy(buf[imageFrameHeaderSize:], f.Data)
	return buf
}

// DecodeImageFrame parses an ImageFrame body. Data aliases payload; callers
// that retain it across the next read must copy.
func DecodeImageFrame(payload []byte) (ImageFrame, error) {
	if len(payload) < imageFrameHeaderSize {
		return ImageFrame{}, fmt.Errorf("protocol: short IMAGE_FRAME body (%d bytes)", len(payload))
	}
	return ImageFrame{
		Width:  binary.BigEndian.Uint16(payload[0:2]),
		Height: binary.BigEndian.Uint16(payload[2:4]),
		Format: PixelFormat(payload[4]),
		Flags:  ImageFrameFlags(payload[5]),
		Data:   payload[imageFrameHeaderSize:],
	}, nil
}

// AudioFrame is the body of an AUDIO_FRAME packet.
type AudioFrame struct {
	SampleRate uint32
	Channels   uint8
	Samples    []int16
}

const audioFrameHeaderSize = 7

// EncodeAudioFrame serializes sampleRate(4) channels(1) frameCount(2) then
// big-endian int16 samples.
func EncodeAudioFrame(f AudioFrame) []byte {
	buf := make([]byte, audioFrameHeaderSize+2*len(f.Samples))
	binary.BigEndian.PutUint32(buf[0:4], f.SampleRate)
	buf[4] = f.Channels
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(f.Samples)))
	for i, s := range f.Samples {
		binary.BigEndian.PutUint16(buf[audioFrameHeaderSize+2*i:], uint16(s))
	}
	return buf
}

// DecodeAudioFrame parses an AudioFrame body.
func DecodeAudioFrame(payload []byte) (AudioFrame, error) {
	if len(payload) < audioFrameHeaderSize {
		return AudioFrame{}, fmt.Errorf("protocol: short AUDIO_FRAME body (%d bytes)", len(payload))
	}
	count := binary.BigEndian.Uint16(payload[5:7])
	want := audioFrameHeaderSize + 2*int(count)
	if len(payload) < want {
		return AudioFrame{}, fmt.Errorf("protocol: AUDIO_FRAME declares %d samples but body is %d bytes", count, len(payload))
	}
	samples := make([]int16, count)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(payload[audioFrameHeaderSize+2*i:]))
	}
	return AudioFrame{
		SampleRate: binary.BigEndian.Uint32(payload[0:4]),
		Channels:   payload[4],
		Samples:    samples,
	}, nil
}

// ASCIIFrame is the body of an ASCII_FRAME packet.
type ASCIIFrame struct {
	Width  uint16
	Height uint16
	Flags  uint8
	Data   []byte
}

const asciiFrameHeaderSize = 5

// EncodeASCIIFrame serializes width(2) height(2) flags(1) then data.
func EncodeASCIIFrame(f ASCIIFrame) []byte {
	buf := make([]byte, asciiFrameHeaderSize+len(f.Data))
	binary.BigEndian.PutUint16(buf[0:2], f.Width)
	binary.BigEndian.PutUint16(buf[2:4], f.Height)
	buf[4] = f.Flags
	copy(buf[asciiFrameHeaderSize:], f.Data)
	return buf
}

// DecodeASCIIFrame parses an ASCIIFrame body.
func DecodeASCIIFrame(payload []byte) (ASCIIFrame, error) {
	if len(payload) < asciiFrameHeaderSize {
		return ASCIIFrame{}, fmt.Errorf("protocol: short ASCII_FRAME body (%d bytes)", len(payload))
	}
	return ASCIIFrame{
		Width:  binary.BigEndian.Uint16(payload[0:2]),
		Height: binary.BigEndian.Uint16(payload[2:4]),
		Flags:  payload[4],
		Data:   payload[asciiFrameHeaderSize:],
	}, nil
}
