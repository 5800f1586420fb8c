package protocol

import (
	"bytes"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		typ     Type
		payload []byte
		sender  uint32
	}{
		{"empty payload", TypePing, nil, 0},
		{"ping no sender", TypePing, []byte{}, 0},
		{"join payload", TypeClientJoin, EncodeClientJoin(ClientJoin{Major: 1, Minor: 0}), 7},
		{"large payload", TypeAudioFrame, bytes.Repeat([]byte{0xAB}, 4096), 42},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(&Packet{Type: tc.typ, SenderID: tc.sender, Payload: tc.payload}, 1<<20)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			decoded, err := ReadPacket(bytes.NewReader(encoded), 1<<20)
			if err != nil {
				t.Fatalf("ReadPacket: %v", err)
			}

			if decoded.Type != tc.typ {
				t.Fatalf("Type = %v, want %v", decoded.Type, tc.typ)
			}
			if decoded.SenderID != tc.sender {
				t.Fatalf("SenderID = %d, want %d", decoded.SenderID, tc.sender)
			}
			if !bytes.Equal(decoded.Payload, tc.payload) {
				t.Fatalf("Payload = %v, want %v", decoded.Payload, tc.payload)
			}
		})
	}
}

func TestReadPacketRejectsOversizeWithoutAllocating(t *testing.T) {
	pkt := &Packet{Type: TypePing, Payload: make([]byte, 100)}
	encoded, err := Encode(pkt, 1000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = ReadPacket(bytes.NewReader(encoded), 50)
	var badFrame *BadFrameError
	if err == nil {
		t.Fatal("expected oversize error")
	}
	if !isBadFrame(err, ReasonOversize, &badFrame) {
		t.Fatalf("got %v, want oversize BadFrameError", err)
	}
}

func TestReadPacketRejectsBadMagic(t *testing.T) {
	pkt := &Packet{Type: TypePing, Payload: []byte("x")}
	encoded, err := Encode(pkt, 100)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	encoded[0] ^= 0xFF

	var badFrame *BadFrameError
	_, err = ReadPacket(bytes.NewReader(encoded), 100)
	if !isBadFrame(err, ReasonBadMagic, &badFrame) {
		t.Fatalf("got %v, want bad-magic BadFrameError", err)
	}
}

func TestReadPacketRejectsUnknownType(t *testing.T) {
	pkt := &Packet{Type: TypePing, Payload: []byte("x")}
	encoded, err := Encode(pkt, 100)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	encoded[4] = 0xFF
	encoded[5] = 0xFF

	var badFrame *BadFrameError
	_, err = ReadPacket(bytes.NewReader(encoded), 100)
	if !isBadFrame(err, ReasonUnknownType, &badFrame) {
		t.Fatalf("got %v, want unknown-type BadFrameError", err)
	}
}

func TestReadPacketRejectsCRCMismatch(t *testing.T) {
	pkt := &Packet{Type: TypePing, Payload: []byte("hello")}
	encoded, err := Encode(pkt, 100)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Flip one bit in the payload without touching the CRC field.
	encoded[HeaderSize] ^= 0x01

	var badFrame *BadFrameError
	_, err = ReadPacket(bytes.NewReader(encoded), 100)
	if !isBadFrame(err, ReasonCRCMismatch, &badFrame) {
		t.Fatalf("got %v, want crc-mismatch BadFrameError", err)
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := Encode(&Packet{Type: Type(999)}, 100)
	if err == nil {
		t.Fatal("expected error encoding unknown type")
	}
}

func isBadFrame(err error, reason BadFrameReason, target **BadFrameError) bool {
	bf, ok := err.(*BadFrameError)
	if !ok {
		return false
	}
	*target = bf
	return bf.Reason == reason
}

func TestMessageBodyRoundTrips(t *testing.T) {
	cj := ClientJoin{Major: 1, Minor: 0, Features: FeatureRLE | FeatureDeltaFrames, Compression: CompressionZstd}
	got, err := DecodeClientJoin(EncodeClientJoin(cj))
	if err != nil {
		t.Fatalf("DecodeClientJoin: %v", err)
	}
	if got != cj {
		t.Fatalf("ClientJoin round-trip = %+v, want %+v", got, cj)
	}

	tc := TerminalCaps{ColorDepth: 24, Unicode: true, Width: 80, Height: 24}
	gotTC, err := DecodeTerminalCaps(EncodeTerminalCaps(tc))
	if err != nil {
		t.Fatalf("DecodeTerminalCaps: %v", err)
	}
	if gotTC != tc {
		t.Fatalf("TerminalCaps round-trip = %+v, want %+v", gotTC, tc)
	}

	af := AudioFrame{SampleRate: 48000, Channels: 1, Samples: []int16{1, -1, 32767, -32768, 0}}
	gotAF, err := DecodeAudioFrame(EncodeAudioFrame(af))
	if err != nil {
		t.Fatalf("DecodeAudioFrame: %v", err)
	}
	if gotAF.SampleRate != af.SampleRate || gotAF.Channels != af.Channels {
		t.Fatalf("AudioFrame header mismatch: %+v vs %+v", gotAF, af)
	}
	for i := range af.Samples {
		if gotAF.Samples[i] != af.Samples[i] {
			t.Fatalf("sample[%d] = %d, want %d", i, gotAF.Samples[i], af.Samples[i])
		}
	}
}

func TestEncodeDisplayNameTruncatesAtMaxBytes(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	got := EncodeDisplayName(string(long))
	if len(got) != MaxDisplayNameBytes {
		t.Fatalf("len = %d, want %d", len(got), MaxDisplayNameBytes)
	}
}
