package queue

import "testing"

func TestFrameSlotPublishAndAcquire(t *testing.T) {
	s := NewFrameSlot()

	if _, _, ok := s.AcquireIfNewer(0); ok {
		t.Fatal("expected no frame before first Publish")
	}

	gen1 := s.Publish([]byte("frame1"))
	frame, gen, ok := s.AcquireIfNewer(0)
	if !ok {
		t.Fatal("expected a frame after Publish")
	}
	if string(frame) != "frame1" {
		t.Fatalf("frame = %q, want frame1", frame)
	}
	if gen != gen1 {
		t.Fatalf("gen = %d, want %d", gen, gen1)
	}
}

func TestFrameSlotSameGenerationSkipsRetransmission(t *testing.T) {
	s := NewFrameSlot()
	gen := s.Publish([]byte("frame1"))

	if _, _, ok := s.AcquireIfNewer(gen); ok {
		t.Fatal("expected AcquireIfNewer to report no change for the same generation")
	}
}

func TestFrameSlotMonotonicGenerations(t *testing.T) {
	s := NewFrameSlot()
	g1 := s.Publish([]byte("a"))
	g2 := s.Publish([]byte("b"))

	if g2 <= g1 {
		t.Fatalf("generation did not increase: g1=%d g2=%d", g1, g2)
	}

	frame, gen, ok := s.AcquireIfNewer(g1)
	if !ok {
		t.Fatal("expected newer frame to be visible")
	}
	if string(frame) != "b" {
		t.Fatalf("frame = %q, want b", frame)
	}
	if gen != g2 {
		t.Fatalf("gen = %d, want %d", gen, g2)
	}
}
