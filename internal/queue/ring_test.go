package queue

import "testing"

func TestPCMRingReadFrameRequiresFullFrame(t *testing.T) {
	r := NewPCMRing(4, 8)
	out := make([]int16, 4)

	if r.ReadFrame(out) {
		t.Fatal("expected ReadFrame to fail on empty ring")
	}

	r.Write([]int16{1, 2})
	if r.ReadFrame(out) {
		t.Fatal("expected ReadFrame to fail with a partial frame buffered")
	}
}

func TestPCMRingWriteAndReadFrame(t *testing.T) {
	r := NewPCMRing(4, 8)
	r.Write([]int16{1, 2, 3, 4})

	out := make([]int16, 4)
	if !r.ReadFrame(out) {
		t.Fatal("expected ReadFrame to succeed")
	}
	want := []int16{1, 2, 3, 4}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestPCMRingOverwriteOldestOnOverflow(t *testing.T) {
	r := NewPCMRing(4, 2) // capacity = 8 samples

	r.Write([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if got := r.Available(); got != 8 {
		t.Fatalf("Available() = %d, want 8 (ring saturated)", got)
	}

	out := make([]int16, 4)
	if !r.ReadFrame(out) {
		t.Fatal("expected a frame to be available")
	}
	want := []int16{3, 4, 5, 6}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d (samples 1,2 should have been overwritten)", i, out[i], want[i])
		}
	}
}
