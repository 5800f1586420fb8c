package render

import "testing"

func TestPassthroughComposeSizesFrame(t *testing.T) {
	k := Passthrough{}
	frame := k.Compose(nil, 10, 4, "standard")
	if frame.Width != 10 || frame.Height != 4 {
		t.Fatalf("got %dx%d, want 10x4", frame.Width, frame.Height)
	}
	if len(frame.Data) != 40 {
		t.Fatalf("got %d data bytes, want 40", len(frame.Data))
	}
	if frame.Flags != 0 {
		t.Fatalf("got flags %d with no sources, want 0", frame.Flags)
	}
}

func TestPassthroughComposeMarksHasContent(t *testing.T) {
	k := Passthrough{}
	frame := k.Compose([]Source{{ClientID: 1}}, 2, 2, "standard")
	if frame.Flags != 1 {
		t.Fatalf("got flags %d with sources present, want 1", frame.Flags)
	}
}

func TestPassthroughComposeFillsBlankGlyph(t *testing.T) {
	k := Passthrough{}
	frame := k.Compose(nil, 3, 1, "standard")
	for i, b := range frame.Data {
		if b != ' ' {
			t.Fatalf("data[%d] = %q, want space", i, b)
		}
	}
}
