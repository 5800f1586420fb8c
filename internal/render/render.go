// Package render defines the interface between the server core and the
// ASCII rendering kernel. The kernel itself (RGB-to-glyph conversion,
// palette application, stretch-to-terminal-size logic) is an external
// collaborator and out of scope for the core; this package only describes
// the boundary and ships a minimal pass-through implementation so the rest
// of the server is testable without it.
package render

import "github.com/zfogg/ascii-chat-server/internal/protocol"

// Source is one participant's most recent decoded video frame, as seen by
// the compositor.
type Source struct {
	ClientID uint32
	Frame    protocol.ImageFrame
}

// Kernel composes the current multi-source ASCII frame for one recipient.
// width/height are the recipient's terminal dimensions; palette selects the
// glyph ramp by name (standard/blocks/digital/minimal/cool/custom).
type Kernel interface {
	Compose(sources []Source, width, height uint16, palette string) protocol.ASCIIFrame
}

// Passthrough is a minimal Kernel that emits a fixed placeholder frame
// sized to the recipient's terminal. It performs no actual glyph
// conversion; production deployments inject a real kernel implementation
// at this seam.
type Passthrough struct{}

// Compose implements Kernel.
func (Passthrough) Compose(sources []Source, width, height uint16, palette string) protocol.ASCIIFrame {
	data := make([]byte, int(width)*int(height))
	for i := range data {
		data[i] = ' '
	}
	flags := uint8(0)
	if len(sources) > 0 {
		flags = 1 // has-content
	}
	return protocol.ASCIIFrame{
		Width:  width,
		Height: height,
		Flags:  flags,
		Data:   data,
	}
}
