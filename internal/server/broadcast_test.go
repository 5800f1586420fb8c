package server

import (
	"net"
	"testing"

	"github.com/zfogg/ascii-chat-server/internal/client"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

func testSlot(t *testing.T, srv *Server, id uint32) *client.Slot {
	t.Helper()
	serverSide, _ := net.Pipe()
	return client.New(id, serverSide, srv.mixer, srv.kernel, srv.slotConfig())
}

func TestBroadcastExcludesSelfFromSources(t *testing.T) {
	srv, _ := testServer(t, 4)
	defer srv.Close()

	a := testSlot(t, srv, 1)
	b := testSlot(t, srv, 2)

	a.SetSendingVideo(true)
	b.SetSendingVideo(true)

	frameA := protocol.ImageFrame{Width: 2, Height: 2, Format: protocol.PixelFormatRGB, Data: make([]byte, 12)}
	if err := a.ReceiveVideoFrame(protocol.EncodeImageFrame(frameA)); err != nil {
		t.Fatalf("ReceiveVideoFrame: %v", err)
	}

	srv.mu.Lock()
	srv.slots[0] = a
	srv.slots[1] = b
	srv.mu.Unlock()

	srv.broadcastOnce()

	sourcesB := b.VideoSources()
	if len(sourcesB) != 1 || sourcesB[0].ClientID != a.ClientID {
		t.Fatalf("expected b to see only a's frame, got %+v", sourcesB)
	}

	sourcesA := a.VideoSources()
	if len(sourcesA) != 0 {
		t.Fatalf("expected a to see no sources (b hasn't sent a frame yet), got %+v", sourcesA)
	}
}
