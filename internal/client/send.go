package client

import (
	"context"
	"time"

	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

// sendPollInterval bounds how long the send thread waits on the audio
// queue before re-checking for a fresh video frame and the shutdown flag.
const sendPollInterval = 16 * time.Millisecond

// dropRateWarnThreshold is the fraction of enqueued audio frames dropped
// (since the last check) above which the send thread logs a warning.
// There is no auto-reconfiguration here: audio frame size and queue depth
// are fixed by protocol, so this is purely an operator signal.
const dropRateWarnThreshold = 0.10

// dropRateCheckInterval bounds how often the send thread samples the
// audio queue's drop counters for the back-pressure warning.
const dropRateCheckInterval = 5 * time.Second

// sendLoop pulls from the audio queue (bounded wait) and checks for a
// fresh outgoing video frame, serializing and writing both under the
// slot's connection (which itself serializes concurrent writers). It
// exits when the slot's shutdown flag is observed.
func (s *Slot) sendLoop() {
	defer s.recoverThread("send")
	s.sendThreadRunning.Store(true)
	defer s.sendThreadRunning.Store(false)

	ctx := s.Context()
	var lastGen uint64
	var lastEnqueued, lastDropped uint64
	lastDropCheck := time.Now()

	for {
		if s.ShuttingDown() {
			return
		}

		if now := time.Now(); now.Sub(lastDropCheck) >= dropRateCheckInterval {
			enqueued, dropped := s.audioOut.Stats()
			if deltaEnqueued := enqueued - lastEnqueued; deltaEnqueued > 0 {
				deltaDropped := dropped - lastDropped
				if rate := float64(deltaDropped) / float64(deltaEnqueued); rate > dropRateWarnThreshold {
					s.logger().Warn("audio send queue dropping frames",
						"dropRate", rate, "dropped", deltaDropped, "enqueued", deltaEnqueued)
				}
			}
			lastEnqueued, lastDropped = enqueued, dropped
			lastDropCheck = now
		}

		if frame, gen, ok := s.outgoingASCII.AcquireIfNewer(lastGen); ok {
			lastGen = gen
			if err := s.conn.WritePacket(&protocol.Packet{
				Type:     protocol.TypeASCIIFrame,
				SenderID: s.ClientID,
				Payload:  frame,
			}); err != nil {
				s.logger().Warn("send ascii frame failed", logging.KeyError, err.Error())
				return
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, sendPollInterval)
		packet, ok := s.audioOut.Dequeue(waitCtx)
		cancel()
		if !ok {
			if s.ShuttingDown() {
				return
			}
			continue
		}
		samples, ok := packet.([]int16)
		if !ok {
			continue
		}
		payload := protocol.EncodeAudioFrame(protocol.AudioFrame{
			SampleRate: audioSampleRate,
			Channels:   1,
			Samples:    samples,
		})
		if err := s.conn.WritePacket(&protocol.Packet{
			Type:     protocol.TypeAudioFrame,
			SenderID: s.ClientID,
			Payload:  payload,
		}); err != nil {
			s.logger().Warn("send audio frame failed", logging.KeyError, err.Error())
			return
		}
	}
}

// audioSampleRate is the fixed PCM sample rate this server mixes at.
const audioSampleRate = 48000
