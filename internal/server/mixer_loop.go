package server

import (
	"time"

	"github.com/asciichat/asciichat-go/internal/framefmt"
	"github.com/asciichat/asciichat-go/internal/registry"
	"github.com/asciichat/asciichat-go/internal/wire"
	"github.com/asciichat/asciichat-go/observability"
)

const (
	mixerSampleRate   = 48000
	mixerTickInterval = 20 * time.Millisecond
	mixerSamplesPerTick = mixerSampleRate * int(mixerTickInterval/time.Millisecond) / 1000
)

// mixerLoop advances the shared mixer state once per tick and pushes a
// personalized mix (excluding the listener's own source) to every active
// slot that negotiated audio capability.
func (s *Server) mixerLoop() {
	defer s.wg.Done()
	t := time.NewTicker(mixerTickInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.mixer.Tick(mixerSamplesPerTick)
			active := s.reg.ActiveSlots()
			s.obs.MixerActiveSources(s.mixer.ActiveSources())
			for _, slot := range active {
				if !slot.Caps.Audio {
					continue
				}
				pcm := s.mixer.MixFor(slot.ID, slot.ID, mixerSamplesPerTick)
				out := framefmt.EncodeAudioBatch(framefmt.AudioBatch{
					SampleRate: mixerSampleRate,
					Channels:   1,
					SampleFmt:  framefmt.SampleF32LE,
					FrameCount: len(pcm),
					Payload:    framefmt.EncodePCMFloat32(pcm),
				})
				if !slot.SendQueue.TryPush(registry.OutboundFrame{Type: wire.TypeAudioBatch, Payload: out}) {
					s.obs.QueueDrop(observability.DropLaneAudio)
				}
			}
		}
	}
}
