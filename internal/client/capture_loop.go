package client

import (
	"time"

	"github.com/asciichat/asciichat-go/internal/compress"
	"github.com/asciichat/asciichat-go/internal/framefmt"
	"github.com/asciichat/asciichat-go/internal/render"
	"github.com/asciichat/asciichat-go/internal/wire"
)

const audioSamplesPerBatch = 960 // 20ms at 48kHz, matching the server mixer's tick

// maxCaptureRetries is the number of consecutive capture failures a loop
// tolerates, backing off between attempts, before giving up (spec §7).
const maxCaptureRetries = 5

// captureBackoff blocks for the exponential delay of the given attempt
// (1-indexed), or returns false immediately if stopCh closes first.
func (c *Client) captureBackoff(attempt int) bool {
	delay := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-c.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// captureVideoLoop pulls frames from the local video source at its native
// rate, optionally downscales to the negotiated capability, compresses
// when beneficial, seals, and ships them to the server.
func (c *Client) captureVideoLoop() {
	defer c.wg.Done()
	codec, err := compress.New(nil)
	if err != nil {
		return
	}
	defer codec.Close()

	retries := 0
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		vf, err := c.cfg.Video.ReadFrame()
		if err != nil {
			retries++
			if retries > maxCaptureRetries {
				c.failCapture(err)
				return
			}
			if !c.captureBackoff(retries) {
				return
			}
			continue
		}
		retries = 0
		pix := vf.Pix
		w, h := vf.Width, vf.Height
		if c.cfg.Width > 0 && c.cfg.Height > 0 && (w > c.cfg.Width || h > c.cfg.Height) {
			resized := render.Resize(render.Frame{Width: w, Height: h, Pix: pix}, c.cfg.Width, c.cfg.Height, false)
			pix, w, h = resized.Pix, resized.Width, resized.Height
		}
		plain := framefmt.EncodeFrame(framefmt.Frame{Width: w, Height: h, PixelFormat: framefmt.PixelRGB24, PtsNS: vf.PtsNS, Payload: pix})

		payload, flags := plain, wire.Flag(0)
		if compress.ShouldCompress(plain) {
			payload = codec.Compress(plain)
			flags |= wire.FlagCompressed
		}
		if err := c.sealAndSend(wire.TypeVideoFrame, payload, flags); err != nil {
			return
		}
	}
}

// captureAudioLoop pulls fixed-size mono float32 batches from the local
// microphone and ships them to the server.
func (c *Client) captureAudioLoop() {
	defer c.wg.Done()
	codec, err := compress.New(nil)
	if err != nil {
		return
	}
	defer codec.Close()

	rate := c.cfg.Mic.SampleRate()
	retries := 0
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		pcm, err := c.cfg.Mic.ReadSamples(audioSamplesPerBatch)
		if err != nil {
			retries++
			if retries > maxCaptureRetries {
				c.failCapture(err)
				return
			}
			if !c.captureBackoff(retries) {
				return
			}
			continue
		}
		retries = 0
		plain := framefmt.EncodeAudioBatch(framefmt.AudioBatch{
			SampleRate: rate,
			Channels:   1,
			SampleFmt:  framefmt.SampleF32LE,
			FrameCount: len(pcm),
			Payload:    framefmt.EncodePCMFloat32(pcm),
		})
		payload, flags := plain, wire.Flag(0)
		if compress.ShouldCompress(plain) {
			payload = codec.Compress(plain)
			flags |= wire.FlagCompressed
		}
		if err := c.sealAndSend(wire.TypeAudioBatch, payload, flags); err != nil {
			return
		}
	}
}
