package voice

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"
)

const (
	sinkSampleRate = 48000
	sinkChannels   = 1
	// 20 ms of mono 48 kHz PCM16.
	sinkFrameSamples = sinkSampleRate / 50
	sinkFrameBytes   = sinkFrameSamples * 2
)

// DiscordSink plays clips on a Discord voice connection. Clips are raw
// PCM16LE mono 48 kHz as returned by the speech backend; Play encodes them
// into 20 ms opus frames and paces them onto the connection.
type DiscordSink struct {
	vc  *discordgo.VoiceConnection
	enc *opus.Encoder
}

func NewDiscordSink(vc *discordgo.VoiceConnection) (*DiscordSink, error) {
	enc, err := opus.NewEncoder(sinkSampleRate, sinkChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return &DiscordSink{vc: vc, enc: enc}, nil
}

func (d *DiscordSink) Ready() bool {
	return d.vc != nil && d.vc.Ready
}

// Play blocks until the whole clip has been sent or ctx is canceled. Frames
// are paced by the send channel; discordgo transmits at real-time rate.
func (d *DiscordSink) Play(ctx context.Context, clip []byte) error {
	if !d.Ready() {
		return ErrSinkNotReady
	}
	if err := d.vc.Speaking(true); err != nil {
		return fmt.Errorf("speaking on: %w", err)
	}
	defer func() { _ = d.vc.Speaking(false) }()

	pcm := make([]int16, sinkFrameSamples)
	buf := make([]byte, 4000)
	for off := 0; off < len(clip); off += sinkFrameBytes {
		end := off + sinkFrameBytes
		if end > len(clip) {
			end = len(clip)
		}
		frame := clip[off:end]
		for i := range pcm {
			if i*2+1 < len(frame) {
				pcm[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
			} else {
				// zero-pad the trailing partial frame
				pcm[i] = 0
			}
		}
		n, err := d.enc.Encode(pcm, buf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		select {
		case d.vc.OpusSend <- append([]byte(nil), buf[:n]...):
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return fmt.Errorf("send timed out")
		}
	}
	return nil
}

// Close releases nothing: the voice connection is owned by the session
// layer, which disconnects it on room teardown.
func (d *DiscordSink) Close() error { return nil }

// NopSink discards all playback. Used when an output connection cannot be
// established so enqueues fail fast instead of blocking producers.
type NopSink struct{}

func (NopSink) Ready() bool                        { return false }
func (NopSink) Play(context.Context, []byte) error { return ErrSinkNotReady }
func (NopSink) Close() error                       { return nil }
