// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_pacer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// completionGrace gives the final frame time on the wire before the utterance
// is declared finished. Without it the turn flips to listening while the tail
// of the audio is still queued downstream.
const completionGrace = 100 * time.Millisecond

type PlayResult int

const (
	PlayCompleted PlayResult = iota
	PlayInterrupted
)

func (r PlayResult) String() string {
	if r == PlayCompleted {
		return "completed"
	}
	return "interrupted"
}

// MediaSink receives paced audio frames. The telephony adapter satisfies it.
type MediaSink interface {
	EmitMedia(streamSid string, pcm []byte) error
}

// Pacer streams synthesized PCM to the sink in real-time 20ms frames instead
// of bursting the whole utterance at once. One playback runs at a time; turns
// are serialized by the session loop.
type Pacer struct {
	logger    commons.Logger
	sink      MediaSink
	streamSid string

	mu        sync.Mutex
	interrupt chan struct{}
	stopped   bool
	playing   bool

	bytesSent atomic.Int64
}

func NewPacer(logger commons.Logger, sink MediaSink, streamSid string) *Pacer {
	return &Pacer{
		logger:    logger,
		sink:      sink,
		streamSid: streamSid,
	}
}

// Play paces pcm to the sink and blocks until the utterance finishes or is cut
// short. fresh reports the session's current turn id; the frame loop stops as
// interrupted the moment it no longer matches turnID, so audio for a
// superseded turn never reaches the caller. A sink write failure also ends
// playback as interrupted.
func (p *Pacer) Play(ctx context.Context, pcm []byte, turnID uint64, fresh func() uint64) PlayResult {
	if len(pcm) == 0 {
		return PlayCompleted
	}

	p.mu.Lock()
	interrupt := make(chan struct{})
	p.interrupt = interrupt
	p.stopped = false
	p.playing = true
	p.mu.Unlock()
	p.bytesSent.Store(0)

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.interrupt = nil
		p.mu.Unlock()
	}()

	frameBytes := internal_audio.TELEPHONY_AUDIO_CONFIG.FrameBytes()
	ticker := time.NewTicker(internal_audio.FrameDuration)
	defer ticker.Stop()

	for offset := 0; offset < len(pcm); {
		select {
		case <-ctx.Done():
			return PlayInterrupted
		case <-interrupt:
			return PlayInterrupted
		case <-ticker.C:
			if fresh != nil && fresh() != turnID {
				return PlayInterrupted
			}
			end := offset + frameBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			if err := p.sink.EmitMedia(p.streamSid, pcm[offset:end]); err != nil {
				p.logger.Warnw("playback write failed", "streamSid", p.streamSid, "error", err)
				return PlayInterrupted
			}
			p.bytesSent.Add(int64(end - offset))
			offset = end
		}
	}

	select {
	case <-ctx.Done():
		return PlayInterrupted
	case <-interrupt:
		return PlayInterrupted
	case <-time.After(completionGrace):
		return PlayCompleted
	}
}

// Interrupt cuts the current playback short. Safe to call at any time,
// including when nothing is playing or playback already stopped.
func (p *Pacer) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interrupt != nil && !p.stopped {
		p.stopped = true
		close(p.interrupt)
	}
}

// Playing reports whether a playback loop is currently pacing frames.
func (p *Pacer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// BytesSent reports how much of the current utterance has reached the sink.
// The turn controller reads it to judge whether an utterance is close enough
// to done that a short interjection should not cancel it.
func (p *Pacer) BytesSent() int64 {
	return p.bytesSent.Load()
}
