// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

var audioConfig = internal_audio.TELEPHONY_AUDIO_CONFIG

const (
	trackCaller = 0
	trackAgent  = 1
)

// chunk is a recorded audio fragment placed at a specific position on the
// timeline. ByteOffset is the byte position relative to the recorder's start.
type chunk struct {
	ByteOffset int
	Data       []byte
	Track      int
}

// CallRecorder captures both legs of one call and renders them as a stereo
// WAV, caller on the left channel and agent on the right. Both legs arrive at
// real-time rate (the mic by nature, the agent because frames are recorded as
// the pacer emits them), so every chunk is wall-clock placed; the cursor only
// guards against overlap when delivery jitters ahead of the clock.
type CallRecorder struct {
	logger    commons.Logger
	directory string
	streamSid string

	mu        sync.Mutex
	startTime time.Time
	chunks    []chunk
	cursor    [2]int

	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time
}

func NewCallRecorder(logger commons.Logger, directory, streamSid string) *CallRecorder {
	r := &CallRecorder{
		logger:    logger,
		directory: directory,
		streamSid: streamSid,
		clock:     time.Now,
	}
	r.startTime = r.clock()
	return r
}

// WriteCaller places mic audio on the caller track.
func (r *CallRecorder) WriteCaller(pcm []byte) {
	r.push(pcm, trackCaller)
}

// WriteAgent places emitted agent audio on the agent track.
func (r *CallRecorder) WriteAgent(pcm []byte) {
	r.push(pcm, trackAgent)
}

func (r *CallRecorder) push(data []byte, track int) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := audioConfig.DurationBytes(r.clock().Sub(r.startTime))
	if r.cursor[track] > offset {
		offset = r.cursor[track]
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	r.chunks = append(r.chunks, chunk{ByteOffset: offset, Data: buf, Track: track})
	r.cursor[track] = offset + len(buf)
}

// Persist paints both tracks onto silence, interleaves them, and writes one
// stereo WAV under the recording directory. A call with no audio at all
// persists nothing and returns an empty path.
func (r *CallRecorder) Persist() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chunks) == 0 {
		return "", nil
	}

	totalLen := audioConfig.DurationBytes(r.clock().Sub(r.startTime))
	for _, c := range r.chunks {
		if end := c.ByteOffset + len(c.Data); end > totalLen {
			totalLen = end
		}
	}

	callerPCM := make([]byte, totalLen)
	agentPCM := make([]byte, totalLen)

	callerBytes, agentBytes := 0, 0
	for _, c := range r.chunks {
		if c.Track == trackCaller {
			copy(callerPCM[c.ByteOffset:], c.Data)
			callerBytes += len(c.Data)
		} else {
			copy(agentPCM[c.ByteOffset:], c.Data)
			agentBytes += len(c.Data)
		}
	}

	stereo := internal_audio.InterleaveStereo(callerPCM, agentPCM)
	wav, err := internal_audio.CreateWAVFile(stereo, &internal_audio.AudioConfig{
		Format:     internal_audio.Linear16,
		SampleRate: audioConfig.SampleRate,
		Channels:   2,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render recording wav: %w", err)
	}

	if err := os.MkdirAll(r.directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}
	path := filepath.Join(r.directory, r.fileName())
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}

	r.logger.Infof("recording persisted path=%s caller=%.2fs agent=%.2fs total=%.2fs chunks=%d",
		path,
		float64(callerBytes)/float64(audioConfig.BytesPerSecond()),
		float64(agentBytes)/float64(audioConfig.BytesPerSecond()),
		float64(totalLen)/float64(audioConfig.BytesPerSecond()),
		len(r.chunks),
	)
	return path, nil
}

func (r *CallRecorder) fileName() string {
	sid := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '-'
	}, r.streamSid)
	if sid == "" {
		sid = "call"
	}
	return fmt.Sprintf("%s_%s.wav", sid, r.startTime.UTC().Format("20060102T150405Z"))
}
