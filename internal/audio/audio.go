// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import "time"

// AudioFormat identifies the encoding of a PCM byte stream.
type AudioFormat string

const (
	Linear16 AudioFormat = "linear16"
	MuLaw8   AudioFormat = "mulaw"
)

const (
	AudioBytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	AudioBitsPerSample  = 16 // LINEAR16 → 16 bits per sample
	AudioPCMFormat      = 1  // WAV PCM format tag

	// FrameDuration is the outbound pacing interval. Every telephony frame
	// carries exactly this much audio.
	FrameDuration = 20 * time.Millisecond
)

// AudioConfig describes one leg of an audio path: encoding, rate, channels.
type AudioConfig struct {
	Format     AudioFormat
	SampleRate uint32
	Channels   uint16
}

// TELEPHONY_AUDIO_CONFIG is the wire format shared with the PBX and both
// speech providers: 8 kHz, 16-bit, mono, little-endian.
var TELEPHONY_AUDIO_CONFIG = NewLinear8khzMonoAudioConfig()

func NewLinear8khzMonoAudioConfig() *AudioConfig {
	return &AudioConfig{Format: Linear16, SampleRate: 8000, Channels: 1}
}

func NewLinear44khzMonoAudioConfig() *AudioConfig {
	return &AudioConfig{Format: Linear16, SampleRate: 44100, Channels: 1}
}

func NewMulaw8khzMonoAudioConfig() *AudioConfig {
	return &AudioConfig{Format: MuLaw8, SampleRate: 8000, Channels: 1}
}

// BytesPerSample is the storage width of one sample on one channel.
func (c *AudioConfig) BytesPerSample() int {
	if c.Format == MuLaw8 {
		return 1
	}
	return AudioBytesPerSample
}

func (c *AudioConfig) BytesPerSecond() int {
	return int(c.SampleRate) * int(c.Channels) * c.BytesPerSample()
}

// FrameBytes is the byte length of one pacing frame (20 ms). 320 for the
// telephony config.
func (c *AudioConfig) FrameBytes() int {
	return c.BytesPerSecond() * int(FrameDuration/time.Millisecond) / 1000
}

// DurationBytes converts a wall-clock duration to a frame-aligned byte count.
func (c *AudioConfig) DurationBytes(d time.Duration) int {
	raw := int(d.Seconds() * float64(c.BytesPerSecond()))
	frameSize := c.BytesPerSample() * int(c.Channels)
	return (raw / frameSize) * frameSize
}

// Duration reports how long n bytes of audio play for.
func (c *AudioConfig) Duration(n int) time.Duration {
	return time.Duration(float64(n) / float64(c.BytesPerSecond()) * float64(time.Second))
}
