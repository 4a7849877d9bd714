// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import (
	"bytes"
	"encoding/binary"
)

// CreateWAVFile wraps raw LINEAR16 PCM in a RIFF/WAVE container.
func CreateWAVFile(pcmData []byte, cfg *AudioConfig) ([]byte, error) {
	var buf bytes.Buffer
	sampleRate := cfg.SampleRate
	channels := cfg.Channels
	bps := int(sampleRate) * int(channels) * AudioBytesPerSample

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(int(channels)*AudioBytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBitsPerSample))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes(), nil
}

// StripWAVHeader returns the PCM payload of a RIFF/WAVE byte stream. Synthesis
// providers sometimes prepend a header to what is otherwise raw PCM; feeding
// that header to the telephony leg produces an audible click. Non-RIFF input
// is returned unchanged.
func StripWAVHeader(data []byte) []byte {
	pcm, _ := DecodeWAV(data)
	return pcm
}

// DecodeWAV extracts the PCM payload and declared sample rate from a
// RIFF/WAVE byte stream. Walks chunks rather than assuming a 44-byte header
// because some encoders insert LIST or fact chunks before data. Non-RIFF
// input comes back unchanged with rate 0.
func DecodeWAV(data []byte) ([]byte, uint32) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return data, 0
	}

	var sampleRate uint32
	pos := 12
	for pos+8 <= len(data) {
		chunkID := data[pos : pos+4]
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		switch {
		case bytes.Equal(chunkID, []byte("fmt ")):
			if pos+16 <= len(data) && chunkLen >= 16 {
				sampleRate = binary.LittleEndian.Uint32(data[pos+12 : pos+16])
			}
		case bytes.Equal(chunkID, []byte("data")):
			start := pos + 8
			end := start + chunkLen
			if end > len(data) {
				end = len(data)
			}
			return data[start:end], sampleRate
		}
		pos += 8 + chunkLen
		if chunkLen%2 == 1 {
			pos++ // chunks are word aligned
		}
	}
	return data, sampleRate
}

// InterleaveStereo mixes two mono LINEAR16 tracks into one stereo stream,
// left on channel 0 and right on channel 1. The shorter track is padded with
// silence.
func InterleaveStereo(left, right []byte) []byte {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	if n%2 == 1 {
		n++
	}

	out := make([]byte, n*2)
	for i := 0; i+1 < n; i += 2 {
		if i+1 < len(left) {
			out[i*2] = left[i]
			out[i*2+1] = left[i+1]
		}
		if i+1 < len(right) {
			out[i*2+2] = right[i]
			out[i*2+3] = right[i+1]
		}
	}
	return out
}
