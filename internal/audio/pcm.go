// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import (
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"
)

// Normalize converts inbound caller audio described by from into the
// telephony wire format (8 kHz LINEAR16 mono). Already-conformant audio is
// returned as is.
func Normalize(data []byte, from *AudioConfig) ([]byte, error) {
	if from == nil {
		return data, nil
	}
	if from.Channels > 1 {
		return nil, fmt.Errorf("unsupported channel count %d", from.Channels)
	}

	pcm := data
	if from.Format == MuLaw8 {
		pcm = g711.DecodeUlaw(data)
	}

	switch {
	case from.SampleRate == TELEPHONY_AUDIO_CONFIG.SampleRate:
		return pcm, nil
	case from.SampleRate > TELEPHONY_AUDIO_CONFIG.SampleRate:
		return Downsample(pcm, from.SampleRate, TELEPHONY_AUDIO_CONFIG.SampleRate), nil
	default:
		return nil, fmt.Errorf("unsupported sample rate %d", from.SampleRate)
	}
}

// Downsample reduces the rate of 16-bit mono PCM by linear interpolation.
// 44100→8000 is not an integer ratio, so each output sample is interpolated
// between the two nearest input samples instead of plain decimation.
func Downsample(pcm []byte, fromRate, toRate uint32) []byte {
	if fromRate == toRate || len(pcm) < 2 {
		return pcm
	}

	inSamples := len(pcm) / 2
	outSamples := int(float64(inSamples) * float64(toRate) / float64(fromRate))
	if outSamples == 0 {
		return nil
	}

	out := make([]byte, outSamples*2)
	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < outSamples; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < inSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}
		sample := int16(float64(s0) + (float64(s1)-float64(s0))*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// EncodeMuLaw converts 16-bit LINEAR16 PCM to 8-bit µ-law, for PBX legs that
// negotiate mulaw on the outbound path.
func EncodeMuLaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}
