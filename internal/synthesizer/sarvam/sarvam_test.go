// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_synthesizer_sarvam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

func newOption(t *testing.T, option utils.Option, cfg *internal_audio.AudioConfig) *SarvamOption {
	t.Helper()
	opts, err := NewSarvamOption(newTestLogger(t), "test-key", cfg, option)
	require.NoError(t, err)
	return opts
}

func TestNewSarvamOptionRequiresKey(t *testing.T) {
	_, err := NewSarvamOption(newTestLogger(t), "   ", nil, utils.Option{})
	assert.Error(t, err)
}

func TestOptionDefaultsToTelephonyConfig(t *testing.T) {
	opts := newOption(t, utils.Option{}, nil)

	assert.Equal(t, 8000, opts.GetSampleRate())
	assert.Equal(t, "linear16", opts.GetEncoding())
	assert.Equal(t, "test-key", opts.GetKey())
}

func TestOptionMulawEncoding(t *testing.T) {
	opts := newOption(t, utils.Option{}, internal_audio.NewMulaw8khzMonoAudioConfig())

	assert.Equal(t, "mulaw", opts.GetEncoding())
}

func TestGetModel(t *testing.T) {
	assert.Equal(t, MODEL, newOption(t, utils.Option{}, nil).GetModel())
	assert.Equal(t, "bulbul:v3",
		newOption(t, utils.Option{"speaker.model": "bulbul:v3"}, nil).GetModel())
}

func TestGetSpeaker(t *testing.T) {
	cases := []struct {
		name   string
		option utils.Option
		want   string
	}{
		{"unset uses default", utils.Option{}, VOICE},
		{"known speaker kept", utils.Option{"speaker.voice": "karun"}, "karun"},
		{"case and spacing folded", utils.Option{"speaker.voice": " Manisha "}, "manisha"},
		{"unknown collapses to default", utils.Option{"speaker.voice": "morgan"}, VOICE},
		{"empty collapses to default", utils.Option{"speaker.voice": ""}, VOICE},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, newOption(t, tc.option, nil).GetSpeaker())
		})
	}
}

func TestGetLocale(t *testing.T) {
	opts := newOption(t, utils.Option{}, nil)

	cases := []struct {
		language string
		want     string
	}{
		{"hi", "hi-IN"},
		{"en", "en-IN"},
		{"ta", "ta-IN"},
		// Odia uses the od- prefix upstream.
		{"or", "od-IN"},
		// No dedicated voices yet, so these speak Hindi.
		{"as", "hi-IN"},
		{"ur", "hi-IN"},
		// Out of roster entirely.
		{"fr", "hi-IN"},
		{"", "hi-IN"},
		// Tag folding.
		{" EN ", "en-IN"},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, opts.GetLocale(tc.language), "language %q", tc.language)
	}
}
