// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_synthesizer_sarvam

import (
	"fmt"
	"strings"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	SARVAM_URL      = "wss://api.sarvam.ai/text-to-speech/ws"
	SARVAM_HTTP_URL = "https://api.sarvam.ai/text-to-speech"
	MODEL           = "bulbul:v2"
	VOICE           = "anushka"
)

// sarvamLocales maps gateway language tags onto the xx-IN locale codes the
// synthesis API accepts. Odia uses the od-IN code, and Assamese and Urdu fall
// back to Hindi because the current voice models do not cover them.
var sarvamLocales = map[string]string{
	"hi": "hi-IN",
	"en": "en-IN",
	"bn": "bn-IN",
	"te": "te-IN",
	"ta": "ta-IN",
	"mr": "mr-IN",
	"gu": "gu-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"pa": "pa-IN",
	"or": "od-IN",
	"as": "hi-IN",
	"ur": "hi-IN",
}

// sarvamSpeakers is the speaker roster for the bulbul:v2 model. A configured
// speaker outside this set collapses to the default voice instead of failing
// the whole call.
var sarvamSpeakers = map[string]bool{
	"anushka":  true,
	"manisha":  true,
	"vidya":    true,
	"arya":     true,
	"abhilash": true,
	"karun":    true,
	"hitesh":   true,
}

type SarvamOption struct {
	logger      commons.Logger
	key         string
	audioConfig *internal_audio.AudioConfig
	option      utils.Option
}

func NewSarvamOption(
	logger commons.Logger,
	apiKey string,
	audioConfig *internal_audio.AudioConfig,
	option utils.Option,
) (*SarvamOption, error) {
	if len(strings.TrimSpace(apiKey)) == 0 {
		logger.Errorf("illegal synthesizer config: missing sarvam api key")
		return nil, fmt.Errorf("illegal synthesizer config: missing sarvam api key")
	}
	if audioConfig == nil {
		audioConfig = internal_audio.TELEPHONY_AUDIO_CONFIG
	}
	return &SarvamOption{
		logger:      logger,
		key:         apiKey,
		audioConfig: audioConfig,
		option:      option,
	}, nil
}

func (opts *SarvamOption) GetKey() string {
	return opts.key
}

func (opts *SarvamOption) GetModel() string {
	if mdl, err := opts.option.GetString("speaker.model"); err == nil && len(mdl) > 0 {
		return mdl
	}
	return MODEL
}

// GetSpeaker validates the configured speaker against the model roster and
// collapses unknown names to the default voice.
func (opts *SarvamOption) GetSpeaker() string {
	speaker, err := opts.option.GetString("speaker.voice")
	if err != nil || len(speaker) == 0 {
		return VOICE
	}
	speaker = strings.ToLower(strings.TrimSpace(speaker))
	if !sarvamSpeakers[speaker] {
		opts.logger.Warnw("unknown sarvam speaker, using default voice",
			"speaker", speaker, "default", VOICE)
		return VOICE
	}
	return speaker
}

// GetLocale resolves a gateway language tag to a synthesis locale,
// defaulting to Hindi for anything outside the supported set.
func (opts *SarvamOption) GetLocale(language string) string {
	if locale, ok := sarvamLocales[strings.ToLower(strings.TrimSpace(language))]; ok {
		return locale
	}
	return sarvamLocales["hi"]
}

func (opts *SarvamOption) GetEncoding() string {
	switch opts.audioConfig.Format {
	case internal_audio.MuLaw8:
		return "mulaw"
	default:
		return "linear16"
	}
}

func (opts *SarvamOption) GetSampleRate() int {
	return int(opts.audioConfig.SampleRate)
}
