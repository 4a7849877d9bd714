// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcriber_deepgram

import (
	"fmt"
	"strings"

	clientinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// telephonySampleRate is fixed by the PBX leg; callers never override it.
const telephonySampleRate = 8000

// deepgramLanguages maps gateway language tags to Deepgram model languages.
// Tags the provider cannot transcribe natively degrade to hi, which shares a
// script with most of them on this traffic.
var deepgramLanguages = map[string]string{
	"hi": "hi",
	"en": "en-IN",
	"bn": "bn",
	"te": "te",
	"ta": "ta",
	"mr": "mr",
	"gu": "gu",
	"kn": "kn",
	"ml": "ml",
	"pa": "pa",
	"or": "hi",
	"as": "hi",
	"ur": "hi",
}

// MapLanguage converts a session language tag to the provider code used on
// the streaming connection.
func MapLanguage(tag string) string {
	if code, ok := deepgramLanguages[tag]; ok {
		return code
	}
	return "hi"
}

// DeepgramOption resolves the streaming transcription options for one call.
type DeepgramOption struct {
	logger commons.Logger
	key    string
	option utils.Option
}

// NewDeepgramOption validates the credential and captures per-call overrides
// under "listen." keys.
func NewDeepgramOption(logger commons.Logger, apiKey string, option utils.Option) (*DeepgramOption, error) {
	if utils.IsEmpty(apiKey) {
		return nil, fmt.Errorf("illegal transcriber config: missing deepgram api key")
	}
	if option == nil {
		option = utils.Option{}
	}
	return &DeepgramOption{logger: logger, key: apiKey, option: option}, nil
}

func (o *DeepgramOption) GetKey() string {
	return o.key
}

func (o *DeepgramOption) GetEncoding() string {
	return "linear16"
}

// SpeechToTextOptions builds the live transcription options. Encoding and
// sample rate are hardcoded to the telephony wire format; everything else
// follows the "listen." overrides.
func (o *DeepgramOption) SpeechToTextOptions() *clientinterfaces.LiveTranscriptionOptions {
	model, err := o.option.GetString("listen.model")
	if err != nil || utils.IsEmpty(model) {
		model = "nova-2"
	}
	language, err := o.option.GetString("listen.language")
	if err != nil || utils.IsEmpty(language) {
		language = MapLanguage("hi")
	}
	endpointing, err := o.option.GetString("listen.endpointing")
	if err != nil || utils.IsEmpty(endpointing) {
		endpointing = "300"
	}

	opts := &clientinterfaces.LiveTranscriptionOptions{
		Model:          model,
		Language:       language,
		Encoding:       o.GetEncoding(),
		SampleRate:     telephonySampleRate,
		Channels:       1,
		SmartFormat:    o.boolOption("listen.smart_format", true),
		InterimResults: o.boolOption("listen.interim_results", true),
		FillerWords:    o.boolOption("listen.filler_words", true),
		Punctuate:      o.boolOption("listen.punctuate", true),
		NoDelay:        o.boolOption("listen.no_delay", true),
		VadEvents:      o.boolOption("listen.vad_events", false),
		Diarize:        o.boolOption("listen.diarize", false),
		Multichannel:   o.boolOption("listen.multichannel", false),
		Endpointing:    endpointing,
		UtteranceEndMs: "1000",
	}

	// nova-2 takes boosted keywords; nova-3 replaced them with keyterms.
	if keywords, err := o.option.GetStrings("listen.keyword"); err == nil && len(keywords) > 0 {
		if strings.HasPrefix(model, "nova-3") {
			opts.Keyterm = keywords
		} else {
			opts.Keywords = keywords
		}
	}

	return opts
}

func (o *DeepgramOption) boolOption(key string, fallback bool) bool {
	v, err := o.option.GetBool(key)
	if err != nil {
		return fallback
	}
	return v
}
