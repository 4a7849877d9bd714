// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_synthesizer_sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	// ttsWarmupTimeout bounds the streaming session dial. A cold dial that
	// takes longer than this would be audible as dead air, so the turn falls
	// back to the one-shot HTTP endpoint instead of waiting.
	ttsWarmupTimeout = 250 * time.Millisecond

	ttsHTTPTimeout      = 5 * time.Second
	ttsMaxSynthesisWait = 10 * time.Second

	// Some upstream sessions drop the terminal frame under load. Synthesis is
	// also treated as complete once the audio buffer stops growing across
	// this many consecutive polls.
	ttsStabilityInterval = 50 * time.Millisecond
	ttsStabilityPolls    = 3
)

// TextToSpeech synthesizes agent replies over a persistent streaming session
// per locale, falling back to the HTTP endpoint when the stream is cold or
// broken. All returned audio is telephony PCM (8 kHz LINEAR16 mono).
type TextToSpeech struct {
	logger     commons.Logger
	option     *SarvamOption
	normalizer *Normalizer
	rest       *resty.Client
	dialer     *websocket.Dialer
	wsURL      string

	mu       sync.Mutex
	sessions map[string]*ttsSession
	closed   bool
}

func NewTextToSpeech(logger commons.Logger, option *SarvamOption) *TextToSpeech {
	return &TextToSpeech{
		logger:     logger,
		option:     option,
		normalizer: NewNormalizer(logger),
		rest:       resty.New().SetTimeout(ttsHTTPTimeout),
		dialer:     &websocket.Dialer{HandshakeTimeout: ttsWarmupTimeout},
		wsURL:      SARVAM_URL,
		sessions:   make(map[string]*ttsSession),
	}
}

// Warm opens the streaming session for a language ahead of the first reply so
// the greeting does not pay the dial cost.
func (tts *TextToSpeech) Warm(ctx context.Context, language string) {
	if _, err := tts.session(ctx, tts.option.GetLocale(language)); err != nil {
		tts.logger.Warnw("synthesizer warm-up failed, first turn will use http",
			"language", language, "error", err)
	}
}

// Synthesize renders text in the given language and returns the complete
// utterance as telephony PCM. Empty input (after normalization) yields no
// audio and no error.
func (tts *TextToSpeech) Synthesize(ctx context.Context, text string, language string) ([]byte, error) {
	text = tts.normalizer.Normalize(ctx, text, language)
	if len(text) == 0 {
		return nil, nil
	}
	locale := tts.option.GetLocale(language)

	session, err := tts.session(ctx, locale)
	if err != nil {
		tts.logger.Warnw("streaming synthesis unavailable, using http",
			"locale", locale, "error", err)
		return tts.synthesizeHTTP(ctx, text, locale)
	}

	pcm, err := session.synthesize(ctx, text)
	if err != nil {
		tts.evict(locale, session)
		tts.logger.Warnw("streaming synthesis failed, using http",
			"locale", locale, "error", err)
		return tts.synthesizeHTTP(ctx, text, locale)
	}
	return tts.toTelephonyPCM(pcm), nil
}

// Close tears down every open streaming session.
func (tts *TextToSpeech) Close() {
	tts.mu.Lock()
	defer tts.mu.Unlock()
	tts.closed = true
	for locale, session := range tts.sessions {
		session.close()
		delete(tts.sessions, locale)
	}
}

// session returns the open streaming session for a locale, dialing one within
// the warm-up budget when none exists.
func (tts *TextToSpeech) session(ctx context.Context, locale string) (*ttsSession, error) {
	tts.mu.Lock()
	if tts.closed {
		tts.mu.Unlock()
		return nil, fmt.Errorf("synthesizer is closed")
	}
	if existing, ok := tts.sessions[locale]; ok && !existing.failed() {
		tts.mu.Unlock()
		return existing, nil
	}
	tts.mu.Unlock()

	session, err := tts.dial(ctx, locale)
	if err != nil {
		return nil, err
	}

	tts.mu.Lock()
	defer tts.mu.Unlock()
	if tts.closed {
		session.close()
		return nil, fmt.Errorf("synthesizer is closed")
	}
	if stale, ok := tts.sessions[locale]; ok {
		stale.close()
	}
	tts.sessions[locale] = session
	return session, nil
}

func (tts *TextToSpeech) dial(ctx context.Context, locale string) (*ttsSession, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ttsWarmupTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s?model=%s", tts.wsURL, url.QueryEscape(tts.option.GetModel()))
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", tts.option.GetKey()))

	conn, _, err := tts.dialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		// Some upgrade paths strip the Authorization header; retry with the
		// key as a websocket subprotocol within the same warm-up budget.
		alt := *tts.dialer
		alt.Subprotocols = []string{tts.option.GetKey()}
		conn, _, err = alt.DialContext(dialCtx, endpoint, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open synthesis stream: %w", err)
	}

	session := &ttsSession{
		logger: tts.logger,
		conn:   conn,
		locale: locale,
		done:   make(chan struct{}),
	}
	if err := session.writeJSON(ttsConfigFrame{
		Type: "config",
		Data: ttsConfig{
			TargetLanguageCode: locale,
			Speaker:            tts.option.GetSpeaker(),
			Model:              tts.option.GetModel(),
			SpeechSampleRate:   tts.option.GetSampleRate(),
			OutputAudioCodec:   tts.option.GetEncoding(),
			Pace:               1,
			Loudness:           1,
		},
	}); err != nil {
		session.close()
		return nil, fmt.Errorf("unable to configure synthesis stream: %w", err)
	}

	utils.Go(ctx, session.readLoop)
	return session, nil
}

func (tts *TextToSpeech) evict(locale string, session *ttsSession) {
	tts.mu.Lock()
	if current, ok := tts.sessions[locale]; ok && current == session {
		delete(tts.sessions, locale)
	}
	tts.mu.Unlock()
	session.close()
}

// synthesizeHTTP is the one-shot fallback path. It is slower end to end but
// has no session state to lose.
func (tts *TextToSpeech) synthesizeHTTP(ctx context.Context, text string, locale string) ([]byte, error) {
	result := &sarvamHTTPResponse{}
	resp, err := tts.rest.R().
		SetContext(ctx).
		SetHeader("api-subscription-key", tts.option.GetKey()).
		SetHeader("Content-Type", "application/json").
		SetBody(sarvamHTTPRequest{
			Inputs:              []string{text},
			TargetLanguageCode:  locale,
			Speaker:             tts.option.GetSpeaker(),
			Model:               tts.option.GetModel(),
			SpeechSampleRate:    tts.option.GetSampleRate(),
			EnablePreprocessing: true,
		}).
		SetResult(result).
		Post(SARVAM_HTTP_URL)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("synthesis request failed: %s", resp.Status())
	}
	if len(result.Audios) == 0 {
		return nil, fmt.Errorf("synthesis response carried no audio")
	}
	raw, err := base64.StdEncoding.DecodeString(result.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("unable to decode synthesized audio: %w", err)
	}
	return tts.toTelephonyPCM(raw), nil
}

// toTelephonyPCM strips any container header and resamples down to the
// telephony rate when the provider answered at a higher one.
func (tts *TextToSpeech) toTelephonyPCM(raw []byte) []byte {
	pcm, rate := internal_audio.DecodeWAV(raw)
	target := uint32(tts.option.GetSampleRate())
	if rate > target {
		pcm = internal_audio.Downsample(pcm, rate, target)
	}
	return pcm
}

// ====================================================================
// streaming session
// ====================================================================

type ttsConfigFrame struct {
	Type string    `json:"type"`
	Data ttsConfig `json:"data"`
}

type ttsConfig struct {
	TargetLanguageCode string  `json:"target_language_code"`
	Speaker            string  `json:"speaker"`
	Model              string  `json:"model"`
	SpeechSampleRate   int     `json:"speech_sample_rate"`
	OutputAudioCodec   string  `json:"output_audio_codec"`
	Pace               float64 `json:"pace"`
	Loudness           float64 `json:"loudness"`
}

type ttsTextFrame struct {
	Type string  `json:"type"`
	Data ttsText `json:"data"`
}

type ttsText struct {
	Text string `json:"text"`
}

type ttsControlFrame struct {
	Type string `json:"type"`
}

type ttsInboundFrame struct {
	Type         string `json:"type"`
	AudioContent string `json:"audio_content,omitempty"`
	Message      string `json:"message,omitempty"`
}

type sarvamHTTPRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	Model               string   `json:"model"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
}

type sarvamHTTPResponse struct {
	Audios []string `json:"audios"`
}

// ttsSession is one locale-bound streaming connection. Turns are serialized
// by the caller; the session only has to survive its own reader goroutine.
type ttsSession struct {
	logger commons.Logger
	conn   *websocket.Conn
	locale string

	mu       sync.Mutex
	buf      bytes.Buffer
	done     chan struct{}
	signaled bool
	err      error
	closed   bool
	writeMu  sync.Mutex
}

// synthesize sends one utterance and blocks until the terminal frame, buffer
// stability, or the deadline.
func (s *ttsSession) synthesize(ctx context.Context, text string) ([]byte, error) {
	s.begin()
	if err := s.writeJSON(ttsTextFrame{Type: "text", Data: ttsText{Text: text}}); err != nil {
		return nil, fmt.Errorf("unable to send text: %w", err)
	}
	if err := s.writeJSON(ttsControlFrame{Type: "flush"}); err != nil {
		return nil, fmt.Errorf("unable to flush: %w", err)
	}

	ticker := time.NewTicker(ttsStabilityInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(ttsMaxSynthesisWait)
	defer deadline.Stop()

	stable, last := 0, 0
	for {
		select {
		case <-s.doneCh():
			pcm := s.take()
			if err := s.failure(); err != nil && len(pcm) == 0 {
				return nil, err
			}
			return pcm, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			if pcm := s.take(); len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fmt.Errorf("synthesis timed out for locale %s", s.locale)
		case <-ticker.C:
			if err := s.failure(); err != nil {
				return nil, err
			}
			n := s.size()
			if n > 0 && n == last {
				stable++
				if stable >= ttsStabilityPolls {
					return s.take(), nil
				}
			} else {
				stable, last = 0, n
			}
		}
	}
}

func (s *ttsSession) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		var frame ttsInboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Debugw("discarding unparseable synthesis frame", "error", err)
			continue
		}
		switch frame.Type {
		case "audio":
			chunk, err := base64.StdEncoding.DecodeString(frame.AudioContent)
			if err != nil {
				s.logger.Warnw("discarding undecodable audio chunk",
					"locale", s.locale, "error", err)
				continue
			}
			s.append(chunk)
		case "audio_end":
			s.signal()
		case "error":
			s.fail(fmt.Errorf("synthesis stream error: %s", frame.Message))
			return
		}
	}
}

func (s *ttsSession) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.done = make(chan struct{})
	s.signaled = false
}

func (s *ttsSession) append(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(chunk)
}

func (s *ttsSession) signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signaled {
		s.signaled = true
		close(s.done)
	}
}

func (s *ttsSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	if !s.signaled {
		s.signaled = true
		close(s.done)
	}
}

func (s *ttsSession) doneCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *ttsSession) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}

func (s *ttsSession) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *ttsSession) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ttsSession) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil || s.closed
}

func (s *ttsSession) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *ttsSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.writeJSON(ttsControlFrame{Type: "finish"})
	_ = s.conn.Close()
}
