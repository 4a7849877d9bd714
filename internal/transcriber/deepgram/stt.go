// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcriber_deepgram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	sttConnectTimeout  = 2 * time.Second
	sttMaxAttempts     = 3
	sttRetryBaseDelay  = 250 * time.Millisecond
	minFinalConfidence = 0.5

	// pendingFrameLimit bounds audio buffered while the upstream socket is
	// still opening. 100 frames of 20 ms is two seconds of speech.
	pendingFrameLimit = 100
)

// ============================================================================
// Events delivered to the session loop
// ============================================================================

// InterimEvent is an evolving partial transcript for the current utterance.
type InterimEvent struct {
	Text string
}

// FinalEvent is an end-of-utterance transcript. Only finals at or above the
// confidence floor are delivered.
type FinalEvent struct {
	Text       string
	Confidence float64
}

// UtteranceEndEvent signals a silence-based endpoint.
type UtteranceEndEvent struct{}

// DegradedEvent reports that reconnection has been exhausted; no further
// transcription will arrive for this call.
type DegradedEvent struct {
	Err error
}

// liveClient is the slice of the provider client the transcriber uses.
// Narrowed to an interface so tests can stand in for the real socket.
type liveClient interface {
	Connect() bool
	Stop()
	WriteBinary(data []byte) error
	Finalize() error
}

type clientFactory func(
	ctx context.Context,
	apiKey string,
	cOptions *clientinterfaces.ClientOptions,
	tOptions *clientinterfaces.LiveTranscriptionOptions,
	callback msginterfaces.LiveMessageCallback,
) (liveClient, error)

func defaultClientFactory(
	ctx context.Context,
	apiKey string,
	cOptions *clientinterfaces.ClientOptions,
	tOptions *clientinterfaces.LiveTranscriptionOptions,
	callback msginterfaces.LiveMessageCallback,
) (liveClient, error) {
	client, err := listen.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, callback)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ============================================================================
// SpeechToText — streaming transcription for one call
// ============================================================================

// SpeechToText owns the provider socket for the lifetime of a call. Audio
// written before the socket opens is buffered (bounded, drop-oldest); segment
// finals are accumulated until the provider marks the utterance complete, so
// one FinalEvent corresponds to one caller utterance.
type SpeechToText struct {
	logger commons.Logger
	option *DeepgramOption

	events  chan interface{}
	factory clientFactory

	mu             sync.Mutex
	ctx            context.Context
	client         liveClient
	connected      bool
	degraded       bool
	closed         bool
	reconnecting   bool
	pending        [][]byte
	segments       []string
	lastConfidence float64
}

func NewSpeechToText(logger commons.Logger, option *DeepgramOption) *SpeechToText {
	return &SpeechToText{
		logger:  logger,
		option:  option,
		events:  make(chan interface{}, 64),
		factory: defaultClientFactory,
	}
}

// Events delivers Interim/Final/UtteranceEnd/Degraded events. The channel is
// never closed because provider callbacks can race teardown; readers stop on
// their own context.
func (s *SpeechToText) Events() <-chan interface{} {
	return s.events
}

// Start connects to the provider, retrying with exponential backoff. The
// context bounds the whole transcription stream, not just the dial.
func (s *SpeechToText) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.connectWithRetry(ctx); err != nil {
		s.markDegraded(err)
		return err
	}
	return nil
}

// SendAudio forwards one PCM frame upstream, buffering while disconnected.
// Degraded streams swallow audio silently; the controller already spoke the
// fallback line.
func (s *SpeechToText) SendAudio(pcm []byte) error {
	s.mu.Lock()
	if s.closed || s.degraded {
		s.mu.Unlock()
		return nil
	}
	if !s.connected || s.client == nil {
		if len(s.pending) >= pendingFrameLimit {
			s.pending = s.pending[1:]
		}
		buf := make([]byte, len(pcm))
		copy(buf, pcm)
		s.pending = append(s.pending, buf)
		s.mu.Unlock()
		return nil
	}
	client := s.client
	s.mu.Unlock()

	if err := client.WriteBinary(pcm); err != nil {
		s.logger.Warnw("Failed to forward audio to transcriber", "error", err.Error())
		return err
	}
	return nil
}

// Flush asks the provider to finalize whatever it is still holding. Used on
// graceful shutdown so trailing speech makes it into the transcript.
func (s *SpeechToText) Flush() {
	s.mu.Lock()
	client := s.client
	connected := s.connected
	s.mu.Unlock()

	if connected && client != nil {
		if err := client.Finalize(); err != nil {
			s.logger.Debugw("Transcriber finalize failed", "error", err.Error())
		}
	}
}

// Degraded reports whether reconnection has been exhausted.
func (s *SpeechToText) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Close stops the stream. Idempotent.
func (s *SpeechToText) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.connected = false
	s.mu.Unlock()

	if client != nil {
		client.Stop()
	}
}

// ============================================================================
// Connection management
// ============================================================================

func (s *SpeechToText) connectWithRetry(ctx context.Context) error {
	var lastErr error
	delay := sttRetryBaseDelay
	for attempt := 1; attempt <= sttMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.connectOnce(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warnw("Transcriber connect attempt failed",
			"attempt", attempt, "error", err.Error())

		if attempt < sttMaxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return lastErr
}

func (s *SpeechToText) connectOnce(ctx context.Context) error {
	client, err := s.factory(
		ctx,
		s.option.GetKey(),
		&clientinterfaces.ClientOptions{EnableKeepAlive: true},
		s.option.SpeechToTextOptions(),
		&sttCallback{s: s},
	)
	if err != nil {
		return fmt.Errorf("failed to create transcriber client: %w", err)
	}

	done := make(chan bool, 1)
	go func() { done <- client.Connect() }()

	select {
	case ok := <-done:
		if !ok {
			client.Stop()
			return fmt.Errorf("transcriber refused connection")
		}
	case <-time.After(sttConnectTimeout):
		client.Stop()
		return fmt.Errorf("transcriber connect timed out after %s", sttConnectTimeout)
	case <-ctx.Done():
		client.Stop()
		return ctx.Err()
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

func (s *SpeechToText) triggerReconnect(cause error) {
	s.mu.Lock()
	if s.closed || s.degraded || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.connected = false
	s.client = nil
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Warnw("Transcription stream lost, reconnecting", "cause", fmt.Sprintf("%v", cause))
	utils.Go(ctx, func() {
		err := s.connectWithRetry(ctx)
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		if err != nil {
			s.markDegraded(fmt.Errorf("reconnect exhausted: %w", err))
		}
	})
}

func (s *SpeechToText) markDegraded(err error) {
	s.mu.Lock()
	if s.degraded || s.closed {
		s.mu.Unlock()
		return
	}
	s.degraded = true
	s.pending = nil
	s.mu.Unlock()

	s.logger.Errorw("Transcription degraded for remainder of call", "error", err.Error())
	s.push(DegradedEvent{Err: err})
}

func (s *SpeechToText) push(event interface{}) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// emitFinal drains accumulated segment finals as one utterance transcript.
// Callers must not hold s.mu.
func (s *SpeechToText) emitFinal() {
	s.mu.Lock()
	text := strings.TrimSpace(strings.Join(s.segments, " "))
	confidence := s.lastConfidence
	s.segments = nil
	s.lastConfidence = 0
	s.mu.Unlock()

	if text == "" {
		return
	}
	if confidence < minFinalConfidence {
		s.logger.Debugw("Dropping low-confidence final",
			"confidence", confidence, "text", text)
		return
	}
	s.push(FinalEvent{Text: text, Confidence: confidence})
}

// ============================================================================
// Provider callback
// ============================================================================

type sttCallback struct {
	s *SpeechToText
}

func (c *sttCallback) Open(or *msginterfaces.OpenResponse) error {
	s := c.s
	s.mu.Lock()
	s.connected = true
	pending := s.pending
	s.pending = nil
	client := s.client
	s.mu.Unlock()

	s.logger.Infow("Transcription stream open", "buffered", len(pending))
	for _, frame := range pending {
		if client == nil {
			break
		}
		if err := client.WriteBinary(frame); err != nil {
			s.logger.Warnw("Failed to drain buffered audio", "error", err.Error())
			break
		}
	}
	return nil
}

func (c *sttCallback) Message(mr *msginterfaces.MessageResponse) error {
	s := c.s
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)

	if mr.IsFinal {
		s.mu.Lock()
		if text != "" {
			s.segments = append(s.segments, text)
			s.lastConfidence = alt.Confidence
		}
		speechFinal := mr.SpeechFinal
		s.mu.Unlock()

		if speechFinal {
			s.emitFinal()
		}
		return nil
	}

	if text == "" {
		return nil
	}
	s.mu.Lock()
	parts := append(append([]string{}, s.segments...), text)
	s.mu.Unlock()
	s.push(InterimEvent{Text: strings.TrimSpace(strings.Join(parts, " "))})
	return nil
}

func (c *sttCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	// Flush any segment finals that never saw speech_final, then let the
	// controller know about the silence either way.
	c.s.emitFinal()
	c.s.push(UtteranceEndEvent{})
	return nil
}

func (c *sttCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	return nil
}

func (c *sttCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *sttCallback) Close(cr *msginterfaces.CloseResponse) error {
	c.s.triggerReconnect(fmt.Errorf("provider closed transcription stream"))
	return nil
}

func (c *sttCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.s.triggerReconnect(fmt.Errorf("transcription stream error: %+v", er))
	return nil
}

func (c *sttCallback) UnhandledEvent(byData []byte) error {
	c.s.logger.Debugw("Unhandled transcription event", "payload", string(byData))
	return nil
}
