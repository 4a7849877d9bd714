// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

const (
	maxInboundMessageBytes = 1 << 20
	writeTimeout           = 5 * time.Second
	defaultEventBuffer     = 512
)

// AdapterOption configures an Adapter.
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	sourceAudioConfig *internal_audio.AudioConfig
	eventBuffer       int
}

// WithSourceAudioConfig declares the native inbound format of this PBX leg.
// When the start frame carries a mediaFormat it takes precedence over this
// option. Nil defaults to 8 kHz LINEAR16 (no conversion).
func WithSourceAudioConfig(cfg *internal_audio.AudioConfig) AdapterOption {
	return func(c *adapterConfig) { c.sourceAudioConfig = cfg }
}

// WithEventBuffer overrides the event channel capacity.
func WithEventBuffer(n int) AdapterOption {
	return func(c *adapterConfig) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// ============================================================================
// Adapter — PBX WebSocket leg of a call
// ============================================================================

// Adapter owns one PBX WebSocket connection. The read loop turns wire frames
// into typed events on a single channel; writers share one mutex because
// media frames, control acks, and the terminal stop frame come from
// different goroutines.
type Adapter struct {
	logger commons.Logger
	conn   *websocket.Conn

	encoder *base64.Encoding
	events  chan interface{}

	writeMu sync.Mutex

	// sourceAudioConfig is the inbound format, fixed at start-frame time.
	sourceMu          sync.RWMutex
	sourceAudioConfig *internal_audio.AudioConfig

	streamSid atomic.Value // string, set on start
	sequence  atomic.Int64 // outbound stop sequenceNumber

	closed   atomic.Bool
	closeMu  sync.Mutex
	closeErr error

	framesIn     atomic.Int64
	framesOut    atomic.Int64
	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
	malformed    atomic.Int64
	droppedAudio atomic.Int64
}

// AdapterStats is a point-in-time snapshot of the wire counters.
type AdapterStats struct {
	FramesIn     int64 `json:"framesIn"`
	FramesOut    int64 `json:"framesOut"`
	BytesIn      int64 `json:"bytesIn"`
	BytesOut     int64 `json:"bytesOut"`
	Malformed    int64 `json:"malformed"`
	DroppedAudio int64 `json:"droppedAudio"`
}

func NewAdapter(logger commons.Logger, conn *websocket.Conn, opts ...AdapterOption) *Adapter {
	cfg := adapterConfig{eventBuffer: defaultEventBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sourceAudioConfig == nil {
		cfg.sourceAudioConfig = internal_audio.TELEPHONY_AUDIO_CONFIG
	}

	conn.SetReadLimit(maxInboundMessageBytes)
	return &Adapter{
		logger:            logger,
		conn:              conn,
		encoder:           base64.StdEncoding,
		events:            make(chan interface{}, cfg.eventBuffer),
		sourceAudioConfig: cfg.sourceAudioConfig,
	}
}

// Events is the adapter-to-session channel. It is closed when the read loop
// exits, after a final ClosedEvent.
func (a *Adapter) Events() <-chan interface{} {
	return a.events
}

// StreamSid returns the correlation key learned from the start frame.
func (a *Adapter) StreamSid() string {
	if v, ok := a.streamSid.Load().(string); ok {
		return v
	}
	return ""
}

// ReadLoop consumes the socket until it closes. It never returns an error:
// the terminal ClosedEvent carries one when the close was not clean.
func (a *Adapter) ReadLoop(ctx context.Context) {
	defer close(a.events)

	for {
		msgType, data, err := a.conn.ReadMessage()
		if err != nil {
			a.pushControl(ctx, ClosedEvent{Err: closeCause(err, a.closed.Load())})
			return
		}
		if msgType != websocket.TextMessage {
			a.malformed.Add(1)
			continue
		}
		a.handleFrame(ctx, data)
	}
}

func (a *Adapter) handleFrame(ctx context.Context, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		a.malformed.Add(1)
		a.logger.Debugw("Dropping unparseable frame", "error", err.Error())
		return
	}
	a.framesIn.Add(1)

	switch frame.Event {
	case "connected":
		a.pushControl(ctx, ConnectedEvent{})

	case "start":
		start := StartPayload{}
		if frame.Start != nil {
			start = *frame.Start
		}
		sid := frame.ResolveStreamSid()
		a.streamSid.Store(sid)
		if cfg := SourceConfigFromMediaFormat(start.MediaFormat); cfg != nil {
			a.sourceMu.Lock()
			a.sourceAudioConfig = cfg
			a.sourceMu.Unlock()
		}
		a.pushControl(ctx, StartEvent{StreamSid: sid, Start: start})

	case "answer":
		a.pushControl(ctx, AnswerEvent{})

	case "media":
		a.handleMedia(frame.Media)

	case "dtmf":
		digit := ""
		if frame.DTMF != nil {
			digit = frame.DTMF.Digit
		}
		a.pushControl(ctx, DTMFEvent{Digit: digit})

	case "mark":
		name := ""
		if frame.Mark != nil {
			name = frame.Mark.Name
		}
		a.writeAck(ackFrame{Event: "mark_ack", StreamSid: a.StreamSid(), Mark: &MarkPayload{Name: name}})
		a.pushControl(ctx, MarkEvent{Name: name})

	case "clear":
		a.writeAck(ackFrame{Event: "clear_ack", StreamSid: a.StreamSid()})
		a.pushControl(ctx, ClearEvent{})

	case "stop":
		a.pushControl(ctx, StopEvent{Payload: frame.Stop})

	case "transfer-call":
		a.writeAck(ackFrame{Event: "transfer-call-response", StreamSid: a.StreamSid(), Success: boolPtr(true)})
		a.pushControl(ctx, TransferEvent{})

	case "hangup-call":
		a.writeAck(ackFrame{Event: "hangup-call-response", StreamSid: a.StreamSid(), Success: boolPtr(true)})
		a.pushControl(ctx, HangupEvent{})

	default:
		a.logger.Debugw("Ignoring unknown PBX event", "event", frame.Event)
	}
}

func (a *Adapter) handleMedia(media *MediaPayload) {
	if media == nil || media.Payload == "" {
		a.malformed.Add(1)
		return
	}
	raw, err := a.encoder.DecodeString(media.Payload)
	if err != nil || len(raw) == 0 {
		a.malformed.Add(1)
		return
	}

	a.sourceMu.RLock()
	source := a.sourceAudioConfig
	a.sourceMu.RUnlock()

	pcm, err := internal_audio.Normalize(raw, source)
	if err != nil {
		a.malformed.Add(1)
		a.logger.Debugw("Dropping media frame that failed normalization", "error", err.Error())
		return
	}
	a.bytesIn.Add(int64(len(pcm)))

	// Audio is lossy by design under backpressure: stalling the read loop
	// would delay control frames, which matter more than a dropped frame.
	select {
	case a.events <- AudioEvent{PCM: pcm}:
	default:
		if n := a.droppedAudio.Add(1); n%100 == 1 {
			a.logger.Warnw("Event channel full, dropping caller audio", "dropped", n)
		}
	}
}

// pushControl blocks until the session accepts the event or the session
// context ends. Control frames are few and must not be lost.
func (a *Adapter) pushControl(ctx context.Context, event interface{}) {
	select {
	case a.events <- event:
	case <-ctx.Done():
	}
}

// ============================================================================
// Outbound frames
// ============================================================================

type ackFrame struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Mark      *MarkPayload `json:"mark,omitempty"`
	Success   *bool        `json:"success,omitempty"`
}

// EmitMedia sends one base64 media frame for the given stream.
func (a *Adapter) EmitMedia(streamSid string, pcm []byte) error {
	frame := Frame{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: a.encoder.EncodeToString(pcm)},
	}
	if err := a.writeJSON(frame); err != nil {
		return err
	}
	a.framesOut.Add(1)
	a.bytesOut.Add(int64(len(pcm)))
	return nil
}

// EmitStop tells the PBX the gateway is ending the call. The sequence number
// increments per emission so retries remain distinguishable on the far side.
func (a *Adapter) EmitStop(streamSid, accountSid, callSid string) error {
	frame := Frame{
		Event:          "stop",
		SequenceNumber: a.sequence.Add(1),
		StreamSid:      streamSid,
		Stop:           &StopPayload{AccountSid: accountSid, CallSid: callSid},
	}
	return a.writeJSON(frame)
}

func (a *Adapter) writeAck(frame ackFrame) {
	if err := a.writeJSON(frame); err != nil {
		a.logger.Debugw("Failed to write ack frame", "event", frame.Event, "error", err.Error())
	}
}

func (a *Adapter) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return a.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a best-effort close frame and tears the socket down. Safe to
// call more than once and from any goroutine.
func (a *Adapter) Close() error {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed.Swap(true) {
		return a.closeErr
	}

	a.writeMu.Lock()
	a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
		time.Now().Add(250*time.Millisecond))
	a.writeMu.Unlock()

	a.closeErr = a.conn.Close()
	return a.closeErr
}

// Stats snapshots the wire counters for the admin surface.
func (a *Adapter) Stats() AdapterStats {
	return AdapterStats{
		FramesIn:     a.framesIn.Load(),
		FramesOut:    a.framesOut.Load(),
		BytesIn:      a.bytesIn.Load(),
		BytesOut:     a.bytesOut.Load(),
		Malformed:    a.malformed.Load(),
		DroppedAudio: a.droppedAudio.Load(),
	}
}

// SourceConfigFromMediaFormat maps a start-frame mediaFormat to an audio
// config. Nil when the PBX sent nothing useful.
func SourceConfigFromMediaFormat(mf *MediaFormat) *internal_audio.AudioConfig {
	if mf == nil {
		return nil
	}

	encoding := strings.ToLower(mf.Encoding)
	rate := mf.SampleRate
	if rate == 0 {
		rate = 8000
	}
	channels := mf.Channels
	if channels == 0 {
		channels = 1
	}

	if strings.Contains(encoding, "mulaw") || strings.Contains(encoding, "ulaw") {
		return &internal_audio.AudioConfig{Format: internal_audio.MuLaw8, SampleRate: rate, Channels: channels}
	}
	return &internal_audio.AudioConfig{Format: internal_audio.Linear16, SampleRate: rate, Channels: channels}
}

func closeCause(err error, selfClosed bool) error {
	if selfClosed {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return nil
	}
	return err
}

func boolPtr(b bool) *bool { return &b }
