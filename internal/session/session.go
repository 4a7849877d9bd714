// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_session

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	internal_agent_openai "github.com/rapidaai/voice-gateway/internal/agent/openai"
	internal_agentstore "github.com/rapidaai/voice-gateway/internal/agentstore"
	internal_calllog "github.com/rapidaai/voice-gateway/internal/calllog"
	internal_language "github.com/rapidaai/voice-gateway/internal/language"
	internal_pacer "github.com/rapidaai/voice-gateway/internal/pacer"
	internal_telephony "github.com/rapidaai/voice-gateway/internal/telephony"
	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// ============================================================================
// Collaborator seams
// ============================================================================

// Telephony is the PBX leg of a call. The websocket adapter satisfies it.
type Telephony interface {
	Events() <-chan interface{}
	ReadLoop(ctx context.Context)
	EmitMedia(streamSid string, pcm []byte) error
	EmitStop(streamSid, accountSid, callSid string) error
	Close() error
	Stats() internal_telephony.AdapterStats
}

// Transcriber is the streaming speech-to-text leg.
type Transcriber interface {
	Start(ctx context.Context) error
	SendAudio(pcm []byte) error
	Flush()
	Events() <-chan interface{}
	Degraded() bool
	Close()
}

// Completer produces agent replies and the intent / lead classifications.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []internal_agent_openai.Message, userMessage, language, userName string) (string, error)
	ClassifyIntent(ctx context.Context, lastAssistant, userMessage string) internal_agent_openai.Intent
	ClassifyLead(ctx context.Context, transcript string) (string, error)
}

// Synthesizer renders agent text to telephony PCM.
type Synthesizer interface {
	Warm(ctx context.Context, language string)
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
	Close()
}

// Player paces PCM to the telephony leg.
type Player interface {
	Play(ctx context.Context, pcm []byte, turnID uint64, fresh func() uint64) internal_pacer.PlayResult
	Interrupt()
	BytesSent() int64
	Playing() bool
}

// Recorder captures both legs of the call for an optional recording file.
type Recorder interface {
	WriteCaller(pcm []byte)
	WriteAgent(pcm []byte)
	Persist() (string, error)
}

// Dependencies carries everything a session needs beyond its own socket.
// Transcriber and synthesizer are built per call because their upstream
// sessions are negotiated with call-specific language and voice.
type Dependencies struct {
	Agents    internal_agentstore.Store
	Logs      internal_calllog.Store
	Registry  *Registry
	Completer Completer

	NewTranscriber func(language string) (Transcriber, error)
	NewSynthesizer func(voice string) (Synthesizer, error)
	NewRecorder    func(streamSid string) Recorder
	NewPlayer      func(sink internal_pacer.MediaSink, streamSid string) Player
}

// recordingSink tees successfully emitted agent frames into the recorder, so
// the recording contains exactly the audio the caller heard.
type recordingSink struct {
	sink internal_pacer.MediaSink
	rec  Recorder
}

func (rs recordingSink) EmitMedia(streamSid string, pcm []byte) error {
	if err := rs.sink.EmitMedia(streamSid, pcm); err != nil {
		return err
	}
	rs.rec.WriteAgent(pcm)
	return nil
}

// ============================================================================
// CallSession
// ============================================================================

// CallSession owns one call end to end: the PBX socket, the STT/LLM/TTS legs,
// the turn state machine, and the call log. All turn state is mutated by a
// single event loop; collaborators post results back as events tagged with
// the turn they belong to.
type CallSession struct {
	logger commons.Logger
	cfg    *config.AppConfig
	deps   Dependencies

	telephony Telephony
	query     url.Values

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Collaborators, built once the start frame arrives.
	stt        Transcriber
	tts        Synthesizer
	player     Player
	recorder   Recorder
	callLogger *internal_calllog.CallLogger
	agent      *internal_agentstore.Agent
	side       *internal_telephony.SideChannel

	// turnID is read by the pacer's freshness guard from the playback
	// goroutine, hence atomic. Everything below mu is snapshot-visible.
	turnID atomic.Uint64

	mu           sync.Mutex
	state        State
	language     string
	streamSid    string
	callSid      string
	accountSid   string
	callerNumber string
	calledNumber string
	direction    string
	startedAt    time.Time
	answeredAt   time.Time

	// Loop-owned turn bookkeeping.
	history           []internal_agent_openai.Message
	pendingPartial    string
	pendingFinal      string
	started           bool
	answered          bool
	greeted           bool
	sttFallbackSpoken bool
	repromptCount     int
	pendingEndReason  string

	sttCh <-chan interface{}

	internalCh chan interface{}

	answerTimer     *time.Timer
	interimTimer    *time.Timer
	completionTimer *time.Timer
	turnTimer       *time.Timer
	endingTimer     *time.Timer

	endOnce   sync.Once
	endReason string
}

func NewCallSession(
	logger commons.Logger,
	cfg *config.AppConfig,
	telephony Telephony,
	query url.Values,
	deps Dependencies,
) *CallSession {
	if deps.NewPlayer == nil {
		deps.NewPlayer = func(sink internal_pacer.MediaSink, streamSid string) Player {
			return internal_pacer.NewPacer(logger, sink, streamSid)
		}
	}
	return &CallSession{
		logger:     logger,
		cfg:        cfg,
		deps:       deps,
		telephony:  telephony,
		query:      query,
		done:       make(chan struct{}),
		state:      StateIdle,
		internalCh: make(chan interface{}, 16),
	}
}

// Run drives the session until the call ends. It blocks; the caller owns the
// goroutine (one per websocket connection).
func (s *CallSession) Run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.ctx, s.cancel = ctx, cancel
	defer close(s.done)
	defer cancel()

	utils.Go(ctx, func() { s.telephony.ReadLoop(ctx) })

	telephonyEvents := s.telephony.Events()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return

		case ev, ok := <-telephonyEvents:
			if !ok {
				telephonyEvents = nil
				s.Terminate("peer_closed")
				continue
			}
			s.handleTelephony(ctx, ev)

		case ev, ok := <-s.sttCh:
			if !ok {
				s.sttCh = nil
				continue
			}
			s.handleTranscription(ctx, ev)

		case ev := <-s.internalCh:
			s.handleInternal(ctx, ev)

		case <-timerC(s.answerTimer):
			s.answerTimer = nil
			s.onAnswerGrace(ctx)

		case <-timerC(s.interimTimer):
			s.interimTimer = nil
			s.onInterimWait(ctx)

		case <-timerC(s.completionTimer):
			s.completionTimer = nil
			s.onCompletionWait(ctx)

		case <-timerC(s.turnTimer):
			s.turnTimer = nil
			s.onListeningIdle(ctx)

		case <-timerC(s.endingTimer):
			s.endingTimer = nil
			reason := s.pendingEndReason
			if reason == "" {
				reason = "agent_hangup"
			}
			s.Terminate(reason)
		}
	}
}

// Done is closed once the session has fully shut down.
func (s *CallSession) Done() <-chan struct{} {
	return s.done
}

// Terminate ends the call. Idempotent; the first reason wins and is what the
// call log records.
func (s *CallSession) Terminate(reason string) {
	s.endOnce.Do(func() {
		s.endReason = reason
		s.cancel()
	})
}

// ============================================================================
// Telephony events
// ============================================================================

func (s *CallSession) handleTelephony(ctx context.Context, ev interface{}) {
	switch ev := ev.(type) {
	case internal_telephony.ConnectedEvent:
		s.logger.Debugw("telephony connected")

	case internal_telephony.StartEvent:
		s.handleStart(ctx, ev)

	case internal_telephony.AnswerEvent:
		s.handleAnswered(ctx)

	case internal_telephony.AudioEvent:
		if s.stt != nil {
			_ = s.stt.SendAudio(ev.PCM)
		}
		if s.recorder != nil {
			s.recorder.WriteCaller(ev.PCM)
		}

	case internal_telephony.DTMFEvent:
		s.handleDTMF(ev.Digit)

	case internal_telephony.MarkEvent:
		s.logger.Debugw("mark received", "name", ev.Name)

	case internal_telephony.ClearEvent:
		s.logger.Debugw("clear received")

	case internal_telephony.TransferEvent:
		s.logger.Infow("transfer requested by pbx", "streamSid", s.StreamSid())

	case internal_telephony.HangupEvent:
		s.Terminate("pbx_hangup")

	case internal_telephony.StopEvent:
		s.Terminate("pbx_stop")

	case internal_telephony.ClosedEvent:
		if ev.Err != nil {
			s.logger.Warnw("telephony transport error", "error", ev.Err)
			s.Terminate("transport_error")
		} else {
			s.Terminate("peer_closed")
		}

	default:
		s.logger.Debugw("unhandled telephony event", "event", utils.ToJson(ev))
	}
}

func (s *CallSession) handleStart(ctx context.Context, ev internal_telephony.StartEvent) {
	if s.started {
		s.logger.Warnw("duplicate start frame ignored", "streamSid", ev.StreamSid)
		return
	}
	s.started = true

	s.side = internal_telephony.ParseSideChannel(s.query, &ev.Start)

	// The start payload is the authoritative source for numbers; the side
	// channel fills in what the PBX left blank.
	callerNumber := ev.Start.From
	if callerNumber == "" {
		callerNumber = s.side.CallerID
	}
	calledNumber := ev.Start.To
	if calledNumber == "" {
		calledNumber = s.side.DID
	}
	direction := s.side.Direction
	if direction == "" {
		direction = "inbound"
	}

	s.agent = s.resolveAgent(ctx, ev.Start.AccountSid)
	language := internal_language.Clamp(s.agent.Language, s.cfg.AgentConfig.DefaultLanguage)

	s.mu.Lock()
	s.streamSid = ev.StreamSid
	s.callSid = ev.Start.CallSid
	s.accountSid = ev.Start.AccountSid
	s.callerNumber = callerNumber
	s.calledNumber = calledNumber
	s.direction = direction
	s.language = language
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.deps.Registry != nil {
		s.deps.Registry.Add(ev.StreamSid, s)
	}

	s.logger.Infow("call started",
		"streamSid", ev.StreamSid,
		"callSid", ev.Start.CallSid,
		"accountSid", ev.Start.AccountSid,
		"from", callerNumber,
		"to", calledNumber,
		"direction", direction,
		"language", language,
	)

	s.openCallLog(ctx)
	s.setupRecorder()
	s.setupTranscriber(ctx, language)
	s.setupSynthesizer(ctx, language)

	sink := internal_pacer.MediaSink(s.telephony)
	if s.recorder != nil {
		sink = recordingSink{sink: sink, rec: s.recorder}
	}
	s.player = s.deps.NewPlayer(sink, ev.StreamSid)

	if !s.agent.Active {
		s.logger.Infow("agent inactive, refusing call", "accountSid", ev.Start.AccountSid)
		s.speakFinal(ctx, internal_agentstore.InactiveMessage, "agent_inactive")
		return
	}

	if s.answered {
		s.greet(ctx)
		return
	}
	// Some PBX variants never send a distinct answer event; treat the start
	// frame as answered after a short grace.
	s.answerTimer = time.NewTimer(answerGraceWait)
}

func (s *CallSession) handleAnswered(ctx context.Context) {
	if s.answered {
		return
	}
	s.answered = true
	s.mu.Lock()
	s.answeredAt = time.Now()
	s.mu.Unlock()

	stopTimer(&s.answerTimer)
	if s.started && !s.greeted {
		s.greet(ctx)
	}
}

func (s *CallSession) onAnswerGrace(ctx context.Context) {
	if !s.answered {
		s.handleAnswered(ctx)
	}
}

func (s *CallSession) handleDTMF(digit string) {
	s.logger.Infow("dtmf received", "digit", digit, "streamSid", s.StreamSid())
	if s.callLogger != nil {
		s.callLogger.Append(internal_calllog.TranscriptEntry{
			Role:      internal_calllog.EntryUser,
			Text:      "[dtmf] " + digit,
			Language:  s.Language(),
			Timestamp: time.Now(),
			Source:    internal_calllog.SourceTranscription,
		})
	}
}

// ============================================================================
// Collaborator setup
// ============================================================================

func (s *CallSession) resolveAgent(ctx context.Context, accountSid string) *internal_agentstore.Agent {
	if s.deps.Agents == nil {
		return internal_agentstore.DefaultAgent()
	}
	return s.deps.Agents.Resolve(ctx, accountSid)
}

func (s *CallSession) openCallLog(ctx context.Context) {
	if s.deps.Logs == nil {
		return
	}
	s.callLogger = internal_calllog.NewCallLogger(s.logger, s.deps.Logs)

	snap := s.Snapshot()
	if _, err := s.callLogger.Open(ctx, &internal_calllog.CallLog{
		StreamSid:    snap.StreamSid,
		CallSid:      snap.CallSid,
		AccountSid:   snap.AccountSid,
		Direction:    snap.Direction,
		CallerNumber: snap.CallerNumber,
		CalledNumber: snap.CalledNumber,
		CallerName:   s.side.Name,
		Language:     snap.Language,
		StartedAt:    snap.StartedAt,
	}); err != nil {
		s.logger.Errorw("call log insert failed, call continues unlogged",
			"streamSid", snap.StreamSid, "error", err)
	}
}

func (s *CallSession) setupRecorder() {
	if s.deps.NewRecorder == nil {
		return
	}
	s.recorder = s.deps.NewRecorder(s.StreamSid())
}

func (s *CallSession) setupTranscriber(ctx context.Context, language string) {
	if s.deps.NewTranscriber == nil {
		return
	}
	stt, err := s.deps.NewTranscriber(language)
	if err != nil {
		s.logger.Errorw("transcriber unavailable, call continues without speech input", "error", err)
		return
	}
	s.stt = stt
	s.sttCh = stt.Events()
	// Start handles its own retries and posts a degraded event on exhaustion.
	_ = stt.Start(ctx)
}

func (s *CallSession) setupSynthesizer(ctx context.Context, language string) {
	if s.deps.NewSynthesizer == nil {
		return
	}
	tts, err := s.deps.NewSynthesizer(s.agent.Voice)
	if err != nil {
		s.logger.Errorw("synthesizer unavailable, call will be silent", "error", err)
		return
	}
	s.tts = tts
	utils.Go(ctx, func() { tts.Warm(ctx, language) })
}

// ============================================================================
// Internal events
// ============================================================================

func (s *CallSession) handleInternal(ctx context.Context, ev interface{}) {
	switch ev := ev.(type) {
	case playbackDone:
		s.handlePlaybackDone(ctx, ev)
	case llmReply:
		s.handleLLMReply(ctx, ev)
	default:
		s.logger.Debugw("unhandled internal event", "event", utils.ToJson(ev))
	}
}

func (s *CallSession) postInternal(ctx context.Context, ev interface{}) {
	select {
	case s.internalCh <- ev:
	case <-ctx.Done():
	}
}

// ============================================================================
// Shutdown
// ============================================================================

// shutdown runs exactly once, on the loop goroutine, after the session
// context is cancelled. It closes every leg, classifies and finalizes the
// log, persists the recording, and deregisters the session.
func (s *CallSession) shutdown() {
	reason := s.endReason
	if reason == "" {
		reason = "peer_closed"
	}
	s.setState(StateEnding)

	stopTimer(&s.answerTimer)
	stopTimer(&s.interimTimer)
	stopTimer(&s.completionTimer)
	stopTimer(&s.turnTimer)
	stopTimer(&s.endingTimer)

	if s.player != nil {
		s.player.Interrupt()
	}
	if s.stt != nil {
		s.stt.Close()
	}
	if s.tts != nil {
		s.tts.Close()
	}

	snap := s.Snapshot()

	// Release the caller's line first; classification and store writes can
	// take seconds and must not hold the socket open.
	if !peerInitiated(reason) && snap.StreamSid != "" {
		if err := s.telephony.EmitStop(snap.StreamSid, snap.AccountSid, snap.CallSid); err == nil {
			// Give the PBX a moment to ack before forcing the socket closed.
			time.Sleep(stopAckWait)
		}
	}
	_ = s.telephony.Close()

	// The session context is gone; finalization gets its own bounded one.
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if s.callLogger != nil {
		lead := s.classifyLead(ctx)
		if err := s.callLogger.Finalize(ctx, lead, snap.Language); err != nil {
			s.logger.Errorw("call log finalize failed", "streamSid", snap.StreamSid, "error", err)
		}
	}

	if s.recorder != nil {
		if path, err := s.recorder.Persist(); err != nil {
			s.logger.Warnw("call recording failed", "streamSid", snap.StreamSid, "error", err)
		} else if path != "" {
			s.logger.Infow("call recording written", "streamSid", snap.StreamSid, "path", path)
		}
	}

	if s.deps.Registry != nil && snap.StreamSid != "" {
		s.deps.Registry.Remove(snap.StreamSid)
	}

	duration := time.Duration(0)
	if !snap.StartedAt.IsZero() {
		duration = time.Since(snap.StartedAt)
	}
	s.logger.Infow("call ended",
		"streamSid", snap.StreamSid,
		"callSid", snap.CallSid,
		"reason", reason,
		"duration", duration.Round(time.Second),
		"turns", s.turnID.Load(),
	)
}

// classifyLead labels the finished call. Calls where the caller never said
// anything stay not_connected; classifier failures on a real conversation
// collapse to maybe rather than losing the lead.
func (s *CallSession) classifyLead(ctx context.Context) internal_calllog.LeadStatus {
	entries := s.callLogger.Entries()
	spoke := false
	for _, e := range entries {
		if e.Role == internal_calllog.EntryUser {
			spoke = true
			break
		}
	}
	if !spoke {
		return internal_calllog.LeadNotConnected
	}
	if s.deps.Completer == nil {
		return internal_calllog.LeadMaybe
	}

	label, err := s.deps.Completer.ClassifyLead(ctx, internal_calllog.RenderTranscript(entries))
	if err != nil {
		s.logger.Warnw("lead classification failed", "streamSid", s.StreamSid(), "error", err)
		return internal_calllog.LeadMaybe
	}
	return internal_calllog.ParseLeadStatus(label)
}

func peerInitiated(reason string) bool {
	switch reason {
	case "pbx_stop", "pbx_hangup", "peer_closed", "transport_error":
		return true
	}
	return false
}

// ============================================================================
// Snapshot / accessors
// ============================================================================

// Snapshot is the admin view of a live session.
type Snapshot struct {
	StreamSid    string                          `json:"streamSid"`
	CallSid      string                          `json:"callSid"`
	AccountSid   string                          `json:"accountSid"`
	CallerNumber string                          `json:"callerNumber"`
	CalledNumber string                          `json:"calledNumber"`
	Direction    string                          `json:"direction"`
	State        string                          `json:"state"`
	TurnID       uint64                          `json:"turnId"`
	Language     string                          `json:"language"`
	StartedAt    time.Time                       `json:"startedAt"`
	AnsweredAt   time.Time                       `json:"answeredAt"`
	Transcripts  int                             `json:"transcripts"`
	LogID        string                          `json:"logId"`
	Transport    internal_telephony.AdapterStats `json:"transport"`
}

func (s *CallSession) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		StreamSid:    s.streamSid,
		CallSid:      s.callSid,
		AccountSid:   s.accountSid,
		CallerNumber: s.callerNumber,
		CalledNumber: s.calledNumber,
		Direction:    s.direction,
		State:        s.state.String(),
		Language:     s.language,
		StartedAt:    s.startedAt,
		AnsweredAt:   s.answeredAt,
	}
	s.mu.Unlock()

	snap.TurnID = s.turnID.Load()
	snap.Transport = s.telephony.Stats()
	if s.callLogger != nil {
		snap.Transcripts = len(s.callLogger.Entries())
		snap.LogID = s.callLogger.LogID()
	}
	return snap
}

func (s *CallSession) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func (s *CallSession) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *CallSession) setLanguage(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = tag
}

func (s *CallSession) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallSession) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.logger.Debugw("turn state changed",
			"from", prev.String(), "to", next.String(), "turnId", s.turnID.Load())
	}
}

func (s *CallSession) currentTurn() uint64 {
	return s.turnID.Load()
}

// ============================================================================
// Timer helpers
// ============================================================================

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
