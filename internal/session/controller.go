// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_session

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	internal_agent_openai "github.com/rapidaai/voice-gateway/internal/agent/openai"
	internal_agentstore "github.com/rapidaai/voice-gateway/internal/agentstore"
	internal_calllog "github.com/rapidaai/voice-gateway/internal/calllog"
	internal_language "github.com/rapidaai/voice-gateway/internal/language"
	internal_transcriber_deepgram "github.com/rapidaai/voice-gateway/internal/transcriber/deepgram"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	// shortSpeechThreshold separates a real interjection from filler. An
	// interim at or above this many runes interrupts playback immediately;
	// below it the agent may keep talking if it is almost done.
	shortSpeechThreshold = 20

	// minAudioBytesForCompletion marks a reply as nearly played out. At
	// 8 kHz 16-bit mono this is ~3.1 seconds of audio already sent.
	minAudioBytesForCompletion = 50000

	// interimSpeechWaitTime is how long a short interim during a
	// near-complete reply is held before re-evaluating.
	interimSpeechWaitTime = 500 * time.Millisecond

	// completionWaitTime is the extra grace a near-complete reply gets to
	// finish after a short interjection before it is cut anyway.
	completionWaitTime = 1000 * time.Millisecond

	// answerGraceWait covers PBX variants that never send a separate answer
	// event after start.
	answerGraceWait = 250 * time.Millisecond

	// listeningIdleTimeout re-prompts a silent caller once, then hangs up.
	listeningIdleTimeout = 15 * time.Second

	// goodbyePlayGuard bounds how long a goodbye may take to synthesize and
	// play before the call is torn down regardless.
	goodbyePlayGuard = 8 * time.Second

	// stopAckWait gives the PBX a beat to acknowledge our stop frame.
	stopAckWait = 500 * time.Millisecond

	// finalizeTimeout bounds lead classification and the last log write.
	finalizeTimeout = 3 * time.Second

	// maxHistoryExchanges bounds the session-side conversation memory. The
	// completer trims further before each request.
	maxHistoryExchanges = 10
)

// ============================================================================
// Transcription events
// ============================================================================

func (s *CallSession) handleTranscription(ctx context.Context, ev interface{}) {
	switch ev := ev.(type) {
	case internal_transcriber_deepgram.InterimEvent:
		s.handleInterim(ctx, ev.Text)
	case internal_transcriber_deepgram.FinalEvent:
		s.handleFinal(ctx, ev.Text)
	case internal_transcriber_deepgram.UtteranceEndEvent:
		s.handleUtteranceEnd(ctx)
	case internal_transcriber_deepgram.DegradedEvent:
		s.handleDegraded(ctx, ev.Err)
	default:
		s.logger.Debugw("unhandled transcription event", "event", utils.ToJson(ev))
	}
}

// handleInterim applies the interruption policy. Long speech always wins over
// playback; short speech only wins while the reply still has a way to go.
func (s *CallSession) handleInterim(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.pendingPartial = text
	s.repromptCount = 0
	if s.currentState() == StateListening {
		s.armTurnTimer()
		return
	}
	if s.currentState() != StateSpeaking {
		return
	}

	if utf8.RuneCountInString(text) >= shortSpeechThreshold {
		s.logger.Debugw("caller interrupting, cancelling playback",
			"interim", text, "turnId", s.turnID.Load())
		s.bargeIn()
		return
	}

	// Short speech. If the reply is nearly played out, hold on and let the
	// interim wait decide; otherwise the caller gets the floor now.
	if s.player != nil && s.player.BytesSent() >= minAudioBytesForCompletion {
		if s.interimTimer == nil && s.completionTimer == nil {
			s.interimTimer = time.NewTimer(interimSpeechWaitTime)
		}
		return
	}
	s.bargeIn()
}

// bargeIn stops playback and hands the floor to the caller. Bumping the turn
// also kills a synthesis that has not reached the player yet.
func (s *CallSession) bargeIn() {
	stopTimer(&s.interimTimer)
	stopTimer(&s.completionTimer)
	if s.player != nil {
		s.player.Interrupt()
	}
	s.turnID.Add(1)
	s.setState(StateListening)
	s.armTurnTimer()
}

// onInterimWait re-evaluates a short interjection that arrived while a reply
// was nearly done. If playback is still running it gets one bounded grace to
// finish; if it finished meanwhile there is nothing to cancel.
func (s *CallSession) onInterimWait(ctx context.Context) {
	if s.currentState() != StateSpeaking {
		return
	}
	if s.player == nil || !s.player.Playing() {
		return
	}
	if s.player.BytesSent() >= minAudioBytesForCompletion {
		s.completionTimer = time.NewTimer(completionWaitTime)
		return
	}
	s.bargeIn()
}

// onCompletionWait fires when the grace ran out and the reply is still
// playing. The caller has waited long enough.
func (s *CallSession) onCompletionWait(ctx context.Context) {
	if s.currentState() == StateSpeaking && s.player != nil && s.player.Playing() {
		s.bargeIn()
	}
}

func (s *CallSession) handleFinal(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.pendingPartial = ""
	s.repromptCount = 0
	stopTimer(&s.interimTimer)
	stopTimer(&s.completionTimer)

	language := internal_language.Detect(text, s.Language())
	s.setLanguage(language)
	s.appendTranscript(internal_calllog.EntryUser, text, internal_calllog.SourceTranscription)

	switch s.currentState() {
	case StateListening:
		stopTimer(&s.turnTimer)
		s.startThinking(ctx, text)

	case StateThinking:
		// Newer speech supersedes the in-flight completion; the turn bump in
		// startThinking makes the older reply stale on arrival.
		s.startThinking(ctx, text)

	case StateSpeaking:
		long := utf8.RuneCountInString(text) >= shortSpeechThreshold
		if long || s.player == nil || s.player.BytesSent() < minAudioBytesForCompletion {
			if s.player != nil {
				s.player.Interrupt()
			}
			s.startThinking(ctx, text)
			return
		}
		// Reply is nearly done. Let it finish; the playback-done handler
		// picks this utterance up.
		s.pendingFinal = text

	default:
		// Idle before greeting or already ending. The transcript keeps the
		// words, the turn machine ignores them.
	}
}

// handleUtteranceEnd promotes a buffered partial when the provider endpoints
// on silence without ever upgrading the interim to a final.
func (s *CallSession) handleUtteranceEnd(ctx context.Context) {
	if s.currentState() != StateListening || s.pendingPartial == "" {
		return
	}
	text := s.pendingPartial
	s.pendingPartial = ""
	s.logger.Debugw("promoting partial transcript on utterance end", "text", text)
	s.handleFinal(ctx, text)
}

// handleDegraded tells the caller once that speech recognition is gone. The
// call stays up so they can at least hear the agent.
func (s *CallSession) handleDegraded(ctx context.Context, err error) {
	s.logger.Errorw("transcription degraded, no further speech input",
		"streamSid", s.StreamSid(), "error", err)
	if s.sttFallbackSpoken {
		return
	}
	s.sttFallbackSpoken = true
	if s.currentState() == StateEnding {
		return
	}
	notice := phrase(degradedPhrases, s.Language())
	s.appendTranscript(internal_calllog.EntryAssistant, notice, internal_calllog.SourceSynthesis)
	s.startTurn(ctx, notice, playNotice)
}

// onListeningIdle deals with a caller who has gone quiet: flush anything the
// transcriber buffered, then re-prompt once, then hang up.
func (s *CallSession) onListeningIdle(ctx context.Context) {
	if s.currentState() != StateListening {
		return
	}
	if s.pendingPartial != "" {
		text := s.pendingPartial
		s.pendingPartial = ""
		if s.stt != nil {
			s.stt.Flush()
		}
		s.handleFinal(ctx, text)
		return
	}
	if s.repromptCount == 0 {
		s.repromptCount++
		notice := phrase(stillTherePhrases, s.Language())
		s.appendTranscript(internal_calllog.EntryAssistant, notice, internal_calllog.SourceSynthesis)
		s.startTurn(ctx, notice, playNotice)
		return
	}
	s.logger.Infow("caller silent after re-prompt, ending call", "streamSid", s.StreamSid())
	s.sayGoodbye(ctx, "inactivity")
}

// ============================================================================
// Thinking
// ============================================================================

// startThinking owns one completion round trip. Classification and completion
// run off-loop; the result comes back as an llmReply stamped with the turn it
// belongs to.
func (s *CallSession) startThinking(ctx context.Context, userText string) {
	s.setState(StateThinking)
	turn := s.turnID.Add(1)
	stopTimer(&s.turnTimer)
	stopTimer(&s.interimTimer)
	stopTimer(&s.completionTimer)
	s.pendingFinal = ""

	history := make([]internal_agent_openai.Message, len(s.history))
	copy(history, s.history)
	systemPrompt := internal_agent_openai.ComposeSystemPrompt(s.agent.SystemPrompt, s.agent.FirstMessage)
	language := s.Language()
	callerName := ""
	if s.side != nil {
		callerName = s.side.Name
	}
	lastAssistant := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" {
			lastAssistant = history[i].Content
			break
		}
	}

	utils.Go(ctx, func() {
		if s.deps.Completer == nil {
			s.postInternal(ctx, llmReply{turnID: turn, userText: userText})
			return
		}
		if s.deps.Completer.ClassifyIntent(ctx, lastAssistant, userText) == internal_agent_openai.IntentDisconnect {
			s.postInternal(ctx, llmReply{turnID: turn, userText: userText, intent: internal_agent_openai.IntentDisconnect})
			return
		}
		text, err := s.deps.Completer.Complete(ctx, systemPrompt, history, userText, language, callerName)
		s.postInternal(ctx, llmReply{
			turnID:   turn,
			userText: userText,
			text:     text,
			intent:   internal_agent_openai.IntentContinue,
			err:      err,
		})
	})
}

func (s *CallSession) handleLLMReply(ctx context.Context, ev llmReply) {
	if ev.turnID != s.turnID.Load() {
		s.logger.Debugw("dropping stale completion", "turnId", ev.turnID, "current", s.turnID.Load())
		return
	}
	if s.currentState() != StateThinking {
		return
	}

	if ev.intent == internal_agent_openai.IntentDisconnect {
		s.logger.Infow("caller asked to end the call", "streamSid", s.StreamSid())
		s.sayGoodbye(ctx, "agent_hangup")
		return
	}
	if ev.err != nil {
		s.logger.Warnw("completion failed, returning to listening", "error", ev.err)
		s.setState(StateListening)
		s.armTurnTimer()
		return
	}
	if strings.TrimSpace(ev.text) == "" {
		s.logger.Infow("model produced no reply, returning to listening")
		s.setState(StateListening)
		s.armTurnTimer()
		return
	}

	s.history = append(s.history,
		internal_agent_openai.Message{Role: "user", Content: ev.userText},
		internal_agent_openai.Message{Role: "assistant", Content: ev.text},
	)
	if max := maxHistoryExchanges * 2; len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.appendTranscript(internal_calllog.EntryAssistant, ev.text, internal_calllog.SourceSynthesis)
	s.startTurn(ctx, ev.text, playReply)
}

// ============================================================================
// Speaking
// ============================================================================

// startTurn synthesizes and plays one utterance under a fresh turn id. The
// whole pipeline runs off-loop; a stale turn dies at the player's freshness
// check, or earlier if synthesis returns after the turn moved on.
func (s *CallSession) startTurn(ctx context.Context, text string, purpose playPurpose) {
	turn := s.turnID.Add(1)
	if purpose == playGoodbye {
		s.setState(StateEnding)
	} else {
		s.setState(StateSpeaking)
	}
	stopTimer(&s.turnTimer)
	stopTimer(&s.interimTimer)
	stopTimer(&s.completionTimer)
	if s.player != nil {
		s.player.Interrupt()
	}
	language := s.Language()

	utils.Go(ctx, func() {
		if s.tts == nil || s.player == nil {
			s.postInternal(ctx, playbackDone{turnID: turn, purpose: purpose, failed: true})
			return
		}
		pcm, err := s.tts.Synthesize(ctx, text, language)
		if err != nil {
			s.logger.Errorw("synthesis failed", "error", err, "turnId", turn)
			s.postInternal(ctx, playbackDone{turnID: turn, purpose: purpose, failed: true})
			return
		}
		if len(pcm) == 0 {
			s.postInternal(ctx, playbackDone{turnID: turn, purpose: purpose, failed: true})
			return
		}
		result := s.player.Play(ctx, pcm, turn, s.currentTurn)
		s.postInternal(ctx, playbackDone{turnID: turn, purpose: purpose, result: result})
	})
}

func (s *CallSession) handlePlaybackDone(ctx context.Context, ev playbackDone) {
	if ev.turnID != s.turnID.Load() {
		s.logger.Debugw("dropping stale playback result", "turnId", ev.turnID, "current", s.turnID.Load())
		return
	}
	stopTimer(&s.interimTimer)
	stopTimer(&s.completionTimer)

	if ev.purpose == playGoodbye {
		reason := s.pendingEndReason
		if reason == "" {
			reason = "agent_hangup"
		}
		s.Terminate(reason)
		return
	}
	if s.currentState() != StateSpeaking {
		return
	}
	if ev.failed {
		s.logger.Warnw("utterance could not be played, returning to listening", "turnId", ev.turnID)
	} else {
		s.logger.Debugw("playback finished", "turnId", ev.turnID, "result", ev.result.String())
	}

	// A final that arrived during the tail of the reply was parked; it gets
	// its completion now that the floor is free.
	if s.pendingFinal != "" {
		text := s.pendingFinal
		s.pendingFinal = ""
		s.startThinking(ctx, text)
		return
	}
	s.setState(StateListening)
	s.armTurnTimer()
}

// ============================================================================
// Scripted utterances
// ============================================================================

// greet opens the conversation with the agent's first message. The greeting
// reaches the model through the system prompt, not the history, so it is not
// appended as an exchange.
func (s *CallSession) greet(ctx context.Context) {
	// A refusal or goodbye may already be in flight when the answer event
	// arrives; greeting now would supersede it and resurrect the call.
	if s.greeted || s.currentState() == StateEnding {
		return
	}
	s.greeted = true

	snap := s.Snapshot()
	data := internal_agentstore.GreetingData{Caller: snap.CallerNumber, Called: snap.CalledNumber}
	if s.side != nil {
		data.Name = s.side.Name
		data.Params = s.side.Params
	}
	greeting := s.agent.RenderGreeting(data)
	if strings.TrimSpace(greeting) == "" {
		s.setState(StateListening)
		s.armTurnTimer()
		return
	}

	s.logger.Infow("greeting caller", "streamSid", snap.StreamSid, "language", snap.Language)
	s.appendTranscript(internal_calllog.EntryAssistant, greeting, internal_calllog.SourceSynthesis)
	s.startTurn(ctx, greeting, playGreeting)
}

func (s *CallSession) sayGoodbye(ctx context.Context, reason string) {
	s.speakFinal(ctx, phrase(goodbyePhrases, s.Language()), reason)
}

// speakFinal plays one last utterance and then terminates with reason. The
// ending timer guards against a wedged synthesis holding the call open.
func (s *CallSession) speakFinal(ctx context.Context, text, reason string) {
	if s.currentState() == StateEnding {
		return
	}
	s.pendingEndReason = reason
	stopTimer(&s.endingTimer)
	s.endingTimer = time.NewTimer(goodbyePlayGuard)

	s.appendTranscript(internal_calllog.EntryAssistant, text, internal_calllog.SourceSynthesis)
	s.startTurn(ctx, text, playGoodbye)
}

func (s *CallSession) armTurnTimer() {
	stopTimer(&s.turnTimer)
	s.turnTimer = time.NewTimer(listeningIdleTimeout)
}

func (s *CallSession) appendTranscript(role, text, source string) {
	if s.callLogger == nil {
		return
	}
	s.callLogger.Append(internal_calllog.TranscriptEntry{
		Role:      role,
		Text:      text,
		Language:  s.Language(),
		Timestamp: time.Now(),
		Source:    source,
	})
}

// ============================================================================
// Scripted phrases
// ============================================================================

var goodbyePhrases = map[string]string{
	"hi": "ठीक है, अपना समय देने के लिए धन्यवाद। आपका दिन शुभ हो!",
	"en": "Alright, thank you for your time. Have a great day!",
	"bn": "ঠিক আছে, আপনার সময়ের জন্য ধন্যবাদ। আপনার দিন শুভ হোক!",
	"te": "సరే, మీ సమయానికి ధన్యవాదాలు. మీ రోజు శుభంగా గడవాలి!",
	"ta": "சரி, உங்கள் நேரத்திற்கு நன்றி. உங்கள் நாள் இனிதாக அமையட்டும்!",
	"mr": "ठीक आहे, आपल्या वेळेबद्दल धन्यवाद. आपला दिवस चांगला जावो!",
	"gu": "ઠીક છે, તમારા સમય બદલ આભાર. તમારો દિવસ શુભ રહે!",
	"kn": "ಸರಿ, ನಿಮ್ಮ ಸಮಯಕ್ಕೆ ಧನ್ಯವಾದಗಳು. ನಿಮ್ಮ ದಿನ ಶುಭವಾಗಲಿ!",
	"ml": "ശരി, നിങ്ങളുടെ സമയത്തിന് നന്ദി. നല്ല ദിവസം ആശംസിക്കുന്നു!",
	"pa": "ਠੀਕ ਹੈ, ਤੁਹਾਡੇ ਸਮੇਂ ਲਈ ਧੰਨਵਾਦ। ਤੁਹਾਡਾ ਦਿਨ ਵਧੀਆ ਰਹੇ!",
	"or": "ଠିକ ଅଛି, ଆପଣଙ୍କ ସମୟ ପାଇଁ ଧନ୍ୟବାଦ। ଆପଣଙ୍କ ଦିନ ଶୁଭ ହେଉ!",
	"as": "ঠিক আছে, আপোনাৰ সময়ৰ বাবে ধন্যবাদ। আপোনাৰ দিনটো শুভ হওক!",
	"ur": "ٹھیک ہے، آپ کے وقت کا شکریہ۔ آپ کا دن اچھا گزرے!",
}

var stillTherePhrases = map[string]string{
	"hi": "क्या आप वहाँ हैं?",
	"en": "Are you still there?",
	"bn": "আপনি কি শুনছেন?",
	"te": "మీరు వింటున్నారా?",
	"ta": "நீங்கள் கேட்கிறீர்களா?",
	"mr": "तुम्ही ऐकत आहात का?",
	"gu": "તમે સાંભળો છો?",
	"kn": "ನೀವು ಕೇಳುತ್ತಿದ್ದೀರಾ?",
	"ml": "നിങ്ങൾ കേൾക്കുന്നുണ്ടോ?",
	"pa": "ਕੀ ਤੁਸੀਂ ਸੁਣ ਰਹੇ ਹੋ?",
	"or": "ଆପଣ ଶୁଣୁଛନ୍ତି କି?",
	"as": "আপুনি শুনি আছে নেকি?",
	"ur": "کیا آپ سن رہے ہیں؟",
}

var degradedPhrases = map[string]string{
	"hi": "माफ़ कीजिए, मुझे आपकी आवाज़ सुनने में दिक्कत हो रही है। कृपया लाइन पर बने रहें।",
	"en": "Sorry, I'm having trouble hearing you. Please stay on the line.",
}

func phrase(phrases map[string]string, language string) string {
	if p, ok := phrases[language]; ok {
		return p
	}
	return phrases["hi"]
}
