// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_session

import (
	internal_agent_openai "github.com/rapidaai/voice-gateway/internal/agent/openai"
	internal_pacer "github.com/rapidaai/voice-gateway/internal/pacer"
)

// State is where the session sits in the turn cycle.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// playPurpose distinguishes what an utterance was for, which decides where
// the session goes once it finishes playing.
type playPurpose int

const (
	playGreeting playPurpose = iota
	playReply
	playNotice
	playGoodbye
)

// playbackDone is posted by the playback goroutine when synthesis plus pacing
// for one utterance ends, however it ends.
type playbackDone struct {
	turnID  uint64
	purpose playPurpose
	result  internal_pacer.PlayResult
	failed  bool
}

// llmReply is posted when a turn's completion (and intent check) resolves.
type llmReply struct {
	turnID   uint64
	userText string
	text     string
	intent   internal_agent_openai.Intent
	err      error
}
