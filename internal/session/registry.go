// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_session

import (
	"sync"
)

// Registry tracks live sessions by streamSid. The admin API and the external
// disconnect notifier resolve calls through it; sessions register themselves
// once the stream identity is known and deregister on destroy.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*CallSession),
	}
}

func (r *Registry) Add(streamSid string, s *CallSession) {
	if streamSid == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[streamSid] = s
}

func (r *Registry) Remove(streamSid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, streamSid)
}

func (r *Registry) Get(streamSid string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[streamSid]
	return s, ok
}

func (r *Registry) List() []*CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Terminate ends the session registered under streamSid. Reports whether a
// live session was found.
func (r *Registry) Terminate(streamSid, reason string) bool {
	s, ok := r.Get(streamSid)
	if !ok {
		return false
	}
	s.Terminate(reason)
	return true
}

// TerminateAll asks every live session to end. Used on process shutdown.
func (r *Registry) TerminateAll(reason string) {
	for _, s := range r.List() {
		s.Terminate(reason)
	}
}
