// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_calllog

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

const (
	flushBatchSize = 5
	flushInterval  = 3 * time.Second
)

// CallLogger accumulates transcript entries for one call and persists them in
// batches, so a call with rapid short turns does not issue a write per
// utterance. A batch flushes when it reaches flushBatchSize entries or when
// the interval timer fires, whichever comes first. Every flush writes the
// full rendered transcript so far; a crash between flushes loses at most one
// batch, never the whole conversation.
type CallLogger struct {
	logger commons.Logger
	store  Store

	mu        sync.Mutex
	logID     string
	startedAt time.Time
	entries   []TranscriptEntry
	dirty     int
	finalized bool

	kick chan struct{}
	stop chan struct{}
}

func NewCallLogger(logger commons.Logger, store Store) *CallLogger {
	return &CallLogger{
		logger: logger,
		store:  store,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Open inserts the initial call log row and starts the flush loop. The
// returned logId is the handle every later write keys on.
func (cl *CallLogger) Open(ctx context.Context, meta *CallLog) (string, error) {
	id, err := cl.store.Insert(ctx, meta)
	if err != nil {
		return "", err
	}

	cl.mu.Lock()
	cl.logID = id
	cl.startedAt = meta.StartedAt
	cl.mu.Unlock()

	utils.Go(ctx, func() { cl.run(ctx) })
	return id, nil
}

func (cl *CallLogger) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.flush(ctx)
		case <-cl.kick:
			cl.flush(ctx)
		}
	}
}

// Append records one utterance. Entries arriving after Finalize are dropped;
// the terminal document has already been written at that point.
func (cl *CallLogger) Append(entry TranscriptEntry) {
	cl.mu.Lock()
	if cl.finalized {
		cl.mu.Unlock()
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	cl.entries = append(cl.entries, entry)
	cl.dirty++
	ready := cl.dirty >= flushBatchSize
	cl.mu.Unlock()

	if ready {
		select {
		case cl.kick <- struct{}{}:
		default:
		}
	}
}

func (cl *CallLogger) flush(ctx context.Context) {
	cl.mu.Lock()
	if cl.finalized || cl.logID == "" || cl.dirty == 0 {
		cl.mu.Unlock()
		return
	}
	logID := cl.logID
	transcript := RenderTranscript(cl.entries)
	cl.dirty = 0
	cl.mu.Unlock()

	if err := cl.store.Update(ctx, logID, map[string]interface{}{"transcript": transcript}); err != nil {
		cl.logger.Warnw("transcript flush failed", "logId", logID, "error", err)
		// Entries are retained, so marking dirty lets the next tick retry.
		cl.mu.Lock()
		if !cl.finalized && cl.dirty == 0 {
			cl.dirty = 1
		}
		cl.mu.Unlock()
	}
}

// Finalize stops the flush loop and writes the terminal document. Calling it
// again is a no-op, so racing stop paths persist a single consistent state.
func (cl *CallLogger) Finalize(ctx context.Context, lead LeadStatus, language string) error {
	cl.mu.Lock()
	if cl.finalized {
		cl.mu.Unlock()
		return nil
	}
	cl.finalized = true
	logID := cl.logID
	startedAt := cl.startedAt
	transcript := RenderTranscript(cl.entries)
	cl.mu.Unlock()

	close(cl.stop)

	if logID == "" {
		return nil
	}

	endedAt := time.Now()
	duration := int64(endedAt.Sub(startedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	return cl.store.Finalize(ctx, logID, FinalDoc{
		Transcript:      transcript,
		LeadStatus:      lead,
		Language:        language,
		EndedAt:         endedAt,
		DurationSeconds: duration,
	})
}

// LogID returns the persisted handle, empty until Open succeeds.
func (cl *CallLogger) LogID() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.logID
}

// Entries returns a copy of everything appended so far.
func (cl *CallLogger) Entries() []TranscriptEntry {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]TranscriptEntry, len(cl.entries))
	copy(out, cl.entries)
	return out
}
