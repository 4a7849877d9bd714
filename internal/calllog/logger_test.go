// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_calllog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voice-gateway/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-calllog"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return logger
}

// recordingStore captures every store call so tests can assert on flush and
// finalize traffic without a database.
type recordingStore struct {
	mu        sync.Mutex
	inserts   []*CallLog
	updates   []map[string]interface{}
	finals    []FinalDoc
	insertErr error
	updateErr error
}

func (r *recordingStore) Insert(ctx context.Context, cl *CallLog) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return "", r.insertErr
	}
	r.inserts = append(r.inserts, cl)
	return fmt.Sprintf("log-%d", len(r.inserts)), nil
}

func (r *recordingStore) Update(ctx context.Context, logID string, patch map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, patch)
	return nil
}

func (r *recordingStore) UpdateField(ctx context.Context, logID, field, value string) error {
	return nil
}

func (r *recordingStore) Finalize(ctx context.Context, logID string, final FinalDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finals = append(r.finals, final)
	return nil
}

func (r *recordingStore) GetByStreamSid(ctx context.Context, streamSid string) (*CallLog, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingStore) Recent(ctx context.Context, limit int) ([]CallLog, error) {
	return nil, nil
}

func (r *recordingStore) Migrate(ctx context.Context) error {
	return nil
}

func (r *recordingStore) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recordingStore) lastTranscript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return ""
	}
	s, _ := r.updates[len(r.updates)-1]["transcript"].(string)
	return s
}

func (r *recordingStore) finalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finals)
}

func (r *recordingStore) setUpdateErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateErr = err
}

func waitForCond(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func userEntry(text string) TranscriptEntry {
	return TranscriptEntry{Role: EntryUser, Text: text, Language: "en", Source: SourceTranscription}
}

func openTestLogger(t *testing.T) (*CallLogger, *recordingStore) {
	t.Helper()
	store := &recordingStore{}
	cl := NewCallLogger(newTestLogger(t), store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	id, err := cl.Open(ctx, &CallLog{StreamSid: "MZ1", StartedAt: time.Now()})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return cl, store
}

func TestOpenReturnsHandle(t *testing.T) {
	cl, store := openTestLogger(t)

	assert.Equal(t, "log-1", cl.LogID())
	store.mu.Lock()
	defer store.mu.Unlock()
	if assert.Len(t, store.inserts, 1) {
		assert.Equal(t, "MZ1", store.inserts[0].StreamSid)
	}
}

func TestOpenPropagatesInsertError(t *testing.T) {
	store := &recordingStore{insertErr: errors.New("db down")}
	cl := NewCallLogger(newTestLogger(t), store)

	_, err := cl.Open(context.Background(), &CallLog{StreamSid: "MZ1"})
	assert.Error(t, err)
	assert.Empty(t, cl.LogID())
}

func TestBatchFlushesAtThreshold(t *testing.T) {
	cl, store := openTestLogger(t)

	for i := 1; i <= flushBatchSize; i++ {
		cl.Append(userEntry(fmt.Sprintf("line %d", i)))
	}

	waitForCond(t, 2*time.Second, func() bool { return store.updateCount() >= 1 }, "batch flush")
	transcript := store.lastTranscript()
	for i := 1; i <= flushBatchSize; i++ {
		assert.Contains(t, transcript, fmt.Sprintf("line %d", i))
	}
}

func TestBelowThresholdWaitsForTimer(t *testing.T) {
	cl, store := openTestLogger(t)

	cl.Append(userEntry("only one"))

	// One entry is below the batch size, so nothing flushes immediately;
	// the interval ticker picks it up later.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, store.updateCount())
	assert.Len(t, cl.Entries(), 1)
}

func TestEntriesStampedWhenMissingTimestamp(t *testing.T) {
	cl, _ := openTestLogger(t)

	before := time.Now()
	cl.Append(userEntry("hello"))

	entries := cl.Entries()
	if assert.Len(t, entries, 1) {
		assert.False(t, entries[0].Timestamp.IsZero())
		assert.False(t, entries[0].Timestamp.Before(before))
	}
}

func TestFinalizeWritesTerminalDocOnce(t *testing.T) {
	cl, store := openTestLogger(t)

	cl.Append(userEntry("I want to enroll"))
	cl.Append(TranscriptEntry{Role: EntryAssistant, Text: "Great, let me sign you up", Language: "en", Source: SourceSynthesis})

	require.NoError(t, cl.Finalize(context.Background(), LeadEnrolled, "en"))
	require.NoError(t, cl.Finalize(context.Background(), LeadJunk, "hi"))

	assert.Equal(t, 1, store.finalCount())
	store.mu.Lock()
	final := store.finals[0]
	store.mu.Unlock()

	assert.Equal(t, LeadEnrolled, final.LeadStatus)
	assert.Equal(t, "en", final.Language)
	assert.Contains(t, final.Transcript, "I want to enroll")
	assert.Contains(t, final.Transcript, "Great, let me sign you up")
	assert.GreaterOrEqual(t, final.DurationSeconds, int64(0))
}

func TestAppendAfterFinalizeDropped(t *testing.T) {
	cl, store := openTestLogger(t)

	cl.Append(userEntry("before"))
	require.NoError(t, cl.Finalize(context.Background(), LeadMaybe, "en"))

	cl.Append(userEntry("after"))

	entries := cl.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, "before", entries[0].Text)
	assert.Equal(t, 1, store.finalCount())
}

func TestFinalizeWithoutOpenIsNoop(t *testing.T) {
	store := &recordingStore{}
	cl := NewCallLogger(newTestLogger(t), store)

	assert.NoError(t, cl.Finalize(context.Background(), LeadNotConnected, "hi"))
	assert.Equal(t, 0, store.finalCount())
}

func TestFlushFailureRetainsEntries(t *testing.T) {
	cl, store := openTestLogger(t)
	store.setUpdateErr(errors.New("write failed"))

	for i := 1; i <= flushBatchSize; i++ {
		cl.Append(userEntry(fmt.Sprintf("first %d", i)))
	}

	// A failed flush keeps the entries buffered for the next attempt.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, store.updateCount())
	assert.Len(t, cl.Entries(), flushBatchSize)

	store.setUpdateErr(nil)
	for i := 1; i <= flushBatchSize; i++ {
		cl.Append(userEntry(fmt.Sprintf("second %d", i)))
	}

	sentinel := fmt.Sprintf("second %d", flushBatchSize)
	waitForCond(t, 2*time.Second, func() bool {
		return strings.Contains(store.lastTranscript(), sentinel)
	}, "retried flush")
	assert.Contains(t, store.lastTranscript(), "first 1")
}

func TestTranscriptRendersFullConversationEachFlush(t *testing.T) {
	cl, store := openTestLogger(t)

	for i := 1; i <= flushBatchSize; i++ {
		cl.Append(userEntry(fmt.Sprintf("early %d", i)))
	}
	waitForCond(t, 2*time.Second, func() bool { return store.updateCount() >= 1 }, "first flush")

	for i := 1; i <= flushBatchSize; i++ {
		cl.Append(userEntry(fmt.Sprintf("late %d", i)))
	}
	sentinel := fmt.Sprintf("late %d", flushBatchSize)
	waitForCond(t, 2*time.Second, func() bool {
		return strings.Contains(store.lastTranscript(), sentinel)
	}, "second flush")

	// Later snapshots always carry the whole conversation, not a delta.
	transcript := store.lastTranscript()
	assert.Contains(t, transcript, "early 1")
	assert.Equal(t, flushBatchSize*2, len(strings.Split(transcript, "\n")))
}
