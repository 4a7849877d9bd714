// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_calllog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/connectors"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	logger := newTestLogger(t)
	cfg := &config.AppConfig{
		DatabaseConfig: config.DatabaseConfig{
			Driver:             "sqlite",
			DSN:                filepath.Join(t.TempDir(), "calllog_test.db"),
			MaxOpenConnections: 1,
		},
	}
	conn, err := connectors.NewDatabaseConnector(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	store := NewStore(conn, logger)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestInsertAssignsDefaults(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, &CallLog{
		StreamSid:    "MZstore1",
		CallSid:      "CAstore1",
		CallerNumber: "+919876543210",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetByStreamSid(ctx, "MZstore1")
	require.NoError(t, err)
	assert.Equal(t, id, got.LogID)
	assert.Equal(t, string(LeadNotConnected), got.LeadStatus)
	assert.True(t, got.IsActive)
	assert.False(t, got.StartedAt.IsZero())
	assert.False(t, got.CreatedDate.IsZero())
}

func TestInsertGeneratesDistinctIDs(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	first, err := store.Insert(ctx, &CallLog{StreamSid: "MZa"})
	require.NoError(t, err)
	second, err := store.Insert(ctx, &CallLog{StreamSid: "MZb"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestUpdatePatchesColumns(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, &CallLog{StreamSid: "MZpatch"})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, id, map[string]interface{}{
		"transcript":  "[2025-03-14T09:00:00Z] User (en): hello",
		"caller_name": "Ravi",
	}))

	got, err := store.GetByStreamSid(ctx, "MZpatch")
	require.NoError(t, err)
	assert.Contains(t, got.Transcript, "hello")
	assert.Equal(t, "Ravi", got.CallerName)
	assert.False(t, got.UpdatedDate.IsZero())
}

func TestUpdateUnknownLogErrors(t *testing.T) {
	store := newSQLiteStore(t)

	err := store.Update(context.Background(), "no-such-log", map[string]interface{}{"transcript": "x"})
	assert.Error(t, err)
}

func TestUpdateEmptyPatchIsNoop(t *testing.T) {
	store := newSQLiteStore(t)

	assert.NoError(t, store.Update(context.Background(), "no-such-log", map[string]interface{}{}))
}

func TestUpdateFieldHonorsAllowlist(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, &CallLog{StreamSid: "MZfield"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateField(ctx, id, "lead_status", string(LeadHotFollowup)))
	require.NoError(t, store.UpdateField(ctx, id, "language", "ta"))
	require.NoError(t, store.UpdateField(ctx, id, "caller_name", "Meena"))

	got, err := store.GetByStreamSid(ctx, "MZfield")
	require.NoError(t, err)
	assert.Equal(t, string(LeadHotFollowup), got.LeadStatus)
	assert.Equal(t, "ta", got.Language)
	assert.Equal(t, "Meena", got.CallerName)

	assert.Error(t, store.UpdateField(ctx, id, "transcript", "overwritten"))
	assert.Error(t, store.UpdateField(ctx, id, "is_active", "false"))
	assert.Error(t, store.UpdateField(ctx, id, "lead_status; drop table call_logs", "x"))
}

func TestFinalizeClosesOutRow(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, &CallLog{StreamSid: "MZfinal"})
	require.NoError(t, err)

	endedAt := time.Now()
	require.NoError(t, store.Finalize(ctx, id, FinalDoc{
		Transcript:      "[2025-03-14T09:00:00Z] Agent (en): goodbye",
		LeadStatus:      LeadEnrolled,
		Language:        "en",
		EndedAt:         endedAt,
		DurationSeconds: 42,
	}))

	got, err := store.GetByStreamSid(ctx, "MZfinal")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, string(LeadEnrolled), got.LeadStatus)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, int64(42), got.DurationSeconds)
	assert.Contains(t, got.Transcript, "goodbye")
	assert.False(t, got.EndedAt.IsZero())
}

func TestFinalizeUnknownLogErrors(t *testing.T) {
	store := newSQLiteStore(t)

	err := store.Finalize(context.Background(), "no-such-log", FinalDoc{LeadStatus: LeadMaybe})
	assert.Error(t, err)
}

func TestGetByStreamSidPicksNewest(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	older, err := store.Insert(ctx, &CallLog{StreamSid: "MZretry", StartedAt: base, CreatedDate: base})
	require.NoError(t, err)
	newer, err := store.Insert(ctx, &CallLog{StreamSid: "MZretry", StartedAt: base.Add(time.Hour), CreatedDate: base.Add(time.Hour)})
	require.NoError(t, err)
	require.NotEqual(t, older, newer)

	got, err := store.GetByStreamSid(ctx, "MZretry")
	require.NoError(t, err)
	assert.Equal(t, newer, got.LogID)
}

func TestGetByStreamSidMissing(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.GetByStreamSid(context.Background(), "MZnowhere")
	assert.Error(t, err)
}

func TestRecentNewestFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, &CallLog{
			StreamSid:   "MZrecent" + string(rune('a'+i)),
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			CreatedDate: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	logs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	if assert.Len(t, logs, 2) {
		assert.Equal(t, "MZrecentc", logs[0].StreamSid)
		assert.Equal(t, "MZrecentb", logs[1].StreamSid)
	}

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
