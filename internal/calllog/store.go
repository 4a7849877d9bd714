// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/connectors"
)

// FinalDoc carries everything written when a call log is closed out.
type FinalDoc struct {
	Transcript      string
	LeadStatus      LeadStatus
	Language        string
	EndedAt         time.Time
	DurationSeconds int64
}

// Store provides operations to persist and retrieve call logs.
//
// A row is inserted the moment a stream starts and finalized when the session
// ends. Finalize may be reached twice when PBX stop and WS close race; it
// writes the same terminal state either way, so the persisted outcome does
// not depend on which path won.
type Store interface {
	// Insert stores an initial call log and returns its generated logId.
	Insert(ctx context.Context, cl *CallLog) (string, error)

	// Update patches arbitrary columns on an existing log. Used by the
	// batch flusher for intermediate transcript snapshots.
	Update(ctx context.Context, logID string, patch map[string]interface{}) error

	// UpdateField sets a single allowlisted column.
	UpdateField(ctx context.Context, logID, field, value string) error

	// Finalize writes the terminal document and marks the log inactive.
	Finalize(ctx context.Context, logID string, final FinalDoc) error

	// GetByStreamSid returns the log for a stream, any state.
	GetByStreamSid(ctx context.Context, streamSid string) (*CallLog, error)

	// Recent returns up to limit logs, newest first.
	Recent(ctx context.Context, limit int) ([]CallLog, error)

	// Migrate creates or updates the backing table.
	Migrate(ctx context.Context) error
}

type databaseStore struct {
	database connectors.DatabaseConnector
	logger   commons.Logger
}

// NewStore creates a call log store backed by the configured database.
func NewStore(database connectors.DatabaseConnector, logger commons.Logger) Store {
	return &databaseStore{
		database: database,
		logger:   logger,
	}
}

func (s *databaseStore) Insert(ctx context.Context, cl *CallLog) (string, error) {
	db := s.database.DB(ctx)
	if err := db.Create(cl).Error; err != nil {
		return "", fmt.Errorf("failed to insert call log for stream %s: %w", cl.StreamSid, err)
	}

	s.logger.Infof("inserted call log: logId=%s, streamSid=%s, callSid=%s, direction=%s",
		cl.LogID, cl.StreamSid, cl.CallSid, cl.Direction)

	return cl.LogID, nil
}

func (s *databaseStore) Update(ctx context.Context, logID string, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	patch["updated_date"] = time.Now()

	db := s.database.DB(ctx)
	result := db.Model(&CallLog{}).
		Where("log_id = ?", logID).
		Updates(patch)

	if result.Error != nil {
		return fmt.Errorf("failed to update call log %s: %w", logID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call log %s not found", logID)
	}
	return nil
}

// UpdateField sets a single column on an existing call log row.
func (s *databaseStore) UpdateField(ctx context.Context, logID, field, value string) error {
	// Allowlist of updatable fields to prevent SQL injection
	allowed := map[string]bool{
		"lead_status": true,
		"language":    true,
		"caller_name": true,
	}
	if !allowed[field] {
		return fmt.Errorf("field %q is not updatable on call log", field)
	}

	db := s.database.DB(ctx)
	result := db.Model(&CallLog{}).
		Where("log_id = ?", logID).
		Update(field, value)

	if result.Error != nil {
		return fmt.Errorf("failed to update field %s on call log %s: %w", field, logID, result.Error)
	}

	s.logger.Debugf("updated call log field: logId=%s, %s=%s", logID, field, value)
	return nil
}

func (s *databaseStore) Finalize(ctx context.Context, logID string, final FinalDoc) error {
	db := s.database.DB(ctx)
	result := db.Model(&CallLog{}).
		Where("log_id = ?", logID).
		Updates(map[string]interface{}{
			"transcript":       final.Transcript,
			"lead_status":      string(final.LeadStatus),
			"language":         final.Language,
			"ended_at":         final.EndedAt,
			"duration_seconds": final.DurationSeconds,
			"is_active":        false,
			"updated_date":     time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to finalize call log %s: %w", logID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call log %s not found", logID)
	}

	s.logger.Infof("finalized call log: logId=%s, leadStatus=%s, duration=%ds",
		logID, final.LeadStatus, final.DurationSeconds)

	return nil
}

func (s *databaseStore) GetByStreamSid(ctx context.Context, streamSid string) (*CallLog, error) {
	db := s.database.DB(ctx)
	var cl CallLog
	if err := db.Where("stream_sid = ?", streamSid).Order("created_date DESC").First(&cl).Error; err != nil {
		return nil, fmt.Errorf("call log not found for stream %s: %w", streamSid, err)
	}
	return &cl, nil
}

func (s *databaseStore) Recent(ctx context.Context, limit int) ([]CallLog, error) {
	if limit <= 0 {
		limit = 50
	}
	db := s.database.DB(ctx)
	var logs []CallLog
	if err := db.Order("created_date DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	return logs, nil
}

func (s *databaseStore) Migrate(ctx context.Context) error {
	db := s.database.DB(ctx)
	if err := db.AutoMigrate(&CallLog{}); err != nil {
		return fmt.Errorf("failed to migrate call logs: %w", err)
	}
	return nil
}
