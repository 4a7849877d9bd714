// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_agentstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/connectors"
)

const (
	defaultAgentName    = "assistant"
	defaultSystemPrompt = "You are a helpful voice assistant answering a phone call. " +
		"Keep every reply short, conversational, and in the caller's language."
	defaultFirstMessage = "नमस्ते! मैं आपकी कैसे मदद कर सकती हूँ?"

	// InactiveMessage is spoken before hanging up when the resolved agent is
	// switched off.
	InactiveMessage = "This number is not taking calls right now. Please try again later."
)

// Store resolves the agent persona a call should run with.
type Store interface {
	// Resolve returns the persona for an account. It never fails the call:
	// a missing row or a storage error yields the default persona. A row
	// that exists but is inactive is returned with Active=false so the
	// session can play the refusal flow.
	Resolve(ctx context.Context, accountSid string) *Agent

	// Save stores an agent definition, generating its agentId.
	Save(ctx context.Context, ad *AgentDefinition) (string, error)

	// Migrate creates or updates the backing table.
	Migrate(ctx context.Context) error
}

type databaseStore struct {
	database connectors.DatabaseConnector
	logger   commons.Logger
}

func NewStore(database connectors.DatabaseConnector, logger commons.Logger) Store {
	return &databaseStore{
		database: database,
		logger:   logger,
	}
}

func (s *databaseStore) Resolve(ctx context.Context, accountSid string) *Agent {
	if def := s.lookup(ctx, accountSid); def != nil {
		return toAgent(def)
	}
	// Catch-all persona rows carry an empty account sid.
	if accountSid != "" {
		if def := s.lookup(ctx, ""); def != nil {
			return toAgent(def)
		}
	}
	return DefaultAgent()
}

func (s *databaseStore) lookup(ctx context.Context, accountSid string) *AgentDefinition {
	db := s.database.DB(ctx)
	var def AgentDefinition
	err := db.Where("account_sid = ?", accountSid).
		Order("is_active DESC, created_date DESC").
		First(&def).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warnw("agent lookup failed, call will use default persona",
				"accountSid", accountSid, "error", err)
		}
		return nil
	}
	return &def
}

func (s *databaseStore) Save(ctx context.Context, ad *AgentDefinition) (string, error) {
	db := s.database.DB(ctx)
	if err := db.Create(ad).Error; err != nil {
		return "", fmt.Errorf("failed to save agent definition for account %s: %w", ad.AccountSid, err)
	}

	s.logger.Infof("saved agent definition: agentId=%s, account=%s, name=%s",
		ad.AgentID, ad.AccountSid, ad.Name)

	return ad.AgentID, nil
}

func (s *databaseStore) Migrate(ctx context.Context) error {
	db := s.database.DB(ctx)
	if err := db.AutoMigrate(&AgentDefinition{}); err != nil {
		return fmt.Errorf("failed to migrate agent definitions: %w", err)
	}
	return nil
}

// DefaultAgent is the persona used when no definition matches the account.
func DefaultAgent() *Agent {
	return &Agent{
		Name:         defaultAgentName,
		SystemPrompt: defaultSystemPrompt,
		FirstMessage: defaultFirstMessage,
		Language:     "hi",
		Active:       true,
	}
}

func toAgent(def *AgentDefinition) *Agent {
	agent := &Agent{
		Name:         def.Name,
		SystemPrompt: def.SystemPrompt,
		FirstMessage: def.FirstMessage,
		Language:     def.Language,
		Voice:        def.Voice,
		Active:       def.IsActive,
	}
	if agent.Name == "" {
		agent.Name = defaultAgentName
	}
	if agent.SystemPrompt == "" {
		agent.SystemPrompt = defaultSystemPrompt
	}
	if agent.FirstMessage == "" {
		agent.FirstMessage = defaultFirstMessage
	}
	if agent.Language == "" {
		agent.Language = "hi"
	}
	return agent
}
