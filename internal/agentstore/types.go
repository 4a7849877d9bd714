// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_agentstore

import (
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentDefinition is the stored persona an account's calls run with. The
// first message is a template so greetings can address the caller by name or
// echo campaign parameters passed on the side channel.
type AgentDefinition struct {
	Id           uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	AgentID      string    `json:"agentId" gorm:"column:agent_id;type:varchar(36);not null;uniqueIndex"`
	AccountSid   string    `json:"accountSid" gorm:"column:account_sid;type:varchar(100);not null;default:'';index"`
	Name         string    `json:"name" gorm:"column:name;type:varchar(200);not null;default:''"`
	SystemPrompt string    `json:"systemPrompt" gorm:"column:system_prompt;type:text"`
	FirstMessage string    `json:"firstMessage" gorm:"column:first_message;type:text"`
	Language     string    `json:"language" gorm:"column:language;type:varchar(10);not null;default:hi"`
	Voice        string    `json:"voice" gorm:"column:voice;type:varchar(50);not null;default:''"`
	IsActive     bool      `json:"isActive" gorm:"column:is_active;not null;default:true"`
	CreatedDate  time.Time `json:"createdDate" gorm:"type:timestamp;not null;<-:create"`
	UpdatedDate  time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
}

func (AgentDefinition) TableName() string {
	return "agent_definitions"
}

func (ad *AgentDefinition) BeforeCreate(tx *gorm.DB) (err error) {
	if ad.AgentID == "" {
		ad.AgentID = uuid.New().String()
	}
	if ad.CreatedDate.IsZero() {
		ad.CreatedDate = time.Now()
	}
	return nil
}

// Agent is the resolved runtime view a session works with.
type Agent struct {
	Name         string
	SystemPrompt string
	FirstMessage string
	Language     string
	Voice        string
	Active       bool
}

// GreetingData is what a first-message template may reference.
type GreetingData struct {
	Name   string
	Caller string
	Called string
	Params map[string]interface{}
}

// RenderGreeting renders the first-message template with the caller's
// context. A template that fails to parse or execute falls back to the raw
// text; a broken greeting must never block the call from starting.
func (a *Agent) RenderGreeting(data GreetingData) string {
	tpl, err := pongo2.FromString(a.FirstMessage)
	if err != nil {
		return a.FirstMessage
	}
	out, err := tpl.Execute(pongo2.Context{
		"name":   data.Name,
		"caller": data.Caller,
		"called": data.Called,
		"params": data.Params,
	})
	if err != nil {
		return a.FirstMessage
	}
	if rendered := strings.TrimSpace(out); rendered != "" {
		return rendered
	}
	return a.FirstMessage
}
