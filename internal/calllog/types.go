// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_calllog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/google/uuid"
)

// LeadStatus is the disposition a call ends with. The set is closed because
// downstream CRM imports key on these exact labels.
type LeadStatus string

const (
	LeadVVI           LeadStatus = "vvi"
	LeadMaybe         LeadStatus = "maybe"
	LeadEnrolled      LeadStatus = "enrolled"
	LeadJunk          LeadStatus = "junk_lead"
	LeadNotRequired   LeadStatus = "not_required"
	LeadEnrolledOther LeadStatus = "enrolled_other"
	LeadDecline       LeadStatus = "decline"
	LeadNotEligible   LeadStatus = "not_eligible"
	LeadWrongNumber   LeadStatus = "wrong_number"
	LeadHotFollowup   LeadStatus = "hot_followup"
	LeadColdFollowup  LeadStatus = "cold_followup"
	LeadSchedule      LeadStatus = "schedule"
	LeadNotConnected  LeadStatus = "not_connected"
)

var leadStatuses = map[LeadStatus]bool{
	LeadVVI:           true,
	LeadMaybe:         true,
	LeadEnrolled:      true,
	LeadJunk:          true,
	LeadNotRequired:   true,
	LeadEnrolledOther: true,
	LeadDecline:       true,
	LeadNotEligible:   true,
	LeadWrongNumber:   true,
	LeadHotFollowup:   true,
	LeadColdFollowup:  true,
	LeadSchedule:      true,
	LeadNotConnected:  true,
}

// ParseLeadStatus normalizes free-form classifier output into the closed
// enumeration. Anything unrecognized collapses to "maybe" so a sloppy model
// answer never produces an unimportable disposition.
func ParseLeadStatus(s string) LeadStatus {
	status := LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	if leadStatuses[status] {
		return status
	}
	return LeadMaybe
}

const (
	EntryUser      = "user"
	EntryAssistant = "assistant"

	SourceTranscription = "stt"
	SourceSynthesis     = "tts"
)

// TranscriptEntry is one utterance of the conversation. Entries are produced
// by both the transcription and synthesis paths and merged by timestamp, so
// interleaved user/agent speech reads in wall-clock order.
type TranscriptEntry struct {
	Role      string
	Text      string
	Language  string
	Timestamp time.Time
	Source    string
}

func (e TranscriptEntry) speaker() string {
	if e.Role == EntryAssistant {
		return "Agent"
	}
	return "User"
}

// Render formats the entry as a single transcript line.
func (e TranscriptEntry) Render() string {
	return fmt.Sprintf("[%s] %s (%s): %s",
		e.Timestamp.UTC().Format(time.RFC3339), e.speaker(), e.Language, e.Text)
}

// RenderTranscript renders entries sorted by timestamp, one line each.
func RenderTranscript(entries []TranscriptEntry) string {
	sorted := make([]TranscriptEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	lines := make([]string, 0, len(sorted))
	for _, e := range sorted {
		lines = append(lines, e.Render())
	}
	return strings.Join(lines, "\n")
}

// CallLog is the durable record of one call. Inserted as soon as the stream
// starts so operators can see in-flight calls, then finalized when the
// session ends. The row is never deleted during the call lifecycle.
type CallLog struct {
	Id              uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	LogID           string    `json:"logId" gorm:"column:log_id;type:varchar(36);not null;uniqueIndex"`
	StreamSid       string    `json:"streamSid" gorm:"column:stream_sid;type:varchar(100);not null;index"`
	CallSid         string    `json:"callSid" gorm:"column:call_sid;type:varchar(100);not null;default:''"`
	AccountSid      string    `json:"accountSid" gorm:"column:account_sid;type:varchar(100);not null;default:''"`
	Direction       string    `json:"direction" gorm:"column:direction;type:varchar(20);not null;default:''"`
	CallerNumber    string    `json:"callerNumber" gorm:"column:caller_number;type:varchar(50);not null;default:''"`
	CalledNumber    string    `json:"calledNumber" gorm:"column:called_number;type:varchar(50);not null;default:''"`
	CallerName      string    `json:"callerName" gorm:"column:caller_name;type:varchar(200);not null;default:''"`
	Language        string    `json:"language" gorm:"column:language;type:varchar(10);not null;default:''"`
	LeadStatus      string    `json:"leadStatus" gorm:"column:lead_status;type:varchar(30);not null;default:not_connected"`
	Transcript      string    `json:"transcript" gorm:"column:transcript;type:text"`
	IsActive        bool      `json:"isActive" gorm:"column:is_active;not null;default:true"`
	DurationSeconds int64     `json:"durationSeconds" gorm:"column:duration_seconds;not null;default:0"`
	StartedAt       time.Time `json:"startedAt" gorm:"column:started_at;type:timestamp;not null"`
	EndedAt         time.Time `json:"endedAt" gorm:"column:ended_at;type:timestamp;default:null"`
	CreatedDate     time.Time `json:"createdDate" gorm:"type:timestamp;not null;<-:create"`
	UpdatedDate     time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
}

func (CallLog) TableName() string {
	return "call_logs"
}

func (cl *CallLog) BeforeCreate(tx *gorm.DB) (err error) {
	if cl.LogID == "" {
		cl.LogID = uuid.New().String()
	}
	if cl.LeadStatus == "" {
		cl.LeadStatus = string(LeadNotConnected)
	}
	if cl.StartedAt.IsZero() {
		cl.StartedAt = time.Now()
	}
	if cl.CreatedDate.IsZero() {
		cl.CreatedDate = time.Now()
	}
	cl.IsActive = true
	return nil
}
