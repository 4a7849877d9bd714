// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_calllog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLeadStatus(t *testing.T) {
	cases := []struct {
		in   string
		want LeadStatus
	}{
		{"enrolled", LeadEnrolled},
		{"ENROLLED", LeadEnrolled},
		{"  vvi  ", LeadVVI},
		{"Hot_Followup", LeadHotFollowup},
		{"junk_lead", LeadJunk},
		{"not_connected", LeadNotConnected},
		{"wrong_number", LeadWrongNumber},
		{"schedule", LeadSchedule},
		{"maybe", LeadMaybe},
		// Anything outside the closed set collapses to maybe.
		{"", LeadMaybe},
		{"interested", LeadMaybe},
		{"not connected", LeadMaybe},
		{"enrolled.", LeadMaybe},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, ParseLeadStatus(tc.in), "input %q", tc.in)
	}
}

func TestRenderEntry(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	user := TranscriptEntry{
		Role:      EntryUser,
		Text:      "I want a two bedroom flat",
		Language:  "en",
		Timestamp: at,
		Source:    SourceTranscription,
	}
	assert.Equal(t, "[2025-03-14T09:26:53Z] User (en): I want a two bedroom flat", user.Render())

	agent := TranscriptEntry{
		Role:      EntryAssistant,
		Text:      "जरूर, मैं बताती हूँ",
		Language:  "hi",
		Timestamp: at.Add(2 * time.Second),
		Source:    SourceSynthesis,
	}
	assert.Equal(t, "[2025-03-14T09:26:55Z] Agent (hi): जरूर, मैं बताती हूँ", agent.Render())
}

func TestRenderEntryNormalizesToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	e := TranscriptEntry{
		Role:      EntryUser,
		Text:      "hello",
		Language:  "en",
		Timestamp: time.Date(2025, 3, 14, 15, 0, 0, 0, ist),
	}
	assert.True(t, strings.HasPrefix(e.Render(), "[2025-03-14T09:30:00Z]"), e.Render())
}

func TestRenderTranscriptSortsByTimestamp(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	entries := []TranscriptEntry{
		{Role: EntryUser, Text: "second", Language: "en", Timestamp: base.Add(2 * time.Second)},
		{Role: EntryAssistant, Text: "first", Language: "en", Timestamp: base},
		{Role: EntryUser, Text: "third", Language: "en", Timestamp: base.Add(5 * time.Second)},
	}

	got := strings.Split(RenderTranscript(entries), "\n")
	if assert.Len(t, got, 3) {
		assert.Contains(t, got[0], "first")
		assert.Contains(t, got[1], "second")
		assert.Contains(t, got[2], "third")
	}
}

func TestRenderTranscriptStableOnTies(t *testing.T) {
	// The synthesis and transcription paths can stamp the same instant;
	// insertion order must hold so the exchange still reads correctly.
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	entries := []TranscriptEntry{
		{Role: EntryUser, Text: "question", Language: "en", Timestamp: at},
		{Role: EntryAssistant, Text: "answer", Language: "en", Timestamp: at},
	}

	got := strings.Split(RenderTranscript(entries), "\n")
	if assert.Len(t, got, 2) {
		assert.Contains(t, got[0], "question")
		assert.Contains(t, got[1], "answer")
	}
}

func TestRenderTranscriptEmpty(t *testing.T) {
	assert.Equal(t, "", RenderTranscript(nil))
}
