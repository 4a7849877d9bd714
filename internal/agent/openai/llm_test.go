// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_openai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/voice-gateway/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-agent"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return logger
}

// bareCompleter skips NewCompleter so no HTTP client or encoder download is
// involved; the nil encoder selects the length-based token estimate.
func bareCompleter(t *testing.T) *Completer {
	t.Helper()
	return &Completer{logger: newTestLogger(t)}
}

func exchange(n int) []Message {
	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: fmt.Sprintf("message %d", i)})
	}
	return msgs
}

func TestTrimHistoryKeepsNewestSix(t *testing.T) {
	c := bareCompleter(t)

	got := c.trimHistory(exchange(10))

	if assert.Len(t, got, maxHistoryMessages) {
		assert.Equal(t, "message 4", got[0].Content)
		assert.Equal(t, "user", got[0].Role)
		assert.Equal(t, "message 9", got[5].Content)
	}
}

func TestTrimHistoryDropsLeadingAssistant(t *testing.T) {
	c := bareCompleter(t)

	// Seven messages: the six-message window starts on an assistant turn,
	// which gets dropped to restore user-first alternation.
	got := c.trimHistory(exchange(7))

	if assert.Len(t, got, 5) {
		assert.Equal(t, "user", got[0].Role)
		assert.Equal(t, "message 2", got[0].Content)
	}
}

func TestTrimHistoryShortHistoryUntouched(t *testing.T) {
	c := bareCompleter(t)
	history := exchange(4)

	got := c.trimHistory(history)

	assert.Equal(t, history, got)
}

func TestTrimHistoryEmpty(t *testing.T) {
	c := bareCompleter(t)

	assert.Empty(t, c.trimHistory(nil))
}

func TestTrimHistoryEnforcesTokenBudget(t *testing.T) {
	c := bareCompleter(t)

	long := strings.Repeat("lorem ipsum dolor sit amet ", 100)
	history := []Message{
		{Role: "user", Content: "old question " + long},
		{Role: "assistant", Content: "old answer " + long},
		{Role: "user", Content: "mid question " + long},
		{Role: "assistant", Content: "mid answer " + long},
		{Role: "user", Content: "new question " + long},
		{Role: "assistant", Content: "new answer " + long},
	}

	got := c.trimHistory(history)

	// Oversized exchanges trim in user+assistant pairs from the oldest end,
	// but the newest pair always survives.
	if assert.Len(t, got, 2) {
		assert.True(t, strings.HasPrefix(got[0].Content, "new question"))
		assert.True(t, strings.HasPrefix(got[1].Content, "new answer"))
	}
}

func TestTrimHistorySmallMessagesWithinBudget(t *testing.T) {
	c := bareCompleter(t)

	got := c.trimHistory(exchange(6))

	assert.Len(t, got, 6)
}

func TestCountTokensFallbackEstimate(t *testing.T) {
	c := bareCompleter(t)

	history := []Message{
		{Role: "user", Content: strings.Repeat("a", 40)},
		{Role: "assistant", Content: strings.Repeat("b", 80)},
	}

	// Without an encoder, each message estimates at len/4 plus a fixed
	// per-message overhead of 4.
	assert.Equal(t, (40/4+4)+(80/4+4), c.countTokens(history))
}

func TestIntentWords(t *testing.T) {
	assert.Equal(t, Intent("CONTINUE"), IntentContinue)
	assert.Equal(t, Intent("DISCONNECT"), IntentDisconnect)
}
