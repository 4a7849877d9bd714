// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/pkoukk/tiktoken-go"

	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// Intent is the outcome of the disconnection classifier.
type Intent string

const (
	IntentContinue   Intent = "CONTINUE"
	IntentDisconnect Intent = "DISCONNECT"
)

const (
	// maxHistoryMessages bounds what travels with each completion; the
	// session keeps more but six turns of context is enough for a call.
	maxHistoryMessages = 6
	historyTokenBudget = 1200

	classifyTimeout = 2 * time.Second
)

// ============================================================================
// Completer — chat completions for one gateway process
// ============================================================================

// Completer wraps the chat API for reply generation and the two cheap
// classifier calls. One instance is shared by all sessions; the underlying
// HTTP client pools connections.
type Completer struct {
	logger  commons.Logger
	client  oai.Client
	model   string
	temp    float64
	maxTok  int
	timeout time.Duration
	encoder *tiktoken.Tiktoken
}

func NewCompleter(logger commons.Logger, apiKey string, cfg config.LLMConfig) *Completer {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout + time.Second}),
	)

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warnw("Token encoder unavailable, falling back to length estimate", "error", err.Error())
		encoder = nil
	}

	return &Completer{
		logger:  logger,
		client:  client,
		model:   cfg.Model,
		temp:    cfg.Temperature,
		maxTok:  cfg.MaxTokens,
		timeout: timeout,
		encoder: encoder,
	}
}

// Complete generates the assistant reply for one turn. Empty string with nil
// error means the model had nothing to say; the caller skips the turn either
// way, so errors are informational.
func (c *Completer) Complete(ctx context.Context, systemPrompt string, history []Message, userMessage, language, userName string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+3)
	messages = append(messages, oai.SystemMessage(systemPrompt))
	if strings.TrimSpace(userName) != "" {
		messages = append(messages, oai.SystemMessage(fmt.Sprintf("The caller's name is %s.", strings.TrimSpace(userName))))
	}
	for _, m := range c.trimHistory(history) {
		switch m.Role {
		case "assistant":
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}
	messages = append(messages, oai.UserMessage(userMessage))

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            messages,
		Temperature:         param.NewOpt(c.temp),
		MaxCompletionTokens: param.NewOpt(int64(c.maxTok)),
	})
	c.logger.Benchmark("Completer.Complete", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", nil
	}
	return EnsureFollowup(text, language), nil
}

// ClassifyIntent decides whether the caller is trying to end the call. The
// call is ephemeral: it never touches history, and any failure means
// CONTINUE because hanging up on a misread is worse than one extra turn.
func (c *Completer) ClassifyIntent(ctx context.Context, lastAssistant, userMessage string) Intent {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage("You classify whether a caller wants to end a phone call. " +
				"Reply with exactly one word: DISCONNECT if the caller is saying goodbye, asking to stop, or clearly done talking; otherwise CONTINUE."),
			oai.UserMessage(fmt.Sprintf("Assistant said: %q\nCaller replied: %q", lastAssistant, userMessage)),
		},
		Temperature:         param.NewOpt(0.0),
		MaxCompletionTokens: param.NewOpt(int64(4)),
	})
	if err != nil || len(resp.Choices) == 0 {
		return IntentContinue
	}

	if strings.Contains(strings.ToUpper(resp.Choices[0].Message.Content), "DISCONNECT") {
		return IntentDisconnect
	}
	return IntentContinue
}

// leadStatusPrompt enumerates the closed lead vocabulary. The session clamps
// whatever comes back, so a drifting model answer degrades to "maybe".
const leadStatusPrompt = "You label the outcome of a sales call from its transcript. " +
	"Reply with exactly one label from this list and nothing else:\n" +
	"vvi (very interested), maybe (unclear or neutral), enrolled (already enrolled here), " +
	"junk_lead, not_required, enrolled_other (enrolled with a competitor), decline, " +
	"not_eligible, wrong_number, hot_followup (asked to be called back soon), " +
	"cold_followup (vague callback), schedule (fixed a specific time), not_connected."

// ClassifyLead labels the call outcome from the rendered transcript. Bounded
// tighter than completions so finalization never stalls on it.
func (c *Completer) ClassifyLead(ctx context.Context, transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(leadStatusPrompt),
			oai.UserMessage(transcript),
		},
		Temperature:         param.NewOpt(0.0),
		MaxCompletionTokens: param.NewOpt(int64(8)),
	})
	if err != nil {
		return "", fmt.Errorf("lead classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

// trimHistory keeps the newest messages within count and token budgets while
// preserving user-first alternation.
func (c *Completer) trimHistory(history []Message) []Message {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for len(history) > 0 && history[0].Role != "user" {
		history = history[1:]
	}
	for len(history) > 2 && c.countTokens(history) > historyTokenBudget {
		history = history[2:]
	}
	return history
}

func (c *Completer) countTokens(history []Message) int {
	total := 0
	for _, m := range history {
		if c.encoder != nil {
			total += len(c.encoder.Encode(m.Content, nil, nil)) + 4
		} else {
			total += len(m.Content)/4 + 4
		}
	}
	return total
}
