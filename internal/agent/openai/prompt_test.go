// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeSystemPrompt(t *testing.T) {
	got := ComposeSystemPrompt(
		"  You are Asha, a housing assistant.  ",
		"Hello, this is Asha from Acme Housing.",
	)

	assert.True(t, strings.HasPrefix(got, "You are Asha, a housing assistant."))
	assert.Contains(t, got, "\n\nFirstGreeting: Hello, this is Asha from Acme Housing.")
	assert.Contains(t, got, "under 100 tokens")

	// The greeting sits between the persona and the policy so the model can
	// answer questions about facts stated in it.
	greetingAt := strings.Index(got, "FirstGreeting:")
	policyAt := strings.Index(got, "Answer strictly")
	assert.Greater(t, policyAt, greetingAt)
}

func TestComposeSystemPromptWithoutGreeting(t *testing.T) {
	got := ComposeSystemPrompt("You are Asha.", "   ")

	assert.NotContains(t, got, "FirstGreeting:")
	assert.True(t, strings.HasPrefix(got, "You are Asha."))
	assert.Contains(t, got, "Answer strictly")
}

func TestEnsureFollowup(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		language string
		want     string
	}{
		{
			name:     "already a question",
			text:     "Would you like a site visit?",
			language: "en",
			want:     "Would you like a site visit?",
		},
		{
			name:     "fullwidth question mark",
			text:     "और कुछ？",
			language: "hi",
			want:     "और कुछ？",
		},
		{
			name:     "arabic question mark",
			text:     "کچھ اور؟",
			language: "ur",
			want:     "کچھ اور؟",
		},
		{
			name:     "flat english reply gets english followup",
			text:     "The office is open from nine to six.",
			language: "en",
			want:     "The office is open from nine to six. " + followupPhrases["en"],
		},
		{
			name:     "flat hindi reply gets hindi followup",
			text:     "कार्यालय सुबह नौ बजे खुलता है।",
			language: "hi",
			want:     "कार्यालय सुबह नौ बजे खुलता है। " + followupPhrases["hi"],
		},
		{
			name:     "unknown language falls back to hindi",
			text:     "Bien sur.",
			language: "fr",
			want:     "Bien sur. " + followupPhrases["hi"],
		},
		{
			name:     "trailing whitespace before the question mark",
			text:     "Shall we proceed?   ",
			language: "en",
			want:     "Shall we proceed?",
		},
		{
			name:     "empty stays empty",
			text:     "",
			language: "en",
			want:     "",
		},
		{
			name:     "whitespace only stays empty",
			text:     "   ",
			language: "en",
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EnsureFollowup(tc.text, tc.language))
		})
	}
}

func TestFollowupPhrasesAreQuestions(t *testing.T) {
	// Each phrase must itself end with a question mark, otherwise a second
	// pass through EnsureFollowup would stack another followup on top.
	for lang, phrase := range followupPhrases {
		fixed := EnsureFollowup("Done. "+phrase, lang)
		assert.Equalf(t, "Done. "+phrase, fixed, "language %s", lang)
	}
}
