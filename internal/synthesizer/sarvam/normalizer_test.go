// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_synthesizer_sarvam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/voice-gateway/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-sarvam"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return logger
}

func TestNormalizeStripsMarkdown(t *testing.T) {
	nmz := NewNormalizer(newTestLogger(t))
	ctx := context.Background()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "heading and bold",
			in:   "## Pricing\nThe rate is **very** competitive.",
			want: "Pricing The rate is very competitive.",
		},
		{
			name: "code block dropped",
			in:   "Here:\n```\nSELECT 1;\n```\nDone.",
			want: "Here: Done.",
		},
		{
			name: "inline code unwrapped",
			in:   "Use the `visit` option.",
			want: "Use the visit option.",
		},
		{
			name: "link keeps label",
			in:   "See [our brochure](https://acme.example/brochure.pdf) for details.",
			want: "See our brochure for details.",
		},
		{
			name: "image keeps alt text",
			in:   "![site map](https://acme.example/map.png)",
			want: "site map",
		},
		{
			name: "list markers dropped",
			in:   "- two bedrooms\n- covered parking\n1. clubhouse",
			want: "two bedrooms covered parking clubhouse",
		},
		{
			name: "blockquote and rule dropped",
			in:   "> note this\n---\nfinal",
			want: "note this final",
		},
		{
			name: "italic and strikethrough unwrapped",
			in:   "that is *really* ~~cheap~~ affordable",
			want: "that is really cheap affordable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nmz.Normalize(ctx, tc.in, "hi"))
		})
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	nmz := NewNormalizer(newTestLogger(t))

	got := nmz.Normalize(context.Background(), "  hello \n\n  there \t world  ", "hi")

	assert.Equal(t, "hello there world", got)
}

func TestNormalizeExpandsNumbersForEnglish(t *testing.T) {
	nmz := NewNormalizer(newTestLogger(t))
	ctx := context.Background()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "integer spelled out",
			in:   "We have 42 flats left.",
			want: "We have forty-two flats left.",
		},
		{
			name: "decimal becomes point",
			in:   "It measures 2.5 acres.",
			want: "It measures two point five acres.",
		},
		{
			name: "leading zero fraction untouched",
			in:   "Version 1.05 is out.",
			want: "Version 1.05 is out.",
		},
		{
			name: "long digit runs untouched",
			in:   "Call 9876543210 now.",
			want: "Call 9876543210 now.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nmz.Normalize(ctx, tc.in, "en"))
		})
	}
}

func TestNormalizeKeepsDigitsForOtherLanguages(t *testing.T) {
	nmz := NewNormalizer(newTestLogger(t))

	got := nmz.Normalize(context.Background(), "42 फ्लैट बचे हैं", "hi")

	assert.Equal(t, "42 फ्लैट बचे हैं", got)
}

func TestNormalizeEmptyResult(t *testing.T) {
	nmz := NewNormalizer(newTestLogger(t))

	assert.Equal(t, "", nmz.Normalize(context.Background(), "```\nonly code\n```", "en"))
	assert.Equal(t, "", nmz.Normalize(context.Background(), "   ", "en"))
}

func BenchmarkNormalizeMarkdownReply(b *testing.B) {
	logger, _ := commons.NewApplicationLogger(commons.Name("bench"), commons.Level("error"))
	nmz := NewNormalizer(logger)
	ctx := context.Background()
	text := "## Availability\n\nWe have **3** options left:\n- 2 BHK at *Sunrise Towers*\n- 3 BHK near [the lake](https://example.com)\n\nPrices start at 4500000. Shall I book a visit?"

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		nmz.Normalize(ctx, text, "en")
	}
}
