// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_synthesizer_sarvam

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	ntw "moul.io/number-to-words"

	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// Chat models decorate replies with markdown that a voice has no way to
// render; headings come out as "hash hash" and list markers as "dash". The
// normalizer flattens replies to plain speakable text before synthesis.
var (
	codeBlockRegex  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRegex = regexp.MustCompile("`([^`]+)`")
	imageRegex      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRegex       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headingRegex    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldRegex       = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	italicRegex     = regexp.MustCompile(`\*([^*]+)\*|_([^_]+)_`)
	strikeRegex     = regexp.MustCompile(`~~([^~]+)~~`)
	blockquoteRegex = regexp.MustCompile(`(?m)^>\s?`)
	listMarkerRegex = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	ruleRegex       = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	numberRegex     = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type normalization func(ctx context.Context, text string) string

type Normalizer struct {
	logger   commons.Logger
	pipeline []normalization
}

func NewNormalizer(logger commons.Logger) *Normalizer {
	nmz := &Normalizer{logger: logger}
	nmz.pipeline = []normalization{
		nmz.removeMarkdown,
		nmz.normalizeWhitespace,
	}
	return nmz
}

// Normalize flattens text for the given language tag. Digit expansion only
// applies to English; the synthesis voices read native numerals themselves.
func (nmz *Normalizer) Normalize(ctx context.Context, text string, language string) string {
	for _, step := range nmz.pipeline {
		text = step(ctx, text)
	}
	if language == "en" {
		text = nmz.expandNumbers(ctx, text)
	}
	return text
}

func (nmz *Normalizer) removeMarkdown(_ context.Context, text string) string {
	text = codeBlockRegex.ReplaceAllString(text, " ")
	text = imageRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	text = inlineCodeRegex.ReplaceAllString(text, "$1")
	text = headingRegex.ReplaceAllString(text, "")
	text = boldRegex.ReplaceAllString(text, "$1$2")
	text = italicRegex.ReplaceAllString(text, "$1$2")
	text = strikeRegex.ReplaceAllString(text, "$1")
	text = blockquoteRegex.ReplaceAllString(text, "")
	text = listMarkerRegex.ReplaceAllString(text, "")
	text = ruleRegex.ReplaceAllString(text, "")
	return text
}

// expandNumbers spells out standalone figures so the voice reads
// "forty-two" instead of spelling digits. Decimals become "<x> point <y>";
// anything past six digits stays numeric since those are usually phone
// numbers or identifiers the voice should read digit by digit.
func (nmz *Normalizer) expandNumbers(_ context.Context, text string) string {
	return numberRegex.ReplaceAllStringFunc(text, func(match string) string {
		if whole, frac, ok := strings.Cut(match, "."); ok {
			w, errW := strconv.Atoi(whole)
			f, errF := strconv.Atoi(frac)
			if errW != nil || errF != nil || len(whole) > 6 || strings.HasPrefix(frac, "0") {
				return match
			}
			return ntw.IntegerToEnUs(w) + " point " + ntw.IntegerToEnUs(f)
		}
		n, err := strconv.Atoi(match)
		if err != nil || len(match) > 6 {
			return match
		}
		return ntw.IntegerToEnUs(n)
	})
}

func (nmz *Normalizer) normalizeWhitespace(_ context.Context, text string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}
