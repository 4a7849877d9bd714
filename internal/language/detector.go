// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Supported is the closed set of language tags the gateway routes. Anything
// outside it falls back to the session language.
var Supported = map[string]bool{
	"hi": true, "en": true, "bn": true, "te": true, "ta": true,
	"mr": true, "gu": true, "kn": true, "ml": true, "pa": true,
	"or": true, "as": true, "ur": true,
}

// scriptTags maps a Unicode script to the language it most commonly carries
// on Indian telephony traffic. Shared scripts resolve to the dominant
// language (Devanagari → hi, Bengali script → bn); the statistical pass
// separates hi/mr and bn/as when there is enough text.
var scriptTags = []struct {
	ranges *unicode.RangeTable
	tag    string
}{
	{unicode.Devanagari, "hi"},
	{unicode.Tamil, "ta"},
	{unicode.Telugu, "te"},
	{unicode.Kannada, "kn"},
	{unicode.Malayalam, "ml"},
	{unicode.Gujarati, "gu"},
	{unicode.Bengali, "bn"},
	{unicode.Gurmukhi, "pa"},
	{unicode.Oriya, "or"},
	{unicode.Arabic, "ur"},
}

var statTags = map[whatlanggo.Lang]string{
	whatlanggo.Hin: "hi",
	whatlanggo.Eng: "en",
	whatlanggo.Ben: "bn",
	whatlanggo.Tel: "te",
	whatlanggo.Tam: "ta",
	whatlanggo.Mar: "mr",
	whatlanggo.Guj: "gu",
	whatlanggo.Kan: "kn",
	whatlanggo.Mal: "ml",
	whatlanggo.Pan: "pa",
	whatlanggo.Ori: "or",
	whatlanggo.Urd: "ur",
}

var statWhitelist = func() map[whatlanggo.Lang]bool {
	wl := make(map[whatlanggo.Lang]bool, len(statTags))
	for lang := range statTags {
		wl[lang] = true
	}
	return wl
}()

// englishCues are short utterances the script scan cannot place because they
// are pure ASCII and too short for trigram statistics.
var englishCues = map[string]bool{
	"yes": true, "no": true, "ok": true, "okay": true, "hello": true,
	"hi": true, "hey": true, "bye": true, "thanks": true, "thank you": true,
	"sure": true, "fine": true, "good": true, "right": true, "correct": true,
}

// Detect returns the language tag of text, clamped to the supported set.
// Short strings are resolved by script alone; longer ones go through the
// trigram detector. fallback wins whenever the evidence is inconclusive.
func Detect(text, fallback string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Clamp(fallback, fallback)
	}

	if len([]rune(trimmed)) < 10 {
		if tag := detectByScript(trimmed); tag != "" {
			return tag
		}
		return Clamp(fallback, fallback)
	}

	info := whatlanggo.DetectWithOptions(trimmed, whatlanggo.Options{Whitelist: statWhitelist})
	if tag, ok := statTags[info.Lang]; ok && info.Confidence > 0 {
		return Clamp(tag, fallback)
	}

	if tag := detectByScript(trimmed); tag != "" {
		return tag
	}
	return Clamp(fallback, fallback)
}

// detectByScript scans runes against the script table and returns the tag of
// the dominant script, or "en" for mostly-Latin text that looks English.
func detectByScript(text string) string {
	counts := make(map[string]int, 4)
	latin, letters := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Latin, r) {
			latin++
			continue
		}
		for _, st := range scriptTags {
			if unicode.Is(st.ranges, r) {
				counts[st.tag]++
				break
			}
		}
	}
	if letters == 0 {
		return ""
	}

	best, bestCount := "", 0
	for tag, n := range counts {
		if n > bestCount {
			best, bestCount = tag, n
		}
	}
	if bestCount*2 >= letters && best != "" {
		return best
	}

	if latin*2 >= letters {
		if englishCues[strings.ToLower(strings.TrimSpace(text))] {
			return "en"
		}
		// Mostly Latin letters with enough of them reads as English.
		if latin >= 4 {
			return "en"
		}
	}
	return ""
}

// Clamp returns tag when it is in the supported set, fallback otherwise.
func Clamp(tag, fallback string) string {
	if Supported[tag] {
		return tag
	}
	if Supported[fallback] {
		return fallback
	}
	return "hi"
}
