// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_openai

import "strings"

// Message is one prior exchange entry, role "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// policyBlock is appended verbatim after the agent prompt on every request.
// It pins the grounding and brevity behavior the voice channel depends on;
// the 100-token ceiling keeps synthesized replies under roughly ten seconds.
const policyBlock = "Answer strictly using the information provided above. " +
	"If the user asks for address, phone, timings, or other specifics, check the System Prompt or FirstGreeting. " +
	"If the information is not present, reply briefly that you don't have that information. " +
	"Always end your answer with a short, relevant follow-up question to keep the conversation going. " +
	"Keep the entire reply under 100 tokens."

// ComposeSystemPrompt builds the full system message: the agent persona, the
// greeting (so the model can answer questions about facts stated in it), and
// the policy block.
func ComposeSystemPrompt(agentPrompt, firstGreeting string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(agentPrompt))
	if g := strings.TrimSpace(firstGreeting); g != "" {
		b.WriteString("\n\nFirstGreeting: ")
		b.WriteString(g)
	}
	b.WriteString("\n\n")
	b.WriteString(policyBlock)
	return b.String()
}

// followupPhrases supplies the trailing question when the model ignores the
// policy block and ends flat. Keyed by gateway language tag.
var followupPhrases = map[string]string{
	"hi": "क्या मैं आपकी किसी और बात में मदद कर सकती हूँ?",
	"en": "Is there anything else I can help you with?",
	"bn": "আমি কি আপনাকে আর কিছুতে সাহায্য করতে পারি?",
	"te": "నేను మీకు ఇంకేమైనా సహాయం చేయగలనా?",
	"ta": "நான் உங்களுக்கு வேறு எதிலாவது உதவலாமா?",
	"mr": "मी तुम्हाला आणखी काही मदत करू शकते का?",
	"gu": "શું હું તમને બીજી કોઈ રીતે મદદ કરી શકું?",
	"kn": "ನಾನು ನಿಮಗೆ ಬೇರೆ ಏನಾದರೂ ಸಹಾಯ ಮಾಡಬಹುದೇ?",
	"ml": "ഞാൻ നിങ്ങളെ മറ്റെന്തെങ്കിലും സഹായിക്കണോ?",
	"pa": "ਕੀ ਮੈਂ ਤੁਹਾਡੀ ਹੋਰ ਕਿਸੇ ਗੱਲ ਵਿੱਚ ਮਦਦ ਕਰ ਸਕਦੀ ਹਾਂ?",
	"or": "ମୁଁ ଆପଣଙ୍କୁ ଆଉ କିଛି ସାହାଯ୍ୟ କରିପାରିବି କି?",
	"as": "মই আপোনাক আন কিবা সহায় কৰিব পাৰোঁনে?",
	"ur": "کیا میں آپ کی کسی اور چیز میں مدد کر سکتی ہوں؟",
}

var questionSuffixes = []string{"?", "？", "؟"}

// EnsureFollowup appends the per-language follow-up question when the reply
// does not already end with one.
func EnsureFollowup(text, language string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}
	for _, suffix := range questionSuffixes {
		if strings.HasSuffix(trimmed, suffix) {
			return trimmed
		}
	}

	phrase, ok := followupPhrases[language]
	if !ok {
		phrase = followupPhrases["hi"]
	}
	return trimmed + " " + phrase
}
