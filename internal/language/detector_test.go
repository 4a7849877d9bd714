package internal_language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- Clamp ---

func TestClampSupportedTagPasses(t *testing.T) {
	assert.Equal(t, "ta", Clamp("ta", "hi"))
	assert.Equal(t, "en", Clamp("en", "hi"))
}

func TestClampUnsupportedTagFallsBack(t *testing.T) {
	assert.Equal(t, "en", Clamp("fr", "en"))
	assert.Equal(t, "bn", Clamp("", "bn"))
}

func TestClampUnsupportedFallbackDefaultsToHindi(t *testing.T) {
	assert.Equal(t, "hi", Clamp("fr", "de"))
	assert.Equal(t, "hi", Clamp("", ""))
}

// --- Detect: short utterances resolved by script ---

func TestDetectShortByScript(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		fallback string
		want     string
	}{
		{"devanagari", "ठीक है", "en", "hi"},
		{"tamil", "ஆம்", "hi", "ta"},
		{"telugu", "అవును", "hi", "te"},
		{"kannada", "ಹೌದು", "hi", "kn"},
		{"malayalam", "അതെ", "hi", "ml"},
		{"gujarati", "હા જી", "hi", "gu"},
		{"bengali script", "হ্যাঁ", "hi", "bn"},
		{"gurmukhi", "ਹਾਂ ਜੀ", "hi", "pa"},
		{"oriya", "ହଁ", "hi", "or"},
		{"urdu", "جی ہاں", "hi", "ur"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.text, tc.fallback))
		})
	}
}

func TestDetectEnglishCueWords(t *testing.T) {
	for _, cue := range []string{"yes", "okay", "Hello", "thank you"} {
		assert.Equal(t, "en", Detect(cue, "hi"), "cue %q", cue)
	}
}

func TestDetectShortLatinNonCueFallsBack(t *testing.T) {
	// Three Latin letters is below the English threshold and not a cue.
	assert.Equal(t, "hi", Detect("brb", "hi"))
}

// --- Detect: inconclusive input ---

func TestDetectEmptyFallsBack(t *testing.T) {
	assert.Equal(t, "bn", Detect("", "bn"))
	assert.Equal(t, "bn", Detect("   ", "bn"))
}

func TestDetectDigitsFallBack(t *testing.T) {
	assert.Equal(t, "te", Detect("12345", "te"))
}

func TestDetectUnsupportedFallbackClampsToHindi(t *testing.T) {
	assert.Equal(t, "hi", Detect("", "zz"))
}

// --- Detect: longer text through the statistical pass ---

func TestDetectLongEnglish(t *testing.T) {
	text := "could you please tell me more about the pricing plans that you offer"
	assert.Equal(t, "en", Detect(text, "hi"))
}

func TestDetectLongHindi(t *testing.T) {
	text := "नमस्ते मुझे आपकी सेवाओं के बारे में पूरी जानकारी चाहिए क्या आप मदद कर सकते हैं"
	assert.Equal(t, "hi", Detect(text, "en"))
}

func TestDetectLongTamil(t *testing.T) {
	text := "உங்கள் சேவைகளைப் பற்றி மேலும் தெரிந்து கொள்ள விரும்புகிறேன்"
	assert.Equal(t, "ta", Detect(text, "hi"))
}

func TestDetectLongTelugu(t *testing.T) {
	text := "మీ సేవల గురించి మరింత సమాచారం తెలుసుకోవాలని ఉంది"
	assert.Equal(t, "te", Detect(text, "hi"))
}
