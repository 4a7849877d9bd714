package internal_transcriber_deepgram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-transcriber"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return logger
}

// --- Constructor Tests ---

func TestNewDeepgramOption_ValidKey(t *testing.T) {
	opt, err := NewDeepgramOption(newTestLogger(t), "test-api-key", utils.Option{})
	assert.NoError(t, err)
	assert.NotNil(t, opt)
	assert.Equal(t, "test-api-key", opt.GetKey())
}

func TestNewDeepgramOption_MissingKey(t *testing.T) {
	opt, err := NewDeepgramOption(newTestLogger(t), "", utils.Option{})
	assert.Error(t, err)
	assert.Nil(t, opt)
	assert.Contains(t, err.Error(), "illegal transcriber config")
}

func TestNewDeepgramOption_NilOptions(t *testing.T) {
	opt, err := NewDeepgramOption(newTestLogger(t), "k", nil)
	assert.NoError(t, err)
	assert.NotNil(t, opt)
}

// --- Encoding Tests ---

func TestDeepgramGetEncoding(t *testing.T) {
	opt, _ := NewDeepgramOption(newTestLogger(t), "k", utils.Option{})
	assert.Equal(t, "linear16", opt.GetEncoding())
}

// --- SpeechToTextOptions Tests ---

func TestSpeechToTextOptions_Defaults(t *testing.T) {
	opt, _ := NewDeepgramOption(newTestLogger(t), "k", utils.Option{})
	sttOpts := opt.SpeechToTextOptions()

	assert.Equal(t, "nova-2", sttOpts.Model)
	assert.Equal(t, "hi", sttOpts.Language)
	assert.Equal(t, 1, sttOpts.Channels)
	assert.True(t, sttOpts.SmartFormat)
	assert.True(t, sttOpts.InterimResults)
	assert.True(t, sttOpts.FillerWords)
	assert.False(t, sttOpts.VadEvents)
	assert.Equal(t, "300", sttOpts.Endpointing)
	assert.Equal(t, "1000", sttOpts.UtteranceEndMs)
	assert.True(t, sttOpts.Punctuate)
	assert.True(t, sttOpts.NoDelay)
	assert.Equal(t, "linear16", sttOpts.Encoding)
	assert.Equal(t, 8000, sttOpts.SampleRate)
	assert.False(t, sttOpts.Diarize)
	assert.False(t, sttOpts.Multichannel)
}

func TestSpeechToTextOptions_WithOverrides(t *testing.T) {
	opts := utils.Option{
		"listen.language":     "ta",
		"listen.smart_format": false,
		"listen.filler_words": false,
		"listen.vad_events":   true,
		"listen.endpointing":  "500",
		"listen.model":        "nova-2-phonecall",
	}
	opt, _ := NewDeepgramOption(newTestLogger(t), "k", opts)
	sttOpts := opt.SpeechToTextOptions()

	assert.Equal(t, "ta", sttOpts.Language)
	assert.False(t, sttOpts.SmartFormat)
	assert.False(t, sttOpts.FillerWords)
	assert.True(t, sttOpts.VadEvents)
	assert.Equal(t, "500", sttOpts.Endpointing)
	assert.Equal(t, "nova-2-phonecall", sttOpts.Model)
	// Encoding and sample rate remain hardcoded to the wire format.
	assert.Equal(t, "linear16", sttOpts.Encoding)
	assert.Equal(t, 8000, sttOpts.SampleRate)
}

func TestSpeechToTextOptions_KeywordsNova2(t *testing.T) {
	opts := utils.Option{
		"listen.model":   "nova-2",
		"listen.keyword": []interface{}{"hello", "world"},
	}
	opt, _ := NewDeepgramOption(newTestLogger(t), "k", opts)
	sttOpts := opt.SpeechToTextOptions()

	assert.Equal(t, []string{"hello", "world"}, sttOpts.Keywords)
	assert.Empty(t, sttOpts.Keyterm)
}

func TestSpeechToTextOptions_KeywordsNova3(t *testing.T) {
	opts := utils.Option{
		"listen.model":   "nova-3",
		"listen.keyword": []interface{}{"alpha", "beta"},
	}
	opt, _ := NewDeepgramOption(newTestLogger(t), "k", opts)
	sttOpts := opt.SpeechToTextOptions()

	assert.Equal(t, []string{"alpha", "beta"}, sttOpts.Keyterm)
	assert.Empty(t, sttOpts.Keywords)
}

func TestSpeechToTextOptions_KeywordsAsString(t *testing.T) {
	opts := utils.Option{
		"listen.model":   "nova-2",
		"listen.keyword": "[hello world]",
	}
	opt, _ := NewDeepgramOption(newTestLogger(t), "k", opts)
	sttOpts := opt.SpeechToTextOptions()

	assert.Equal(t, []string{"hello", "world"}, sttOpts.Keywords)
}

// --- Language mapping ---

func TestMapLanguage(t *testing.T) {
	cases := []struct {
		tag  string
		want string
	}{
		{"hi", "hi"},
		{"en", "en-IN"},
		{"ta", "ta"},
		{"bn", "bn"},
		{"or", "hi"},
		{"as", "hi"},
		{"ur", "hi"},
		{"zz", "hi"},
		{"", "hi"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapLanguage(tc.tag), "tag %q", tc.tag)
	}
}
