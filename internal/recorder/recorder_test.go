// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_recorder

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_audio "github.com/rapidaai/voice-gateway/internal/audio"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-recorder"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return logger
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestRecorder(t *testing.T, dir, streamSid string) (*CallRecorder, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	r := NewCallRecorder(newTestLogger(t), dir, streamSid)
	r.clock = func() time.Time { return clock.now }
	r.startTime = clock.now
	return r, clock
}

func readRecording(t *testing.T, path string) ([]byte, uint32) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return internal_audio.DecodeWAV(raw)
}

// stereoSample returns the left and right 16-bit samples at index i.
func stereoSample(stereo []byte, i int) (left, right [2]byte) {
	copy(left[:], stereo[i*4:i*4+2])
	copy(right[:], stereo[i*4+2:i*4+4])
	return left, right
}

func TestPersistNothingRecorded(t *testing.T) {
	r, _ := newTestRecorder(t, t.TempDir(), "MZempty")
	r.WriteCaller(nil)

	path, err := r.Persist()

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestPersistPlacesTracksOnTimeline(t *testing.T) {
	dir := t.TempDir()
	r, clock := newTestRecorder(t, dir, "MZtimeline")

	perSecond := internal_audio.TELEPHONY_AUDIO_CONFIG.BytesPerSecond()

	r.WriteCaller(bytes.Repeat([]byte{0x11, 0x11}, 160))
	clock.advance(time.Second)
	r.WriteAgent(bytes.Repeat([]byte{0x22, 0x22}, 160))
	clock.advance(time.Second)

	path, err := r.Persist()
	require.NoError(t, err)
	require.NotEmpty(t, path)

	stereo, rate := readRecording(t, path)
	assert.Equal(t, internal_audio.TELEPHONY_AUDIO_CONFIG.SampleRate, rate)

	// Two seconds of wall clock on each mono track, interleaved.
	assert.Equal(t, 2*2*perSecond, len(stereo))

	left, right := stereoSample(stereo, 0)
	assert.Equal(t, [2]byte{0x11, 0x11}, left, "caller speaks at the start")
	assert.Equal(t, [2]byte{0x00, 0x00}, right, "agent silent at the start")

	agentSample := perSecond / 2 // one second in, in samples
	left, right = stereoSample(stereo, agentSample)
	assert.Equal(t, [2]byte{0x00, 0x00}, left, "caller silent at one second")
	assert.Equal(t, [2]byte{0x22, 0x22}, right, "agent speaks at one second")
}

func TestBackToBackWritesDoNotOverlap(t *testing.T) {
	dir := t.TempDir()
	r, clock := newTestRecorder(t, dir, "MZburst")

	// Both chunks arrive within the same clock tick; the track cursor must
	// queue the second one behind the first instead of painting over it.
	r.WriteCaller([]byte{0x0a, 0x0a, 0x0b, 0x0b})
	r.WriteCaller([]byte{0x0c, 0x0c, 0x0d, 0x0d})
	clock.advance(10 * time.Millisecond)

	path, err := r.Persist()
	require.NoError(t, err)

	stereo, _ := readRecording(t, path)

	wantLeft := [][2]byte{{0x0a, 0x0a}, {0x0b, 0x0b}, {0x0c, 0x0c}, {0x0d, 0x0d}}
	for i, want := range wantLeft {
		left, _ := stereoSample(stereo, i)
		assert.Equalf(t, want, left, "left sample %d", i)
	}
}

func TestPersistCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	r, _ := newTestRecorder(t, dir, "MZmkdir")

	r.WriteCaller([]byte{0x01, 0x01})

	path, err := r.Persist()
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestFileNameSanitized(t *testing.T) {
	r, _ := newTestRecorder(t, t.TempDir(), "MZ/ab:cd#1")

	r.WriteCaller([]byte{0x01, 0x01})

	path, err := r.Persist()
	require.NoError(t, err)
	assert.Equal(t, "MZ-ab-cd-1_20250314T090000Z.wav", filepath.Base(path))
}

func TestFileNameEmptyStreamSid(t *testing.T) {
	r, _ := newTestRecorder(t, t.TempDir(), "")

	r.WriteCaller([]byte{0x01, 0x01})

	path, err := r.Persist()
	require.NoError(t, err)
	assert.Equal(t, "call_20250314T090000Z.wav", filepath.Base(path))
}
