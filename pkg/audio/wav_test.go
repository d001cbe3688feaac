package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, sampleRate, channels int, samples []int16) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, WriteWAV(f, sampleRate, channels, samples))
	return path
}

func TestProbeWAVReadsFormatAndDuration(t *testing.T) {
	// One second of mono audio at 16kHz
	samples := make([]int16, 16000)
	path := writeTestWAV(t, 16000, 1, samples)

	info, err := ProbeWAV(path)
	require.NoError(t, err)

	assert.Equal(t, 16000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.InDelta(t, 1.0, info.Duration, 0.001)
}

func TestProbeWAVStereo(t *testing.T) {
	// 4000 stereo frames at 8kHz is half a second
	samples := make([]int16, 8000)
	path := writeTestWAV(t, 8000, 2, samples)

	info, err := ProbeWAV(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.InDelta(t, 0.5, info.Duration, 0.001)
}

func TestProbeWAVRejectsNonWAVData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(path, []byte("ID3 this is an mp3, honest"), 0o644))

	_, err := ProbeWAV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid WAV file")
}

func TestProbeWAVMissingFile(t *testing.T) {
	_, err := ProbeWAV(filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
}
