package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server/pkg/config"
	"callcoach-server/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := &config.AudioConfig{
		UploadDir:        t.TempDir(),
		MaxSizeMB:        1,
		SupportedFormats: []string{"wav", "mp3", "m4a"},
	}

	store, err := NewStore(logger, cfg)
	require.NoError(t, err)
	return store
}

func TestValidateAcceptsSupportedFormats(t *testing.T) {
	store := newTestStore(t)

	assert.NoError(t, store.Validate("call.wav", 1024))
	assert.NoError(t, store.Validate("call.mp3", 1024))
	assert.NoError(t, store.Validate("CALL.WAV", 1024))
}

func TestValidateRejectsUnsupportedFormat(t *testing.T) {
	store := newTestStore(t)

	err := store.Validate("call.flac", 1024)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "flac")

	err = store.Validate("noextension", 1024)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFormat)
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	store := newTestStore(t)

	// Limit is 1MB, one byte over must fail
	err := store.Validate("call.wav", 1024*1024+1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFileTooLarge)

	assert.NoError(t, store.Validate("call.wav", 1024*1024))
}

func TestSaveStoresUnderUniqueName(t *testing.T) {
	store := newTestStore(t)
	content := []byte("fake audio payload")

	path, err := store.Save(bytes.NewReader(content), "recording.WAV")
	require.NoError(t, err)

	assert.Equal(t, store.config.UploadDir, filepath.Dir(path))
	namePattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.wav$`)
	assert.Regexp(t, namePattern, filepath.Base(path))

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	second, err := store.Save(bytes.NewReader(content), "recording.WAV")
	require.NoError(t, err)
	assert.NotEqual(t, path, second)
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save(bytes.NewReader([]byte("x")), "a.mp3")
	require.NoError(t, err)

	assert.NoError(t, store.Remove(path))
	assert.NoError(t, store.Remove(path))
}
