package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
	"callcoach-server/pkg/errors"
)

// Store validates and persists uploaded call recordings.
type Store struct {
	logger  *logrus.Logger
	config  *config.AudioConfig
	formats map[string]struct{}
}

// NewStore creates the upload directory and prepares the format whitelist.
func NewStore(logger *logrus.Logger, cfg *config.AudioConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create upload directory")
	}

	formats := make(map[string]struct{}, len(cfg.SupportedFormats))
	for _, format := range cfg.SupportedFormats {
		formats[format] = struct{}{}
	}

	logger.WithFields(logrus.Fields{
		"upload_dir":  cfg.UploadDir,
		"max_size_mb": cfg.MaxSizeMB,
		"formats":     cfg.SupportedFormats,
	}).Info("Audio store initialized")

	return &Store{
		logger:  logger,
		config:  cfg,
		formats: formats,
	}, nil
}

// MaxSizeBytes returns the upload size limit in bytes.
func (s *Store) MaxSizeBytes() int64 {
	return int64(s.config.MaxSizeMB) * 1024 * 1024
}

// Validate checks an upload's name and size against the configured limits.
func (s *Store) Validate(filename string, size int64) error {
	if size > s.MaxSizeBytes() {
		return errors.Wrap(errors.ErrFileTooLarge,
			fmt.Sprintf("file size exceeds maximum allowed size of %dMB", s.config.MaxSizeMB),
			map[string]interface{}{"filename": filename, "size_bytes": size})
	}

	format := normalizeExtension(filename)
	if _, ok := s.formats[format]; !ok {
		return errors.Wrap(errors.ErrUnsupportedFormat,
			fmt.Sprintf("unsupported audio format %q, supported formats: %s",
				format, strings.Join(s.config.SupportedFormats, ", ")),
			map[string]interface{}{"filename": filename})
	}

	return nil
}

// Save streams an upload to disk under a fresh unique filename and
// returns the stored path.
func (s *Store) Save(reader io.Reader, originalName string) (string, error) {
	filename := uuid.New().String() + "." + normalizeExtension(originalName)
	path := filepath.Join(s.config.UploadDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create audio file")
	}

	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "failed to write audio file")
	}

	s.logger.WithFields(logrus.Fields{
		"path":          path,
		"original_name": originalName,
		"size_bytes":    written,
	}).Debug("Stored uploaded recording")

	return path, nil
}

// Remove deletes a stored recording. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove audio file")
	}
	return nil
}

// normalizeExtension extracts a lowercase extension without the dot.
func normalizeExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
