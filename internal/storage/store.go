package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Name prefixes written by the protocol layer
const (
	PrefixRps  = "Rps-"
	PrefixNFSe = "NFSe-"
)

// FileStore keeps every generated or received document on disk
type FileStore struct {
	dir      string
	byMonth  bool
	saveRps  bool
	saveNFSe bool
	perm     os.FileMode
	logger   zerolog.Logger
}

// Option configures a FileStore
type Option func(*FileStore)

// SplitByMonth writes each document under a yyyyMM sub-directory of its date
func SplitByMonth() Option {
	return func(s *FileStore) {
		s.byMonth = true
	}
}

// SkipRps stops persisting outgoing RPS documents
func SkipRps() Option {
	return func(s *FileStore) {
		s.saveRps = false
	}
}

// SkipNFSe stops persisting received NFSe documents
func SkipNFSe() Option {
	return func(s *FileStore) {
		s.saveNFSe = false
	}
}

// WithLogger overrides the store logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *FileStore) {
		s.logger = l
	}
}

// NewFileStore creates a store rooted at dir. The directory is created on first write.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage directory is required")
	}

	s := &FileStore{
		dir:      dir,
		saveRps:  true,
		saveNFSe: true,
		perm:     0o644,
		logger:   log.Logger.With().Str("component", "storage").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the root directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns where name written at the given instant ends up
func (s *FileStore) Path(name string, at time.Time) string {
	if s.byMonth {
		return filepath.Join(s.dir, at.Format("200601"), name)
	}
	return filepath.Join(s.dir, name)
}

// Write stores content under name. Documents of a disabled kind are skipped.
func (s *FileStore) Write(name, content string, at time.Time) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid document name %q", name)
	}
	if !s.enabled(name) {
		return nil
	}

	path := s.Path(name, at)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), s.perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("document stored")
	return nil
}

// Read returns a stored document
func (s *FileStore) Read(name string, at time.Time) (string, error) {
	data, err := os.ReadFile(s.Path(name, at))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns the stored names with the given prefix, sorted, across
// month directories when splitting is on
func (s *FileStore) List(prefix string) ([]string, error) {
	pattern := filepath.Join(s.dir, prefix+"*.xml")
	if s.byMonth {
		pattern = filepath.Join(s.dir, "[0-9][0-9][0-9][0-9][0-9][0-9]", prefix+"*.xml")
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names, nil
}

func (s *FileStore) enabled(name string) bool {
	switch {
	case strings.HasPrefix(name, PrefixRps):
		return s.saveRps
	case strings.HasPrefix(name, PrefixNFSe):
		return s.saveNFSe
	default:
		return true
	}
}
