// Package staging persists uploaded certificates and documents in temporary
// directories for the duration of one signing run.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrNoCertificate = errors.New("no certificate staged")
	ErrInvalidName   = errors.New("invalid file name")
)

// Store accepts named buffers and keeps them at addressable locations until
// Cleanup is called.
type Store interface {
	// Reset creates the staging directories and empties them.
	Reset() error
	// SaveCertificate stores the certificate and returns its path.
	SaveCertificate(name string, payload []byte) (string, error)
	// SaveInput stores an input document or archive and returns its path.
	SaveInput(name string, payload []byte) (string, error)
	// CertificatePath returns the path of the staged certificate.
	CertificatePath() (string, error)
	// InputDir is the directory holding staged inputs.
	InputDir() string
	// Cleanup removes everything staged. It can be called any number of times.
	Cleanup() error
}

// FileStore is a Store on the local file system. Certificates and inputs
// live in separate sub-directories of a base directory.
type FileStore struct {
	baseDir  string
	inputDir string
	certDir  string
	logger   zerolog.Logger
}

// NewFileStore returns a store rooted at baseDir. An empty baseDir selects
// "pdf-signer" below the system temporary directory.
func NewFileStore(baseDir string, logger zerolog.Logger) *FileStore {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "pdf-signer")
	}
	return &FileStore{
		baseDir:  baseDir,
		inputDir: filepath.Join(baseDir, "pdfs"),
		certDir:  filepath.Join(baseDir, "certs"),
		logger:   logger.With().Str("component", "staging").Logger(),
	}
}

func (s *FileStore) InputDir() string {
	return s.inputDir
}

func (s *FileStore) Reset() error {
	for _, dir := range []string{s.inputDir, s.certDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := clearDir(dir); err != nil {
			return err
		}
	}
	s.logger.Debug().Str("dir", s.baseDir).Msg("staging directories ready")
	return nil
}

func (s *FileStore) SaveCertificate(name string, payload []byte) (string, error) {
	return s.save(s.certDir, name, payload, 0o600)
}

func (s *FileStore) SaveInput(name string, payload []byte) (string, error) {
	return s.save(s.inputDir, name, payload, 0o644)
}

func (s *FileStore) save(dir string, name string, payload []byte, perm os.FileMode) (string, error) {
	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path, err := UniquePath(filepath.Join(dir, base))
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", base, err)
	}
	if path != filepath.Join(dir, base) {
		s.logger.Debug().Str("name", name).Str("staged", filepath.Base(path)).Msg("name already staged, renamed")
	}
	if err := os.WriteFile(path, payload, perm); err != nil {
		return "", fmt.Errorf("stage %s: %w", base, err)
	}
	return path, nil
}

// UniquePath returns path when nothing exists there yet, otherwise the first
// free "name (N).ext" next to it, starting at N = 2.
func UniquePath(path string) (string, error) {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := path
	for n := 2; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
}

// CertificatePath returns the first staged certificate in name order.
func (s *FileStore) CertificatePath() (string, error) {
	entries, err := os.ReadDir(s.certDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoCertificate
		}
		return "", fmt.Errorf("read %s: %w", s.certDir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			return filepath.Join(s.certDir, entry.Name()), nil
		}
	}
	return "", ErrNoCertificate
}

// Cleanup overwrites staged certificates with zeros before removing them and
// then empties the input directory.
func (s *FileStore) Cleanup() error {
	var errs []error

	entries, err := os.ReadDir(s.certDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	for _, entry := range entries {
		path := filepath.Join(s.certDir, entry.Name())
		if err := wipe(path); err != nil {
			errs = append(errs, err)
		}
	}

	if err := clearDir(s.inputDir); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Warn().Err(err).Msg("staging cleanup incomplete")
		return err
	}
	return nil
}

func wipe(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Mode().IsRegular() {
		if err := os.WriteFile(path, make([]byte, info.Size()), 0o600); err != nil {
			return fmt.Errorf("wipe %s: %w", path, err)
		}
	}
	return os.RemoveAll(path)
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// SanitizeName reduces an uploaded file name to its base name. Names that
// would not address a file inside the staging directory are rejected.
func SanitizeName(name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, "\\", "/")))
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}
