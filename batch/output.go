package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// OutputChooser returns a fresh directory path for the signed documents of
// one run. The directory does not need to exist yet.
type OutputChooser interface {
	Next() (string, error)
}

// HomeOutputChooser places output directories named
// signed-pdfs-<unix millis>-<random> below Root, or below the user's home
// directory when Root is empty.
type HomeOutputChooser struct {
	Root string
	// Now is used for the timestamp part. Nil means time.Now.
	Now func() time.Time
}

func (c HomeOutputChooser) Next() (string, error) {
	root := c.Root
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		root = home
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	suffix := uuid.NewString()[:8]
	return filepath.Join(root, fmt.Sprintf("signed-pdfs-%d-%s", now().UnixMilli(), suffix)), nil
}
