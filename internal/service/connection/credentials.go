package connection

import (
	"fmt"
	"os"
	"path/filepath"

	"model-publisher/internal/domain"
)

// writeCredentialFile stores secret material that a driver only accepts as a
// file. Every call uses a fresh random name; files are never reused or removed.
func writeCredentialFile(dir string, content []byte) (string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "publisher-credentials")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create credential dir: %w", err)
	}
	path := filepath.Join(dir, domain.NewID()+".json")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("write credential file: %w", err)
	}
	return path, nil
}
