// Package git locates the repository an agent works in.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotRepository is returned for a directory outside any Git work tree.
var ErrNotRepository = errors.New("not a Git repository")

// Root returns the top-level directory of the work tree containing dir.
func Root(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("git not found in PATH: %w", err)
		}
		return "", ErrNotRepository
	}
	return filepath.Clean(strings.TrimSpace(string(output))), nil
}

// WorkspaceDir returns the repository root containing dir, or dir itself
// when it is not inside a repository or git is unavailable.
func WorkspaceDir(dir string) string {
	root, err := Root(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return root
}
