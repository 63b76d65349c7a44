package tools

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sandbox confines file tools to a single root directory.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at root. The directory is created on
// first write.
func NewSandbox(root string) *Sandbox {
	if root == "" {
		root = DefaultSandboxDir
	}
	return &Sandbox{root: filepath.Clean(root)}
}

// Root returns the sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps a relative name onto a path inside the sandbox. Absolute
// names and names that climb out of the root are rejected.
func (s *Sandbox) Resolve(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return "", fmt.Errorf("file name cannot be empty")
	}
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: absolute path '%s' is outside the sandbox", ErrNotAllowed, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path '%s' escapes the sandbox", ErrNotAllowed, name)
		}
	}

	full := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: path '%s' escapes the sandbox", ErrNotAllowed, name)
	}
	return full, nil
}

// Ensure creates the sandbox root and the parent directory of full.
func (s *Sandbox) Ensure(full string) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// baseName reduces a caller supplied name to its final element, so that
// "../../etc/passwd" becomes "passwd". It returns "" when nothing usable
// remains.
func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}
