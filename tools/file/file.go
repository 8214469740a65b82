// Package file implements aidra.FileStore against a sandboxed on-disk
// workspace: one subdirectory per agent under a configured root.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	aidra "github.com/nevindra/aidra"
)

// Store is an aidra.FileStore backed by the local filesystem.
type Store struct {
	root string
}

// New creates a Store rooted at root. Each agent's files live under
// root/<agentID>/.
func New(root string) *Store {
	return &Store{root: root}
}

var _ aidra.FileStore = (*Store)(nil)

func (s *Store) resolve(agentID, filePath string) (string, error) {
	clean, err := aidra.NormalizeFilePath(filePath)
	if err != nil {
		return "", err
	}
	agentRoot := filepath.Join(s.root, agentID)
	resolved := filepath.Join(agentRoot, filepath.FromSlash(clean))
	if resolved != agentRoot && !strings.HasPrefix(resolved, agentRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("file: path %q escapes agent workspace", filePath)
	}
	return resolved, nil
}

func toEntry(relPath string, info os.FileInfo, content string) aidra.FileEntry {
	return aidra.FileEntry{
		Path:      relPath,
		IsDir:     info.IsDir(),
		Content:   content,
		Size:      int(info.Size()),
		UpdatedAt: info.ModTime(),
	}
}

// Read returns a file's content. Fails if path does not exist (the error
// wraps the os.Stat error, not aidra.ErrNotFound) or is a directory.
func (s *Store) Read(ctx context.Context, agentID, filePath string) (aidra.FileEntry, error) {
	resolved, err := s.resolve(agentID, filePath)
	if err != nil {
		return aidra.FileEntry{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return aidra.FileEntry{}, fmt.Errorf("file: stat %q: %w", filePath, err)
	}
	if info.IsDir() {
		return aidra.FileEntry{}, fmt.Errorf("file: %q is a directory", filePath)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return aidra.FileEntry{}, fmt.Errorf("file: read %q: %w", filePath, err)
	}
	return toEntry(filePath, info, string(data)), nil
}

// Write creates or replaces a file's content, creating parent directories
// as needed.
func (s *Store) Write(ctx context.Context, agentID, filePath, content string) (aidra.FileEntry, error) {
	resolved, err := s.resolve(agentID, filePath)
	if err != nil {
		return aidra.FileEntry{}, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return aidra.FileEntry{}, fmt.Errorf("file: mkdir for %q: %w", filePath, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return aidra.FileEntry{}, fmt.Errorf("file: write %q: %w", filePath, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return aidra.FileEntry{}, fmt.Errorf("file: stat after write %q: %w", filePath, err)
	}
	return toEntry(filePath, info, content), nil
}

// List returns the entries directly under dirPath.
func (s *Store) List(ctx context.Context, agentID, dirPath string) ([]aidra.FileEntry, error) {
	if dirPath == "" {
		dirPath = "."
	}
	resolved, err := s.resolve(agentID, dirPath)
	if err != nil {
		if dirPath == "." {
			resolved = filepath.Join(s.root, agentID)
		} else {
			return nil, err
		}
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, fmt.Errorf("file: mkdir workspace: %w", err)
	}
	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("file: list %q: %w", dirPath, err)
	}
	out := make([]aidra.FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		relPath := strings.TrimPrefix(dirPath+"/"+de.Name(), "./")
		out = append(out, aidra.FileEntry{Path: relPath, IsDir: de.IsDir(), Size: int(info.Size()), UpdatedAt: info.ModTime()})
	}
	return out, nil
}

// Stat returns metadata for path without reading its content.
func (s *Store) Stat(ctx context.Context, agentID, filePath string) (aidra.FileEntry, error) {
	resolved, err := s.resolve(agentID, filePath)
	if err != nil {
		return aidra.FileEntry{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return aidra.FileEntry{}, fmt.Errorf("file: stat %q: %w", filePath, err)
	}
	return toEntry(filePath, info, ""), nil
}

// Delete removes a file or empty directory.
func (s *Store) Delete(ctx context.Context, agentID, filePath string) error {
	resolved, err := s.resolve(agentID, filePath)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil {
		return fmt.Errorf("file: delete %q: %w", filePath, err)
	}
	return nil
}
