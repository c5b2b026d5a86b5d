package collaborators

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// snapshotByteBudget caps how much source text FSCodebaseSnapshotter reads,
// so a large tree doesn't blow past the LLM Gateway's per-request token cap.
const snapshotByteBudget = 64 * 1024

// FSCodebaseSnapshotter implements agentrunner.CodebaseSnapshotter by
// concatenating Go source under a root directory, skipping vendor/test
// doubles and anything under a leading-dot or leading-underscore directory
// (the convention this very workspace uses for non-source reference
// material). Plain os/filepath: no example repo in the retrieval pack reads
// a local source tree for review purposes, so there is no ecosystem library
// to ground this on.
type FSCodebaseSnapshotter struct {
	root string
}

// NewFSCodebaseSnapshotter constructs a snapshotter rooted at root.
func NewFSCodebaseSnapshotter(root string) *FSCodebaseSnapshotter {
	return &FSCodebaseSnapshotter{root: root}
}

// Snapshot walks root and returns up to snapshotByteBudget bytes of Go
// source, each file preceded by a path header.
func (f *FSCodebaseSnapshotter) Snapshot(ctx context.Context) (string, error) {
	var b strings.Builder

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if b.Len() >= snapshotByteBudget {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			rel = path
		}
		header := "// --- " + rel + " ---\n"
		remaining := snapshotByteBudget - b.Len() - len(header) - len("\n\n")
		if remaining <= 0 {
			return nil
		}
		b.WriteString(header)
		if len(content) > remaining {
			content = content[:remaining]
		}
		b.Write(content)
		b.WriteString("\n\n")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", f.root, err)
	}

	return b.String(), nil
}
