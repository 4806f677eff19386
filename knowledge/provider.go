// Package knowledge exposes the expert-context collaborator contract: a
// read-only, best-effort lookup of domain knowledge that is prepended to
// step prompts.
package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Provider selects context text for a task domain. Implementations are pure
// and best-effort: no match means an empty string, never an error the
// engine must handle.
type Provider interface {
	SelectContext(ctx context.Context, domain string, affectedFiles []string) (string, error)
}

// NopProvider returns no context.
type NopProvider struct{}

func (NopProvider) SelectContext(context.Context, string, []string) (string, error) {
	return "", nil
}

// DirProvider serves expert context from markdown files in a directory:
// the file whose base name matches the requested domain (case-insensitive)
// is returned verbatim.
type DirProvider struct {
	dir    string
	logger *zap.Logger
}

// NewDirProvider creates a directory-backed provider.
func NewDirProvider(dir string, logger *zap.Logger) *DirProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirProvider{dir: dir, logger: logger.With(zap.String("component", "knowledge"))}
}

// SelectContext returns the contents of <dir>/<domain>.md if present.
func (p *DirProvider) SelectContext(_ context.Context, domain string, _ []string) (string, error) {
	if domain == "" || p.dir == "" {
		return "", nil
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.logger.Debug("knowledge dir unreadable", zap.String("dir", p.dir), zap.Error(err))
		return "", nil
	}
	want := strings.ToLower(domain)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if base != want {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(p.dir, e.Name()))
		if err != nil {
			p.logger.Debug("knowledge file unreadable", zap.String("file", e.Name()), zap.Error(err))
			return "", nil
		}
		return string(raw), nil
	}
	return "", nil
}
