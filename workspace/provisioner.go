// Package workspace defines the isolated-workspace collaborator contract.
// The engine treats a workspace purely as an opaque handle whose path is
// passed to the dispatch layer as the working directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Handle identifies a provisioned workspace.
type Handle struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	BranchRef string `json:"branch_ref,omitempty"`
}

// MergeResult reports the outcome of merging a workspace back.
type MergeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Provisioner manages isolated workspace lifecycles.
type Provisioner interface {
	CreateWorkspace(id string) (*Handle, error)
	RemoveWorkspace(handle *Handle) error
	MergeWorkspace(handle *Handle, targetBranch string) (*MergeResult, error)
}

// TempDirProvisioner provisions plain temporary directories. It carries no
// branch semantics; MergeWorkspace always reports success with a note. The
// real git-worktree provisioner is an external collaborator.
type TempDirProvisioner struct {
	root string
}

// NewTempDirProvisioner creates a provisioner rooted under dir (or the
// system temp dir when empty).
func NewTempDirProvisioner(dir string) *TempDirProvisioner {
	if dir == "" {
		dir = os.TempDir()
	}
	return &TempDirProvisioner{root: dir}
}

func (p *TempDirProvisioner) CreateWorkspace(id string) (*Handle, error) {
	path := filepath.Join(p.root, "adwflow-ws-"+id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", id, err)
	}
	return &Handle{ID: id, Path: path}, nil
}

func (p *TempDirProvisioner) RemoveWorkspace(handle *Handle) error {
	if handle == nil || handle.Path == "" {
		return nil
	}
	return os.RemoveAll(handle.Path)
}

func (p *TempDirProvisioner) MergeWorkspace(handle *Handle, targetBranch string) (*MergeResult, error) {
	return &MergeResult{Success: true, Message: "temp-dir workspace has nothing to merge"}, nil
}
