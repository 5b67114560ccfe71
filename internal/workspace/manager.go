// Package workspace hands out scoped temporary directories and reclaims them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"songbird/internal/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DirPrefix marks directories owned by the manager; the sweeper only touches these.
	DirPrefix = "sb-"
	// DefaultMaxAge is the age after which an orphaned workspace is swept.
	DefaultMaxAge = time.Hour
	// DefaultSweepInterval is how often orphaned workspaces are looked for.
	DefaultSweepInterval = 10 * time.Minute
	dirPerm              = 0o750
)

// ErrWorkspaceEscape is returned when a requested name resolves outside the workspace.
var ErrWorkspaceEscape = errors.New("path escapes workspace")

// Workspace is one allocated directory. It is only valid inside Manager.With.
type Workspace struct {
	dir string
}

// Dir returns the absolute workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory, refusing absolute names and
// names that climb out of it.
func (w *Workspace) Path(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrWorkspaceEscape, name)
	}

	joined := filepath.Join(w.dir, name)
	rel, err := filepath.Rel(w.dir, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrWorkspaceEscape, name)
	}

	return joined, nil
}

// Config configures a Manager.
type Config struct {
	Root          string        // Parent directory; os.TempDir() when empty
	MaxAge        time.Duration // Orphan age threshold
	SweepInterval time.Duration
	// OnSweep is called with the number of directories removed by each sweep.
	OnSweep func(removed int)
}

// Manager allocates workspaces under Root and sweeps orphans left by crashes.
type Manager struct {
	root          string
	maxAge        time.Duration
	sweepInterval time.Duration
	onSweep       func(int)
	logger        *zap.Logger
}

func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	root := config.Root
	if root == "" {
		root = os.TempDir()
	}

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	m := &Manager{
		root:          absRoot,
		maxAge:        config.MaxAge,
		sweepInterval: config.SweepInterval,
		onSweep:       config.OnSweep,
		logger:        logger,
	}
	if m.maxAge <= 0 {
		m.maxAge = DefaultMaxAge
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = DefaultSweepInterval
	}

	return m, nil
}

// Root returns the directory new workspaces are created in.
func (m *Manager) Root() string {
	return m.root
}

// With allocates a fresh workspace, runs fn with it and removes the directory
// recursively afterwards. Removal also happens when fn panics; the panic then
// continues to propagate.
func (m *Manager) With(ctx context.Context, fn func(core.Workspace) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(m.root, DirPrefix+uuid.New().String())
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	defer m.remove(dir)

	return fn(&Workspace{dir: dir})
}

func (m *Manager) remove(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("Failed to remove workspace", zap.String("dir", dir), zap.Error(err))
	}
}

// Run sweeps orphaned workspaces once immediately and then every sweep
// interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.Sweep()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep removes workspace directories older than the max age and returns how
// many were removed.
func (m *Manager) Sweep() int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		m.logger.Warn("Failed to list workspace root", zap.String("root", m.root), zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(-m.maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		dir := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("Failed to sweep workspace", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("Swept orphaned workspaces", zap.Int("removed", removed))
	}
	if m.onSweep != nil {
		m.onSweep(removed)
	}

	return removed
}
