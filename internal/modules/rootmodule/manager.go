// Package rootmodule owns the set of configured media roots and the
// switch between them. A switch is the one global barrier in clipper:
// the catalog is re-pointed, every root-aware module flushes its caches,
// and no partial state is visible afterwards.
package rootmodule

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/events"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
)

// Root describes one configured root and whether it is active.
type Root struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Layout  string `json:"layout,omitempty"`
	Default bool   `json:"default"`
	Active  bool   `json:"active"`
}

// Manager holds the configured roots and the active selection.
type Manager struct {
	mu      sync.RWMutex
	roots   []config.RootEntry
	active  int
	healthy bool
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager returns the process-wide root manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{active: -1}
	})
	return manager
}

// Bootstrap loads roots.json and activates the default root. Called once
// at startup, before the module system loads.
func (m *Manager) Bootstrap() error {
	cfg := config.Get()
	rf, err := cfg.LoadRoots()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.roots = rf.Roots
	m.mu.Unlock()

	selected := 0
	for i, r := range rf.Roots {
		if r.Default {
			selected = i
			break
		}
	}
	return m.activate(selected, false)
}

// Current returns the active root entry.
func (m *Manager) Current() (config.RootEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active < 0 || m.active >= len(m.roots) {
		return config.RootEntry{}, false
	}
	return m.roots[m.active], true
}

// CurrentPath returns the active root path, or "" when none is active.
func (m *Manager) CurrentPath() string {
	r, ok := m.Current()
	if !ok {
		return ""
	}
	return r.Path
}

// List returns all configured roots with the active one marked.
func (m *Manager) List() []Root {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Root, 0, len(m.roots))
	for i, r := range m.roots {
		out = append(out, Root{
			Name:    r.Name,
			Path:    r.Path,
			Layout:  r.Layout,
			Default: r.Default,
			Active:  i == m.active,
		})
	}
	return out
}

// Healthy reports whether the engine survived its last switch.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// Select atomically switches the engine to the named root. On failure the
// previous root is restored; if restoration also fails the engine is
// marked unhealthy.
func (m *Manager) Select(name string) error {
	m.mu.RLock()
	target := -1
	previous := m.active
	for i, r := range m.roots {
		if r.Name == name {
			target = i
			break
		}
	}
	m.mu.RUnlock()

	if target == -1 {
		return fmt.Errorf("unknown root: %s", name)
	}
	if target == previous {
		return nil
	}

	if err := m.activate(target, true); err != nil {
		logger.Error("Root switch to %s failed: %v, restoring previous root", name, err)
		if previous >= 0 {
			if restoreErr := m.activate(previous, true); restoreErr != nil {
				m.mu.Lock()
				m.healthy = false
				m.mu.Unlock()
				return fmt.Errorf("switch failed (%v) and restore failed: %w", err, restoreErr)
			}
		}
		return err
	}
	return nil
}

// activate points the engine at roots[idx]: dispose the store, ensure the
// root's .clipper layout, reopen, migrate, then notify root-aware modules
// so caches are flushed and handles rebuilt.
func (m *Manager) activate(idx int, notify bool) error {
	m.mu.RLock()
	if idx < 0 || idx >= len(m.roots) {
		m.mu.RUnlock()
		return fmt.Errorf("root index out of range: %d", idx)
	}
	entry := m.roots[idx]
	m.mu.RUnlock()

	if info, err := os.Stat(entry.Path); err != nil || !info.IsDir() {
		return fmt.Errorf("root path not usable: %s", entry.Path)
	}

	if err := database.Close(); err != nil {
		return fmt.Errorf("dispose catalog: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(entry.Path, ".clipper"),
		filepath.Join(entry.Path, ".clipper", "Audios"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := database.Initialize(entry.Path, config.Get().DBPath); err != nil {
		return err
	}
	if err := database.Migrate(database.GetDB()); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	m.mu.Lock()
	m.active = idx
	m.healthy = true
	m.mu.Unlock()

	if notify {
		if err := modulemanager.NotifyRootSwitch(entry.Path); err != nil {
			return err
		}
		events.Publish(events.Event{
			Type:   events.EventRootSwitched,
			Source: "rootmodule",
			Data:   map[string]string{"name": entry.Name, "path": entry.Path},
		})
	}

	logger.Info("Active root: %s (%s)", entry.Name, entry.Path)
	return nil
}
