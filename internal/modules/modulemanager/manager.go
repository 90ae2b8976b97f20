// Package modulemanager holds the registry that wires clipper's modules
// together. Modules self-register from init(), then LoadAll migrates and
// initializes them in registration order once the catalog is open.
package modulemanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/logger"
)

// Module is the interface every clipper module implements.
type Module interface {
	ID() string
	Name() string
	Core() bool
	Migrate(db *gorm.DB) error
	Init() error
}

// RouteRegistrar is implemented by modules that expose HTTP routes.
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Stoppable is implemented by modules with background work to drain at
// shutdown or before a root switch.
type Stoppable interface {
	Shutdown(ctx context.Context) error
}

// RootAware is implemented by modules that must flush state when the
// active root changes.
type RootAware interface {
	OnRootSwitch(newRoot string) error
}

// ModuleRegistry manages module registration and initialization.
type ModuleRegistry struct {
	mu          sync.RWMutex
	order       []string
	modules     map[string]Module
	initialized bool
}

// Registry is the global module registry.
var Registry = &ModuleRegistry{modules: make(map[string]Module)}

// Register adds a module to the global registry.
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry.
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module %s (%s) registered after initialization", m.Name(), m.ID())
	}
	if _, exists := r.modules[m.ID()]; !exists {
		r.order = append(r.order, m.ID())
	}
	r.modules[m.ID()] = m
	logger.Info("Module registered: %s (%s)", m.Name(), m.ID())
}

// LoadAll migrates and initializes all registered modules.
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes all registered modules in order.
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module system already initialized")
		return nil
	}

	for _, id := range r.order {
		m := r.modules[id]
		if err := m.Migrate(db); err != nil {
			return fmt.Errorf("migrate module %s: %w", id, err)
		}
	}

	for _, id := range r.order {
		m := r.modules[id]
		if err := m.Init(); err != nil {
			if m.Core() {
				return fmt.Errorf("init core module %s: %w", id, err)
			}
			logger.Error("Failed to initialize module %s: %v", id, err)
		}
	}

	r.initialized = true
	return nil
}

// RegisterRoutes wires every route-bearing module onto the router.
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes wires every route-bearing module onto the router.
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if rr, ok := r.modules[id].(RouteRegistrar); ok {
			rr.RegisterRoutes(router)
		}
	}
}

// NotifyRootSwitch informs root-aware modules that the active root moved.
func NotifyRootSwitch(newRoot string) error {
	return Registry.NotifyRootSwitch(newRoot)
}

// NotifyRootSwitch informs root-aware modules that the active root moved.
func (r *ModuleRegistry) NotifyRootSwitch(newRoot string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if ra, ok := r.modules[id].(RootAware); ok {
			if err := ra.OnRootSwitch(newRoot); err != nil {
				return fmt.Errorf("root switch in module %s: %w", id, err)
			}
		}
	}
	return nil
}

// Shutdown stops modules in reverse registration order.
func Shutdown(ctx context.Context) {
	Registry.Shutdown(ctx)
}

// Shutdown stops modules in reverse registration order.
func (r *ModuleRegistry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		if s, ok := r.modules[r.order[i]].(Stoppable); ok {
			if err := s.Shutdown(ctx); err != nil {
				logger.Error("Module %s shutdown: %v", r.order[i], err)
			}
		}
	}
}

// ListModules returns the registered modules in order.
func ListModules() []Module {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	out := make([]Module, 0, len(Registry.order))
	for _, id := range Registry.order {
		out = append(out, Registry.modules[id])
	}
	return out
}

// ResetForTest clears the registry between tests.
func ResetForTest() {
	Registry.mu.Lock()
	defer Registry.mu.Unlock()
	Registry.order = nil
	Registry.modules = make(map[string]Module)
	Registry.initialized = false
}
