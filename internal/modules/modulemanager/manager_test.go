package modulemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeModule records lifecycle calls into a shared trace.
type fakeModule struct {
	id      string
	core    bool
	initErr error
	trace   *[]string
}

func (m *fakeModule) ID() string   { return m.id }
func (m *fakeModule) Name() string { return m.id }
func (m *fakeModule) Core() bool   { return m.core }

func (m *fakeModule) Migrate(*gorm.DB) error {
	*m.trace = append(*m.trace, "migrate:"+m.id)
	return nil
}

func (m *fakeModule) Init() error {
	*m.trace = append(*m.trace, "init:"+m.id)
	return m.initErr
}

type stoppableModule struct {
	fakeModule
}

func (m *stoppableModule) Shutdown(context.Context) error {
	*m.trace = append(*m.trace, "shutdown:"+m.id)
	return nil
}

type rootAwareModule struct {
	fakeModule
	lastRoot string
}

func (m *rootAwareModule) OnRootSwitch(newRoot string) error {
	m.lastRoot = newRoot
	return nil
}

type routedModule struct {
	fakeModule
}

func (m *routedModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/"+m.id, func(*gin.Context) {})
}

func newTestRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: make(map[string]Module)}
}

func TestLoadAllRunsInRegistrationOrder(t *testing.T) {
	r := newTestRegistry()
	var trace []string
	r.Register(&fakeModule{id: "a", trace: &trace})
	r.Register(&fakeModule{id: "b", trace: &trace})

	require.NoError(t, r.LoadAll(nil))
	// All migrations run before any Init.
	assert.Equal(t, []string{"migrate:a", "migrate:b", "init:a", "init:b"}, trace)

	// A second LoadAll is a no-op.
	trace = nil
	require.NoError(t, r.LoadAll(nil))
	assert.Empty(t, trace)
}

func TestLoadAllInitFailures(t *testing.T) {
	r := newTestRegistry()
	var trace []string
	r.Register(&fakeModule{id: "core", core: true, trace: &trace, initErr: errors.New("boom")})
	assert.Error(t, r.LoadAll(nil))

	// Non-core failures are logged and skipped.
	r = newTestRegistry()
	r.Register(&fakeModule{id: "optional", trace: &trace, initErr: errors.New("boom")})
	r.Register(&fakeModule{id: "after", trace: &trace})
	require.NoError(t, r.LoadAll(nil))
	assert.Contains(t, trace, "init:after")
}

func TestReRegisterKeepsPosition(t *testing.T) {
	r := newTestRegistry()
	var trace []string
	first := &fakeModule{id: "a", trace: &trace}
	r.Register(first)
	r.Register(&fakeModule{id: "b", trace: &trace})

	replacement := &fakeModule{id: "a", trace: &trace}
	r.Register(replacement)

	require.NoError(t, r.LoadAll(nil))
	assert.Equal(t, []string{"migrate:a", "migrate:b", "init:a", "init:b"}, trace)
}

func TestRegisterRoutesOnlyRouteBearers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newTestRegistry()
	var trace []string
	r.Register(&fakeModule{id: "plain", trace: &trace})
	r.Register(&routedModule{fakeModule{id: "routed", trace: &trace}})

	router := gin.New()
	r.RegisterRoutes(router)

	routes := router.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "/routed", routes[0].Path)
}

func TestNotifyRootSwitch(t *testing.T) {
	r := newTestRegistry()
	var trace []string
	aware := &rootAwareModule{fakeModule: fakeModule{id: "aware", trace: &trace}}
	r.Register(&fakeModule{id: "plain", trace: &trace})
	r.Register(aware)

	require.NoError(t, r.NotifyRootSwitch("/mnt/library"))
	assert.Equal(t, "/mnt/library", aware.lastRoot)
}

func TestShutdownReverseOrder(t *testing.T) {
	r := newTestRegistry()
	var trace []string
	r.Register(&stoppableModule{fakeModule{id: "first", trace: &trace}})
	r.Register(&stoppableModule{fakeModule{id: "second", trace: &trace}})

	r.Shutdown(context.Background())
	assert.Equal(t, []string{"shutdown:second", "shutdown:first"}, trace)
}

func TestGlobalRegistryReset(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var trace []string
	Register(&fakeModule{id: "global", trace: &trace})
	mods := ListModules()
	require.Len(t, mods, 1)
	assert.Equal(t, "global", mods[0].ID())

	ResetForTest()
	assert.Empty(t, ListModules())
}
