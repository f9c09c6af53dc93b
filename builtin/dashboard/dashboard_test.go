package dashboard

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/builtin/audit"
	"github.com/BaSui01/plugflow/builtin/cache"
	"github.com/BaSui01/plugflow/config"
	"github.com/BaSui01/plugflow/plugin"
)

// cannedExtensions yields a fixed set of extension declarations.
type cannedExtensions struct {
	decls []plugin.ExtensionDecl
}

func (c cannedExtensions) Extensions(string) ([]plugin.ExtensionDecl, error) {
	return c.decls, nil
}

// setupStack loads dashboard, cache, and audit through a real loader.
// The dashboard is declared first so the test exercises dependency
// ordering, not discovery luck.
func setupStack(t *testing.T) (*app.App, *plugin.Loader) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Plugins.Config = map[string]map[string]any{
		cache.Name: {"addr": mr.Addr()},
		audit.Name: {"dsn": filepath.Join(t.TempDir(), "audit.db")},
	}
	a := app.New(cfg, nil)

	l := plugin.NewLoader(plugin.WithExtensionRegistry(cannedExtensions{decls: []plugin.ExtensionDecl{
		{Name: Name, Factory: New},
		{Name: cache.Name, Factory: cache.New},
		{Name: audit.Name, Factory: audit.New},
	}}))
	l.InitApp(a)
	l.LoadAll()
	t.Cleanup(l.UnloadAll)

	return a, l
}

func TestDashboard_LoadsAfterDependencies(t *testing.T) {
	_, l := setupStack(t)

	for _, name := range []string{cache.Name, audit.Name, Name} {
		inst, ok := l.Get(name)
		require.True(t, ok, name)
		assert.True(t, inst.Enabled(), name)
	}
}

func TestDashboard_RecordsStartInAuditTrail(t *testing.T) {
	a, _ := setupStack(t)

	trail, ok := audit.FromApp(a)
	require.True(t, ok)

	n, err := trail.CountByAction(context.Background(), "dashboard.start")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDashboard_InitApp_MissingDependencies(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	err = p.InitApp(app.New(nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the cache plugin")
}

func TestDashboard_Healthcheck(t *testing.T) {
	_, l := setupStack(t)

	inst, _ := l.Get(Name)
	status, err := inst.Plugin().Healthcheck()
	require.NoError(t, err)
	assert.Equal(t, plugin.HealthOK, status.Status)
}

func TestDashboard_Healthcheck_BeforeInit(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	_, err = p.Healthcheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestDashboard_AdminView_Overview(t *testing.T) {
	_, l := setupStack(t)

	views := l.AdminViews()
	var handler plugin.AdminView
	for _, v := range views {
		if v.Name == "dashboard" {
			handler = v
		}
	}
	require.NotNil(t, handler.Handler)

	rec := httptest.NewRecorder()
	handler.Handler(rec, httptest.NewRequest("GET", handler.Path, nil))
	require.Equal(t, 200, rec.Code)

	var ov overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.ElementsMatch(t, []string{cache.Name, audit.Name, Name}, ov.Plugins)
	assert.Equal(t, plugin.HealthOK, ov.Health[cache.Name].Status)
	require.NotEmpty(t, ov.RecentAudit)
	assert.Equal(t, "dashboard.start", ov.RecentAudit[0].Action)
}

func TestDashboard_StatusCommand(t *testing.T) {
	_, l := setupStack(t)

	cmds := l.CLICommands()
	var status plugin.CLICommand
	for _, c := range cmds {
		if c.Name == "status" {
			status = c
		}
	}
	require.NotNil(t, status.Run)
	assert.NoError(t, status.Run(nil))
}

func TestDashboard_MenuContribution(t *testing.T) {
	_, l := setupStack(t)

	var urls []string
	for _, item := range l.MenuItems() {
		urls = append(urls, item.URL)
	}
	assert.Contains(t, urls, "/admin/dashboard")
	assert.Contains(t, urls, "/admin/audit")
}

func TestDashboard_Unload_RecordsStop(t *testing.T) {
	a, l := setupStack(t)

	require.True(t, l.Unload(Name))

	trail, _ := audit.FromApp(a)
	n, err := trail.CountByAction(context.Background(), "dashboard.stop")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
