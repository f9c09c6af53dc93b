// Package dashboard is a built-in plugin that aggregates plugin health,
// cache status, and recent audit activity into one admin page and a CLI
// status command. It depends on the cache and audit plugins and relies
// on the loader to initialize them first.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/builtin/audit"
	"github.com/BaSui01/plugflow/builtin/cache"
	"github.com/BaSui01/plugflow/plugin"
)

// Name is the plugin's registry key.
const Name = "dashboard"

func init() {
	plugin.RegisterExtension(plugin.Namespace, Name, New)
	plugin.RegisterFactory(Name, New)
}

// New constructs the dashboard plugin.
func New() (plugin.Plugin, error) {
	return &Dashboard{
		Base: plugin.Base{Desc: plugin.Descriptor{
			Name:         Name,
			Version:      "1.0.0",
			Description:  "Operational overview of plugins, cache, and audit trail",
			Dependencies: []string{cache.Name, audit.Name},
		}},
	}, nil
}

// Dashboard is the plugin.
type Dashboard struct {
	plugin.Base

	mu    sync.Mutex
	app   *app.App
	cache *cache.Service
	trail *audit.Trail
}

// InitApp resolves the cache and audit extensions. Both must already be
// published, which the dependency declaration guarantees when all three
// plugins load together.
func (d *Dashboard) InitApp(a *app.App) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	svc, ok := cache.FromApp(a)
	if !ok {
		return fmt.Errorf("dashboard requires the %s plugin", cache.Name)
	}
	trail, ok := audit.FromApp(a)
	if !ok {
		return fmt.Errorf("dashboard requires the %s plugin", audit.Name)
	}

	d.app = a
	d.cache = svc
	d.trail = trail

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trail.Record(ctx, audit.Entry{Actor: "system", Action: "dashboard.start"}); err != nil {
		a.Logger().Warn("dashboard start not recorded", zap.Error(err))
	}
	return nil
}

// OnUnload records the shutdown in the audit trail when it is still
// reachable.
func (d *Dashboard) OnUnload() error {
	d.mu.Lock()
	trail := d.trail
	d.trail = nil
	d.cache = nil
	d.mu.Unlock()

	if trail != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trail.Record(ctx, audit.Entry{Actor: "system", Action: "dashboard.stop"})
	}
	return nil
}

// Healthcheck verifies both backing services.
func (d *Dashboard) Healthcheck() (plugin.HealthStatus, error) {
	d.mu.Lock()
	svc, trail := d.cache, d.trail
	d.mu.Unlock()

	if svc == nil || trail == nil {
		return plugin.HealthStatus{}, fmt.Errorf("dashboard not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return plugin.HealthStatus{}, fmt.Errorf("cache unreachable: %w", err)
	}
	if err := trail.Ping(ctx); err != nil {
		return plugin.HealthStatus{}, fmt.Errorf("audit trail unreachable: %w", err)
	}

	return plugin.HealthStatus{
		Status:  plugin.HealthOK,
		Plugin:  Name,
		Version: d.Desc.Version,
	}, nil
}

// MenuItems contributes the dashboard navigation entry.
func (d *Dashboard) MenuItems() []plugin.MenuItem {
	return []plugin.MenuItem{
		{Label: "Dashboard", URL: "/admin/dashboard", Icon: "gauge"},
	}
}

// AdminViews contributes the overview page.
func (d *Dashboard) AdminViews() []plugin.AdminView {
	return []plugin.AdminView{
		{Name: "dashboard", Path: "/admin/dashboard", Handler: d.handleOverview},
	}
}

// CLICommands contributes the status command.
func (d *Dashboard) CLICommands() []plugin.CLICommand {
	return []plugin.CLICommand{
		{
			Name:  "status",
			Usage: "Print plugin health and recent audit activity",
			Run:   d.runStatus,
		},
	}
}

// overview is the admin page payload.
type overview struct {
	Plugins     []string                       `json:"plugins"`
	Health      map[string]plugin.HealthStatus `json:"health"`
	RecentAudit []audit.Entry                  `json:"recent_audit"`
}

func (d *Dashboard) buildOverview(ctx context.Context) (*overview, error) {
	d.mu.Lock()
	a, trail := d.app, d.trail
	d.mu.Unlock()

	if a == nil || trail == nil {
		return nil, fmt.Errorf("dashboard not initialized")
	}

	ov := &overview{}
	if ext, ok := a.Extension(plugin.ExtensionKey); ok {
		if loader, ok := ext.(*plugin.Loader); ok {
			for _, inst := range loader.Active() {
				ov.Plugins = append(ov.Plugins, inst.Name())
			}
			ov.Health = loader.Healthcheck()
		}
	}

	entries, err := trail.Recent(ctx, 20)
	if err != nil {
		return nil, err
	}
	ov.RecentAudit = entries
	return ov, nil
}

func (d *Dashboard) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := d.buildOverview(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ov)
}

func (d *Dashboard) runStatus(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ov, err := d.buildOverview(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "active plugins: %d\n", len(ov.Plugins))
	for _, name := range ov.Plugins {
		status := "unknown"
		if h, ok := ov.Health[name]; ok {
			status = h.Status
			if h.Message != "" {
				status += " (" + h.Message + ")"
			}
		}
		fmt.Fprintf(os.Stdout, "  %-20s %s\n", name, status)
	}
	fmt.Fprintf(os.Stdout, "recent audit entries: %d\n", len(ov.RecentAudit))
	return nil
}
