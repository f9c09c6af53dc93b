// Package audit is a built-in plugin that records application events in
// a relational audit trail and exposes it through an admin view.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/plugin"
)

// Name is the plugin's registry key.
const Name = "audit"

// ExtensionKey is the app extension slot holding the *Trail.
const ExtensionKey = "plugflow.audit"

func init() {
	plugin.RegisterExtension(plugin.Namespace, Name, New)
	plugin.RegisterFactory(Name, New)
}

// Entry is one audit trail record.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Actor     string    `gorm:"index" json:"actor"`
	Action    string    `gorm:"index" json:"action"`
	Object    string    `json:"object,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// New constructs the audit plugin with its default configuration.
func New() (plugin.Plugin, error) {
	return &Audit{
		Base: plugin.Base{Desc: plugin.Descriptor{
			Name:        Name,
			Version:     "1.0.0",
			Description: "Relational audit trail with an admin view",
			DefaultConfig: map[string]any{
				"dsn": "audit.db",
			},
		}},
		dsn: "audit.db",
	}, nil
}

// Audit is the plugin. The database handle is opened during InitApp.
type Audit struct {
	plugin.Base

	mu    sync.Mutex
	dsn   string
	trail *Trail
}

// Configure accepts a dsn override.
func (p *Audit) Configure(cfg map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := cfg["dsn"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return fmt.Errorf("audit: dsn must be a non-empty string, got %v", v)
		}
		p.dsn = s
	}
	return nil
}

// InitApp opens the database, migrates the audit schema, and publishes
// the Trail under ExtensionKey.
func (p *Audit) InitApp(a *app.App) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := a.Logger().With(zap.String("component", "audit_plugin"))

	db, err := gorm.Open(sqlite.Open(p.dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}

	p.trail = &Trail{db: db, logger: logger}
	a.SetExtension(ExtensionKey, p.trail)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.trail.Record(ctx, Entry{Actor: "system", Action: "audit.start"}); err != nil {
		logger.Warn("activation not recorded", zap.Error(err))
	}

	logger.Info("audit trail ready", zap.String("dsn", p.dsn))
	return nil
}

// OnUnload closes the underlying database connection.
func (p *Audit) OnUnload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trail == nil {
		return nil
	}
	err := p.trail.Close()
	p.trail = nil
	return err
}

// Healthcheck pings the database.
func (p *Audit) Healthcheck() (plugin.HealthStatus, error) {
	p.mu.Lock()
	trail := p.trail
	p.mu.Unlock()

	if trail == nil {
		return plugin.HealthStatus{}, fmt.Errorf("audit not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trail.Ping(ctx); err != nil {
		return plugin.HealthStatus{}, fmt.Errorf("audit database ping: %w", err)
	}

	return plugin.HealthStatus{
		Status:  plugin.HealthOK,
		Plugin:  Name,
		Version: p.Desc.Version,
	}, nil
}

// MenuItems contributes the audit log navigation entry.
func (p *Audit) MenuItems() []plugin.MenuItem {
	return []plugin.MenuItem{
		{Label: "Audit Log", URL: "/admin/audit", Icon: "list"},
	}
}

// AdminViews contributes the audit log admin page.
func (p *Audit) AdminViews() []plugin.AdminView {
	return []plugin.AdminView{
		{Name: "audit-log", Path: "/admin/audit", Handler: p.handleLog},
	}
}

// handleLog serves the most recent audit entries as JSON.
func (p *Audit) handleLog(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	trail := p.trail
	p.mu.Unlock()

	if trail == nil {
		http.Error(w, "audit trail unavailable", http.StatusServiceUnavailable)
		return
	}

	entries, err := trail.Recent(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}

// FromApp retrieves the audit trail published by an initialized audit
// plugin.
func FromApp(a *app.App) (*Trail, bool) {
	v, ok := a.Extension(ExtensionKey)
	if !ok {
		return nil, false
	}
	trail, ok := v.(*Trail)
	return trail, ok
}

// Trail is the audit handle stored in the app extension registry.
type Trail struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Record appends one entry to the trail.
func (t *Trail) Record(ctx context.Context, entry Entry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit entry requires an action")
	}
	if err := t.db.WithContext(ctx).Create(&entry).Error; err != nil {
		t.logger.Error("audit record failed",
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (t *Trail) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := t.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, nil
}

// CountByAction returns how many entries carry the given action.
func (t *Trail) CountByAction(ctx context.Context, action string) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).
		Model(&Entry{}).
		Where("action = ?", action).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Ping verifies the database connection.
func (t *Trail) Ping(ctx context.Context) error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (t *Trail) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
