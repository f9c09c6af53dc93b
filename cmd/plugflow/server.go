package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/config"
	"github.com/BaSui01/plugflow/internal/metrics"
	"github.com/BaSui01/plugflow/internal/server"
	"github.com/BaSui01/plugflow/plugin"
)

// Server is the plugflow host process: the shared app context, the
// plugin loader, and the HTTP/metrics listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	app    *app.App
	loader *plugin.Loader

	promRegistry   *prometheus.Registry
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer creates the host.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Start loads the plugins and brings up the listeners.
func (s *Server) Start() error {
	s.promRegistry = prometheus.NewRegistry()
	collector := metrics.NewCollector("plugflow", s.promRegistry, s.logger)

	s.app = app.New(s.cfg, s.logger)
	s.loader = plugin.NewLoader(
		plugin.WithLogger(s.logger),
		plugin.WithMetrics(collector),
	)
	s.loader.InitApp(s.app)
	s.loader.LoadAll()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("active_plugins", len(s.loader.Active())),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/plugins", s.handlePlugins)
	mux.HandleFunc("/menu", s.handleMenu)

	// Plugin-contributed admin pages.
	for _, view := range s.loader.AdminViews() {
		mux.HandleFunc(view.Path, view.Handler)
		s.logger.Info("admin view registered",
			zap.String("name", view.Name),
			zap.String("path", view.Path))
	}

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(mux, serverConfig, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// handleHealthz aggregates every plugin's health. Any error-status
// plugin turns the response into a 503, with the full detail attached.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	results := s.loader.Healthcheck()

	overall := plugin.HealthOK
	status := http.StatusOK
	for _, res := range results {
		if res.Status != plugin.HealthOK {
			overall = plugin.HealthError
			status = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  overall,
		"plugins": results,
	})
}

// pluginInfo is the /plugins list element.
type pluginInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Source  string `json:"source"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	infos := make([]pluginInfo, 0)
	for _, inst := range s.loader.Registry().Instances() {
		infos = append(infos, pluginInfo{
			Name:    inst.Name(),
			Version: inst.Descriptor().Version,
			Source:  inst.Source(),
			Enabled: inst.Enabled(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"plugins": infos})
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	items := s.loader.MenuItems()
	if items == nil {
		items = []plugin.MenuItem{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"menu_items": items})
}

// WaitForShutdown blocks on a termination signal, then shuts down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown unloads the plugins and stops the listeners.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.loader != nil {
		s.loader.UnloadAll()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
