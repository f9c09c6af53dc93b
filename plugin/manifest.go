package plugin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest names under which a local plugin folder declares itself.
// plugin.yaml is the conventional entry; plugin.yml is the fallback.
var manifestNames = []string{"plugin.yaml", "plugin.yml"}

// Manifest describes a plugin folder found by the directory source.
// Compiled-in plugins export a constructor via RegisterFactory; the
// manifest points the folder at that constructor and may carry
// configuration overrides applied after registration.
type Manifest struct {
	// Name identifies the plugin the folder provides.
	Name string `yaml:"name"`

	// Factory is the registered factory name. Defaults to Name.
	Factory string `yaml:"factory"`

	// Config overrides merged over the plugin's default configuration.
	Config map[string]any `yaml:"config"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("manifest %s: name must not be empty", path)
	}
	if m.Factory == "" {
		m.Factory = m.Name
	}
	return &m, nil
}
