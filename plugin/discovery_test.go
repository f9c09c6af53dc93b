package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtensions is a canned ExtensionRegistry.
type fakeExtensions struct {
	decls []ExtensionDecl
	err   error
}

func (f fakeExtensions) Extensions(namespace string) ([]ExtensionDecl, error) {
	return f.decls, f.err
}

// --- factory table ---

func TestRegisterFactory(t *testing.T) {
	RegisterFactory("table-test-factory", factoryFor(newMockPlugin("table-test")))

	f, ok := LookupFactory("table-test-factory")
	require.True(t, ok)
	require.NotNil(t, f)
	assert.Contains(t, Factories(), "table-test-factory")

	_, ok = LookupFactory("never-registered")
	assert.False(t, ok)
}

func TestRegisterFactory_Panics(t *testing.T) {
	assert.Panics(t, func() { RegisterFactory("nil-factory", nil) })

	RegisterFactory("dup-factory", factoryFor(newMockPlugin("dup-factory")))
	assert.Panics(t, func() {
		RegisterFactory("dup-factory", factoryFor(newMockPlugin("dup-factory")))
	})
}

// --- extension-point source ---

func TestExtensionSource_Discover(t *testing.T) {
	src := NewExtensionSource(fakeExtensions{decls: []ExtensionDecl{
		{Name: "one", Factory: factoryFor(newMockPlugin("one"))},
		{Name: "broken", Factory: nil}, // resolution failure: skipped
		{Name: "two", Factory: factoryFor(newMockPlugin("two"))},
	}}, nil)

	candidates, err := src.Discover()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "entry:one", candidates[0].Source)
	assert.Equal(t, "entry:two", candidates[1].Source)
}

func TestExtensionSource_RegistryUnavailable(t *testing.T) {
	src := NewExtensionSource(fakeExtensions{err: errors.New("no metadata")}, nil)

	// Degrades to empty, never to an error.
	candidates, err := src.Discover()
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestExtensionSource_DefaultTable(t *testing.T) {
	RegisterExtension(Namespace, "global-ext-test", factoryFor(newMockPlugin("global-ext-test")))

	src := NewExtensionSource(nil, nil)
	candidates, err := src.Discover()
	require.NoError(t, err)

	var sources []string
	for _, c := range candidates {
		sources = append(sources, c.Source)
	}
	assert.Contains(t, sources, "entry:global-ext-test")
}

// --- directory source ---

func writePluginDir(t *testing.T, root, dir, manifestName, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	if manifestName != "" {
		require.NoError(t, os.WriteFile(
			filepath.Join(root, dir, manifestName), []byte(content), 0o600))
	}
}

func TestDirSource_Discover(t *testing.T) {
	RegisterFactory("dir-good", factoryFor(newMockPlugin("dir-good")))
	RegisterFactory("dir-fallback", factoryFor(newMockPlugin("dir-fallback")))

	root := t.TempDir()
	writePluginDir(t, root, "good", "plugin.yaml",
		"name: dir-good\nconfig:\n  color: green\n")
	writePluginDir(t, root, "fallback", "plugin.yml", "name: dir-fallback\n")
	writePluginDir(t, root, "_private", "plugin.yaml", "name: dir-good\n")
	writePluginDir(t, root, ".hidden", "plugin.yaml", "name: dir-good\n")
	writePluginDir(t, root, "empty", "", "")
	writePluginDir(t, root, "broken", "plugin.yaml", "name: [broken")
	writePluginDir(t, root, "unresolved", "plugin.yaml", "name: no-such-factory\n")
	// A stray file in the root is not a plugin folder.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("docs"), 0o600))

	src := NewDirSource(root, nil)
	candidates, err := src.Discover()
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	bySource := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		bySource[c.Source] = c
	}
	good, ok := bySource["local:good"]
	require.True(t, ok)
	assert.Equal(t, "green", good.Config["color"])
	_, ok = bySource["local:fallback"]
	assert.True(t, ok)
}

func TestDirSource_UnsetRoot(t *testing.T) {
	src := NewDirSource("", nil)
	candidates, err := src.Discover()
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDirSource_MissingRoot(t *testing.T) {
	src := NewDirSource(filepath.Join(t.TempDir(), "nope"), nil)
	candidates, err := src.Discover()
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
