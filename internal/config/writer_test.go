package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// setupMemFs swaps the writer onto an in-memory filesystem.
func setupMemFs(t *testing.T) afero.Fs {
	t.Helper()
	original := fsys
	mem := afero.NewMemMapFs()
	fsys = mem
	t.Cleanup(func() { fsys = original })
	return mem
}

func TestWriteStarterConfig(t *testing.T) {
	mem := setupMemFs(t)

	path := "/home/someone/.engram/config.yaml"
	require.NoError(t, WriteStarterConfig(path))

	data, err := afero.ReadFile(mem, path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "# engram configuration"), "header comment missing:\n%s", content)
	for _, want := range []string{
		"environment: development",
		"working_memory:",
		"rrf_k: 60",
		"fidelity_threshold: 0.7",
		"provider: openai",
		"# ", // at least one section comment rendered
	} {
		assert.Contains(t, content, want)
	}

	// The rendered file must be parseable YAML.
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	for _, key := range []string{"environment", "log", "project", "database", "llm", "retrieval", "scoring", "working_memory", "insights", "telemetry"} {
		assert.Contains(t, parsed, key)
	}
}

func TestWriteStarterConfigNeverClobbers(t *testing.T) {
	mem := setupMemFs(t)

	path := "/cfg/config.yaml"
	require.NoError(t, afero.WriteFile(mem, path, []byte("environment: production\n"), 0o600))

	err := WriteStarterConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := afero.ReadFile(mem, path)
	require.NoError(t, err)
	assert.Equal(t, "environment: production\n", string(data), "existing file must stay untouched")
}

func TestStarterConfigRoundTrips(t *testing.T) {
	mem := setupMemFs(t)
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := "/roundtrip/config.yaml"
	require.NoError(t, WriteStarterConfig(path))

	// Point viper at the in-memory file and reload through the normal path.
	viper.SetFs(mem)
	require.NoError(t, InitViper(path))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DefaultRRFK, cfg.Retrieval.RRFK)
	assert.Equal(t, DefaultWorkingCapacity, cfg.WorkingMemory.Capacity)
	assert.Equal(t, DefaultFidelityThreshold, cfg.Insights.FidelityThreshold)
	assert.Equal(t, DefaultProjectID, cfg.Project.Default)
}
