package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	require.True(t, cfg.InjectMemories)
	require.NotEmpty(t, cfg.DataRoot)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_root: /tmp/acp-data
http_addr: "127.0.0.1:9999"
inject_memories: false
default_agent: claude
agents:
  - name: claude
    kind: stdio
    working_directory: /src/project
    persona:
      system_prompt: "You are a careful assistant."
      properties:
        tone: concise
    enabled_skills: [review]
provider_roots:
  jsonstore: /tmp/jsonstore
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/acp-data", cfg.DataRoot)
	require.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
	require.False(t, cfg.InjectMemories)

	profile, ok := cfg.AgentByName("claude")
	require.True(t, ok)
	require.Equal(t, AgentKindStdio, profile.Kind)
	require.Equal(t, "/src/project", profile.WorkingDirectory)
	require.NotNil(t, profile.Persona)
	require.Equal(t, "concise", profile.Persona.Properties["tone"])

	require.Equal(t, "/tmp/jsonstore", cfg.ProviderRoots["jsonstore"])
	require.Equal(t, filepath.Join("/tmp/acp-data", DefaultSessionFile), cfg.SessionFilePath())
}

func TestAgentByNameMissing(t *testing.T) {
	cfg := &Config{}
	_, ok := cfg.AgentByName("ghost")
	require.False(t, ok)
}
