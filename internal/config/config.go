package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultHTTPAddr         = "127.0.0.1:8417"
	DefaultHistoryLimit     = 50
	DefaultSessionFile      = "agent-sessions.json"
	DefaultMemoryFile       = "memories.json"
	DefaultConversationsDir = "conversations"
)

// AgentKind distinguishes how an agent is driven for session continuation.
type AgentKind string

const (
	// AgentKindStdio agents are spawned subprocesses speaking ACP over pipes.
	AgentKindStdio AgentKind = "stdio"
	// AgentKindCLI agents are resumed by shelling out to their own CLI.
	AgentKindCLI AgentKind = "cli"
)

// Persona carries the one-shot identity material injected into a fresh agent
// session: a system prompt, free-form key/value properties, and guidelines.
type Persona struct {
	SystemPrompt string            `mapstructure:"system_prompt" yaml:"system_prompt"`
	Properties   map[string]string `mapstructure:"properties" yaml:"properties"`
	Guidelines   string            `mapstructure:"guidelines" yaml:"guidelines"`
}

// AgentProfile describes one configured agent the orchestrator can target.
type AgentProfile struct {
	Name             string    `mapstructure:"name" yaml:"name"`
	Kind             AgentKind `mapstructure:"kind" yaml:"kind"`
	WorkingDirectory string    `mapstructure:"working_directory" yaml:"working_directory"`
	ResumeCommand    string    `mapstructure:"resume_command" yaml:"resume_command"`
	Persona          *Persona  `mapstructure:"persona" yaml:"persona"`
	EnabledSkills    []string  `mapstructure:"enabled_skills" yaml:"enabled_skills"`
}

// Config is the runtime configuration shared across the daemon. The data root
// is injected here once at startup; nothing below it branches on platform.
type Config struct {
	DataRoot         string         `mapstructure:"data_root" yaml:"data_root"`
	HTTPAddr         string         `mapstructure:"http_addr" yaml:"http_addr"`
	InjectMemories   bool           `mapstructure:"inject_memories" yaml:"inject_memories"`
	GlobalGuidelines string         `mapstructure:"global_guidelines" yaml:"global_guidelines"`
	SkillsDir        string         `mapstructure:"skills_dir" yaml:"skills_dir"`
	DefaultAgent     string         `mapstructure:"default_agent" yaml:"default_agent"`
	Agents           []AgentProfile `mapstructure:"agents" yaml:"agents"`

	// Roots of the foreign session stores the history aggregator reads.
	ProviderRoots map[string]string `mapstructure:"provider_roots" yaml:"provider_roots"`
}

// SessionFilePath returns the location of the persisted agent-session map.
func (c *Config) SessionFilePath() string {
	return filepath.Join(c.DataRoot, DefaultSessionFile)
}

// MemoryFilePath returns the location of the memory store file.
func (c *Config) MemoryFilePath() string {
	return filepath.Join(c.DataRoot, DefaultMemoryFile)
}

// ConversationsDir returns the directory holding native conversation logs.
func (c *Config) ConversationsDir() string {
	return filepath.Join(c.DataRoot, DefaultConversationsDir)
}

// AgentByName returns the configured profile for name.
func (c *Config) AgentByName(name string) (AgentProfile, bool) {
	for _, profile := range c.Agents {
		if profile.Name == name {
			return profile, true
		}
	}
	return AgentProfile{}, false
}

// Load reads configuration from the given file (YAML), environment variables
// prefixed ACP_REMOTE_, and defaults, in ascending precedence of default <
// file < env. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("inject_memories", true)
	v.SetDefault("data_root", defaultDataRoot())

	v.SetEnvPrefix("ACP_REMOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataRoot = expandHome(cfg.DataRoot)
	cfg.SkillsDir = expandHome(cfg.SkillsDir)
	for source, root := range cfg.ProviderRoots {
		cfg.ProviderRoots[source] = expandHome(root)
	}
	return &cfg, nil
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".acp-remote"
	}
	return filepath.Join(home, ".acp-remote")
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
