// Package config loads the agentlab configuration from a YAML file, a .env
// file and environment variables, and validates it at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "agentlab.yaml"

type Config struct {
	App        AppConfig                 `mapstructure:"app" yaml:"app"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Server     ServerConfig              `mapstructure:"server" yaml:"server"`
	Gateways   map[string]GatewayConfig  `mapstructure:"gateways" yaml:"gateways"`
	Memory     MemoryConfig              `mapstructure:"memory" yaml:"memory"`
	Workflow   WorkflowConfig            `mapstructure:"workflow" yaml:"workflow"`
	Loader     LoaderConfig              `mapstructure:"loader" yaml:"loader"`
	Governance GovernanceConfig          `mapstructure:"governance" yaml:"governance"`
}

type AppConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Workspace  string `mapstructure:"workspace" yaml:"workspace"`
	PromptsDir string `mapstructure:"prompts_dir" yaml:"prompts_dir"`
	LogDir     string `mapstructure:"log_dir" yaml:"log_dir"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	AuthSecret string `mapstructure:"auth_secret" yaml:"auth_secret"`
}

// Addr is the listen address of the HTTP service.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GatewayConfig struct {
	Token    string `mapstructure:"token" yaml:"token"`
	AppToken string `mapstructure:"app_token" yaml:"app_token,omitempty"`
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Path string `mapstructure:"path" yaml:"path"`
}

type WorkflowConfig struct {
	MinSteps       int           `mapstructure:"min_steps" yaml:"min_steps"`
	MaxSteps       int           `mapstructure:"max_steps" yaml:"max_steps"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	MaxToolSteps   int           `mapstructure:"max_tool_steps" yaml:"max_tool_steps"`
	ResumeInterval time.Duration `mapstructure:"resume_interval" yaml:"resume_interval"`
}

type GovernanceConfig struct {
	DeniedTools    []string `mapstructure:"denied_tools" yaml:"denied_tools"`
	DeniedPatterns []string `mapstructure:"denied_patterns" yaml:"denied_patterns"`
	DeniedHosts    []string `mapstructure:"denied_hosts" yaml:"denied_hosts"`
}

type LoaderConfig struct {
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxChars  int           `mapstructure:"max_chars" yaml:"max_chars"`
	Browser   bool          `mapstructure:"browser" yaml:"browser"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:       "agentlab",
			Workspace:  "./workspace",
			PromptsDir: "./prompts",
			LogDir:     "./logs",
		},
		Providers: map[string]ProviderConfig{
			"openai":    {Model: "gpt-4o-mini", Enabled: true},
			"anthropic": {Model: "claude-3-5-sonnet-latest"},
			"ollama":    {Model: "llama3.1", BaseURL: "http://localhost:11434"},
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Gateways: map[string]GatewayConfig{
			"telegram": {},
			"discord":  {},
			"slack":    {},
		},
		Memory: MemoryConfig{
			Type: "sqlite",
			Path: "./agentlab.db",
		},
		Workflow: WorkflowConfig{
			MinSteps:       3,
			MaxSteps:       5,
			CallTimeout:    2 * time.Minute,
			MaxToolSteps:   10,
			ResumeInterval: 30 * time.Second,
		},
		Loader: LoaderConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Timeout:   30 * time.Second,
			MaxChars:  50000,
		},
		Governance: GovernanceConfig{
			DeniedTools:    []string{},
			DeniedPatterns: []string{},
			DeniedHosts:    []string{"localhost", "127.0.0.1", "169.254.169.254", "metadata.google.internal"},
		},
	}
}

// Load reads defaults, then path (if it exists), then .env and the environment.
// Precedence (highest to lowest): environment, config file, defaults.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.expand()
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("AGENTLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	// Server settings come only from AGENTLAB_ names, never plain HOST or PORT.
	_ = v.BindEnv("server.host", "AGENTLAB_HOST")
	_ = v.BindEnv("server.port", "AGENTLAB_PORT")
	_ = v.BindEnv("server.auth_secret", "AGENTLAB_AUTH_SECRET")
	_ = v.BindEnv("gateways.telegram.token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("gateways.discord.token", "DISCORD_BOT_TOKEN")
	_ = v.BindEnv("gateways.slack.token", "SLACK_BOT_TOKEN")
	_ = v.BindEnv("gateways.slack.app_token", "SLACK_APP_TOKEN")
}

// expand resolves ${VAR} references in secrets.
func (c *Config) expand() {
	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		c.Providers[name] = p
	}
	for name, g := range c.Gateways {
		g.Token = os.ExpandEnv(g.Token)
		g.AppToken = os.ExpandEnv(g.AppToken)
		c.Gateways[name] = g
	}
	c.Server.AuthSecret = os.ExpandEnv(c.Server.AuthSecret)
}

// GetDefaultProvider returns the enabled provider that sorts first by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns the named gateway config if it is enabled and has a token.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	name, p := c.GetDefaultProvider()
	switch {
	case name == "":
		errs = append(errs, errors.New("providers: no enabled provider"))
	case p.Model == "":
		errs = append(errs, fmt.Errorf("providers.%s: model is required", name))
	case p.APIKey == "" && name != "ollama":
		errs = append(errs, fmt.Errorf("providers.%s: api_key is required", name))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Server.Enabled && c.Server.AuthSecret == "" {
		errs = append(errs, errors.New("server.auth_secret: required when the server is enabled"))
	}

	if c.Memory.Path == "" {
		errs = append(errs, errors.New("memory.path: required"))
	}

	w := c.Workflow
	if w.MinSteps < 1 || w.MaxSteps < w.MinSteps {
		errs = append(errs, fmt.Errorf("workflow: invalid step range %d..%d", w.MinSteps, w.MaxSteps))
	}
	if w.CallTimeout <= 0 {
		errs = append(errs, errors.New("workflow.call_timeout: must be positive"))
	}
	if w.MaxToolSteps <= 0 {
		errs = append(errs, errors.New("workflow.max_tool_steps: must be positive"))
	}

	for _, p := range c.Governance.DeniedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("governance.denied_patterns: %w", err))
		}
	}

	if c.Loader.Timeout <= 0 {
		errs = append(errs, errors.New("loader.timeout: must be positive"))
	}

	if g, ok := c.Gateways["slack"]; ok && g.Enabled && g.AppToken == "" {
		errs = append(errs, errors.New("gateways.slack.app_token: required for socket mode"))
	}

	return errors.Join(errs...)
}

// WriteDefault writes the built-in configuration to path as a starting template.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
