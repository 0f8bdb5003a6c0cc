package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/mpataki/foundry/internal/toolchain"
)

const (
	envPrefix  = "FOUNDRY_"
	dataDirEnv = envPrefix + "DATA_DIR"
	fileName   = "config.yaml"
)

type Config struct {
	DataDir string `koanf:"-"`
	DBPath  string `koanf:"db_path"`
	// TemplateDirs hold user YAML templates. Later directories win.
	TemplateDirs []string `koanf:"template_dirs"`

	Defaults   Defaults                      `koanf:"defaults"`
	Generator  Generator                     `koanf:"generator"`
	Toolchain  map[string]toolchain.Commands `koanf:"toolchain"`
	Validation Validation                    `koanf:"validation"`
	Context    Context                       `koanf:"context"`
	Log        Log                           `koanf:"log"`
	Metrics    Metrics                       `koanf:"metrics"`
}

type Defaults struct {
	Budget       int           `koanf:"budget" validate:"min=1,max=10"`
	StageTimeout time.Duration `koanf:"stage_timeout" validate:"gt=0"`
	Language     string        `koanf:"language" validate:"oneof=python java kotlin"`
	Template     string        `koanf:"template" validate:"required"`
}

type Generator struct {
	Provider    string        `koanf:"provider" validate:"oneof=openai lua"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	Script      string        `koanf:"script" validate:"required_if=Provider lua"`
	Temperature float32       `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `koanf:"max_tokens" validate:"gte=0"`
	JSONMode    bool          `koanf:"json_mode"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
}

type Validation struct {
	UnresolvedImports string `koanf:"unresolved_imports" validate:"oneof=warn error"`
}

type Context struct {
	MaxSummaries   int `koanf:"max_summaries" validate:"min=1"`
	MaxDetailBytes int `koanf:"max_detail_bytes" validate:"min=1"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

type Metrics struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `koanf:"addr"`
}

func Default(dataDir string) *Config {
	return &Config{
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, "foundry.db"),
		TemplateDirs: []string{filepath.Join(dataDir, "templates"), ".foundry/templates"},
		Defaults: Defaults{
			Budget:       3,
			StageTimeout: 2 * time.Minute,
			Language:     "python",
			Template:     "fastapi",
		},
		Generator: Generator{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			JSONMode:    true,
			Timeout:     3 * time.Minute,
		},
		Validation: Validation{UnresolvedImports: "warn"},
		Context:    Context{MaxSummaries: 20, MaxDetailBytes: 500},
		Log:        Log{Level: "info", Format: "console"},
	}
}

// New resolves the data directory from FOUNDRY_DATA_DIR or ~/.foundry and
// loads the configuration from it.
func New() (*Config, error) {
	dataDir, ok := os.LookupEnv(dataDirEnv)
	if !ok {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataDir = filepath.Join(homeDir, ".foundry")
	}
	return Load(dataDir)
}

// Load layers defaults, $dataDir/config.yaml and FOUNDRY_* environment
// variables, in that order.
func Load(dataDir string) (*Config, error) {
	k := koanf.New(".")

	path := filepath.Join(dataDir, fileName)
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default(dataDir)
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Generator.APIKey == "" {
		cfg.Generator.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps FOUNDRY_SECTION_FIELD_NAME to section.field_name. Toolchain
// keys carry the language as a second level:
// FOUNDRY_TOOLCHAIN_PYTHON_BUILD is toolchain.python.build.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key == "data_dir" {
		return ""
	}
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	switch section {
	case "db", "template":
		// top-level db_path, template_dirs
		return key
	case "toolchain":
		if lang, step, ok := strings.Cut(field, "_"); ok {
			return section + "." + lang + "." + step
		}
	}
	return section + "." + field
}

func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.WorkspacesDir(), 0755)
}

func (c *Config) WorkspacesDir() string {
	return filepath.Join(c.DataDir, "workspaces")
}

// ScratchDir is where builds and tests materialize projects.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.DataDir, "scratch")
}
