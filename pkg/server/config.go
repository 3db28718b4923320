package server

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/weftlang/weft/pkg/telemetry"
)

// FileConfig is the runner service's on-disk configuration.
type FileConfig struct {
	Addr             string        `yaml:"addr"`
	DataDir          string        `yaml:"data_dir" validate:"required"`
	DBPath           string        `yaml:"db_path" validate:"required"`
	MaxDocumentBytes int64         `yaml:"max_document_bytes" validate:"min=0"`
	RequestTimeout   time.Duration `yaml:"request_timeout" validate:"min=0"`

	Telemetry *telemetry.Config `yaml:"telemetry"`
}

var fileConfigValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads and validates a YAML service configuration. Absent
// telemetry settings fall back to the server defaults.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FileConfig{
		Addr:             ":4040",
		DataDir:          "data",
		DBPath:           "weft.db",
		MaxDocumentBytes: 10 << 20,
		RequestTimeout:   5 * time.Minute,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.ServerConfig()
	}

	if err := fileConfigValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig projects the file configuration onto the HTTP server config.
func (c *FileConfig) ServerConfig() Config {
	return Config{
		Addr:             c.Addr,
		DataDir:          c.DataDir,
		MaxDocumentBytes: c.MaxDocumentBytes,
		RequestTimeout:   c.RequestTimeout,
	}
}
