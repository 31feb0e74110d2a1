// Package config loads extractor parameters from a JSON file.
//
// The file holds either the parameters object itself or a wrapper of the
// form {"parameters": {...}}. Secrets may be overridden from the environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yarkm13/ftpextract/remote"
)

// Environment variables that override secrets from the file.
const (
	EnvPassword   = "FTPEXTRACT_PASSWORD"
	EnvPassphrase = "FTPEXTRACT_PASSPHRASE"
	EnvPrivateKey = "FTPEXTRACT_PRIVATE_KEY"
)

// Mode selects how matched files are written.
type Mode string

const (
	ModeFile  Mode = "file"
	ModeTable Mode = "table"
)

type SSH struct {
	Keys               map[string]string   `json:"keys"`
	DisabledAlgorithms map[string][]string `json:"disabled_algorithms"`
	BannerTimeout      int                 `json:"banner_timeout"`
	KnownHosts         string              `json:"known_hosts"`
	HostKeyFingerprint string              `json:"host_key_fingerprint"`
}

// PrivateKey returns the encrypted private key field.
func (s SSH) PrivateKey() string {
	return s.Keys["#private"]
}

type Connection struct {
	Protocol           remote.Protocol `json:"protocol"`
	Hostname           string          `json:"hostname"`
	Port               int             `json:"port"`
	User               string          `json:"user"`
	Password           string          `json:"#pass"`
	Passphrase         string          `json:"#passphrase"`
	SSH                SSH             `json:"ssh"`
	PassiveMode        bool            `json:"passive_mode"`
	ConnectionTimeout  int             `json:"connection_timeout"`
	MaxRetries         int             `json:"max_retries"`
	BasePath           string          `json:"base_path"`
	InsecureSkipVerify bool            `json:"insecure_skip_verify"`
}

type Destination struct {
	TableName   string   `json:"table_name"`
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
	Columns     []string `json:"columns"`
}

type Config struct {
	Connection            Connection  `json:"connection"`
	Files                 []string    `json:"files"`
	Mode                  Mode        `json:"mode"`
	TableFile             string      `json:"table_file"`
	IncludePathInFilename bool        `json:"include_path_in_filename"`
	AppendTimestamp       bool        `json:"append_timestamp"`
	IncrementalMode       bool        `json:"incremental_mode"`
	Tags                  []string    `json:"tags"`
	HasHeader             bool        `json:"has_header"`
	Destination           Destination `json:"destination"`
	Debug                 bool        `json:"debug"`
}

// Default returns the configuration used for fields the file omits.
func Default() Config {
	return Config{
		Connection: Connection{
			Protocol:          remote.ProtocolSFTP,
			SSH:               SSH{BannerTimeout: 120},
			PassiveMode:       true,
			ConnectionTimeout: 30,
			MaxRetries:        2,
		},
		Mode:      ModeFile,
		HasHeader: true,
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over the defaults, applies environment overrides and
// validates the connection section.
func Parse(data []byte) (*Config, error) {
	var wrapper struct {
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("config: invalid JSON: %w", err)
	}
	if len(bytes.TrimSpace(wrapper.Parameters)) > 0 {
		data = wrapper.Parameters
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: invalid parameters: %w", err)
	}

	cfg.applyEnv()
	if cfg.Connection.Port == 0 {
		cfg.Connection.Port = cfg.Connection.Protocol.DefaultPort()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPassword); v != "" {
		c.Connection.Password = v
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		c.Connection.Passphrase = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		if c.Connection.SSH.Keys == nil {
			c.Connection.SSH.Keys = make(map[string]string)
		}
		c.Connection.SSH.Keys["#private"] = v
	}
}

func validationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("config: validation error: %s", strings.Join(problems, ", "))
}

// Validate checks the connection section.
func (c *Config) Validate() error {
	var problems []string
	conn := c.Connection

	if !conn.Protocol.Valid() {
		problems = append(problems, fmt.Sprintf("connection.protocol: unsupported value %q", conn.Protocol))
	}
	if conn.Hostname == "" {
		problems = append(problems, "connection.hostname: required")
	}
	if conn.User == "" {
		problems = append(problems, "connection.user: required")
	}
	if conn.Port < 0 || conn.Port > 65535 {
		problems = append(problems, fmt.Sprintf("connection.port: %d out of range", conn.Port))
	}
	if conn.ConnectionTimeout < 0 {
		problems = append(problems, "connection.connection_timeout: must not be negative")
	}
	if conn.MaxRetries < 0 {
		problems = append(problems, "connection.max_retries: must not be negative")
	}
	if c.Mode != ModeFile && c.Mode != ModeTable {
		problems = append(problems, fmt.Sprintf("mode: unsupported value %q", c.Mode))
	}
	return validationError(problems)
}

// ValidateExtraction checks the fields a full run needs on top of Validate.
func (c *Config) ValidateExtraction() error {
	var problems []string
	switch c.Mode {
	case ModeTable:
		if c.TableFile == "" && len(c.Files) == 0 {
			problems = append(problems, "table_file: required in table mode")
		}
	default:
		if len(c.Files) == 0 {
			problems = append(problems, "files: at least one pattern is required")
		}
	}
	return validationError(problems)
}

// Params converts the connection section into client parameters.
func (c *Config) Params() remote.Params {
	conn := c.Connection
	return remote.Params{
		Protocol:   conn.Protocol,
		Host:       conn.Hostname,
		Port:       conn.Port,
		User:       conn.User,
		Password:   conn.Password,
		PrivateKey: conn.SSH.PrivateKey(),
		Passphrase: conn.Passphrase,
		SSH: remote.SSHOptions{
			DisabledAlgorithms: conn.SSH.DisabledAlgorithms,
			BannerTimeout:      time.Duration(conn.SSH.BannerTimeout) * time.Second,
			KnownHostsFile:     conn.SSH.KnownHosts,
			HostKeyFingerprint: conn.SSH.HostKeyFingerprint,
		},
		PassiveMode:        conn.PassiveMode,
		InsecureSkipVerify: conn.InsecureSkipVerify,
		Timeout:            time.Duration(conn.ConnectionTimeout) * time.Second,
		MaxRetries:         conn.MaxRetries,
		BasePath:           conn.BasePath,
	}
}

// Patterns returns the patterns to resolve for the configured mode.
func (c *Config) Patterns() []string {
	if c.Mode == ModeTable {
		if c.TableFile != "" {
			return []string{c.TableFile}
		}
		if len(c.Files) > 0 {
			return c.Files[:1]
		}
		return nil
	}
	return c.Files
}
