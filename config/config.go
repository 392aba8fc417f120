package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	AutoRemedy AutoRemedyConfig `yaml:"autoremedy" validate:"required"`
}

// AutoRemedyConfig is the project configuration.
type AutoRemedyConfig struct {
	Engine        EngineConfig          `yaml:"engine"`
	Severity      map[string]TierConfig `yaml:"severity" validate:"dive,keys,oneof=low medium high critical,endkeys"`
	SSH           SSHConfig             `yaml:"ssh"`
	WinRM         WinRMConfig           `yaml:"winrm"`
	CLI           CLIConfig             `yaml:"cli"`
	Alerts        AlertsConfig          `yaml:"alerts"`
	Templates     TemplatesConfig       `yaml:"templates"`
	Diagnosis     DiagnosisConfig       `yaml:"diagnosis"`
	Store         StoreConfig           `yaml:"store"`
	MetricsInput  MetricsInputConfig    `yaml:"metrics_input"`
	Credentials   CredentialsConfig     `yaml:"credentials"`
	Inventory     InventoryConfig       `yaml:"inventory"`
	Notifications NotificationsConfig   `yaml:"notifications"`
	Audit         AuditConfig           `yaml:"audit"`
	API           APIConfig             `yaml:"api"`
	Logging       LoggingConfig         `yaml:"logging"`
}

// EngineConfig controls the remediation orchestrator.
type EngineConfig struct {
	AutoRemediation            *bool         `yaml:"auto_remediation"`
	RemediationTimeout         time.Duration `yaml:"remediation_timeout" validate:"gte=0"`
	MaxConcurrent              int           `yaml:"max_concurrent" validate:"gte=0"`
	QueueSize                  int           `yaml:"queue_size" validate:"gte=0"`
	MaxAutoRemediationsPerHour int           `yaml:"max_auto_remediations_per_hour" validate:"gte=0"`
}

// TierConfig is the policy for one severity.
type TierConfig struct {
	AutoRemediate bool     `yaml:"auto_remediate"`
	Channels      []string `yaml:"channels" validate:"dive,required"`
}

// SSHConfig controls the SSH backend.
type SSHConfig struct {
	Port    int           `yaml:"port" validate:"gte=0,lte=65535"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// WinRMConfig controls the WinRM remote shell backend.
type WinRMConfig struct {
	Port     int           `yaml:"port" validate:"gte=0,lte=65535"`
	HTTPS    bool          `yaml:"https"`
	Insecure bool          `yaml:"insecure"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// CLIConfig controls interactive network device sessions.
type CLIConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gte=0"`
	BannerWait     time.Duration `yaml:"banner_wait" validate:"gte=0"`
	SettleDelay    time.Duration `yaml:"settle_delay" validate:"gte=0"`
	CommandWait    time.Duration `yaml:"command_wait" validate:"gte=0"`
	PollInterval   time.Duration `yaml:"poll_interval" validate:"gte=0"`
	MaxWait        time.Duration `yaml:"max_wait" validate:"gte=0"`
	// FailureMarkers replaces the default markers for every device family.
	FailureMarkers []string `yaml:"failure_markers"`
	// FamilyMarkers overrides markers per device family, e.g. juniper_junos.
	FamilyMarkers map[string][]string `yaml:"family_markers"`
}

// AlertsConfig controls rule evaluation.
type AlertsConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`
	Window      time.Duration `yaml:"window" validate:"gte=0"`
	SampleLimit int           `yaml:"sample_limit" validate:"gte=0"`
}

// TemplatesConfig controls the action template registry.
type TemplatesConfig struct {
	Path string `yaml:"path"`
}

// DiagnosisConfig selects the diagnosis engine.
type DiagnosisConfig struct {
	Engine         string `yaml:"engine" validate:"omitempty,oneof=keyword sigma"`
	SigmaRulesPath string `yaml:"sigma_rules_path" validate:"required_if=Engine sigma"`
}

// StoreConfig selects persistence.
type StoreConfig struct {
	Driver     string `yaml:"driver" validate:"omitempty,oneof=memory sqlite"`
	Path       string `yaml:"path" validate:"required_if=Driver sqlite"`
	MaxMetrics int    `yaml:"max_metrics" validate:"gte=0"`
}

// MetricsInputConfig controls metric sample ingestion from a Redis list.
type MetricsInputConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Redis         RedisConfig      `yaml:"redis"`
	Workers       int              `yaml:"workers" validate:"gte=0"`
	BatchSize     int              `yaml:"batch_size" validate:"gte=0"`
	FlushInterval time.Duration    `yaml:"flush_interval" validate:"gte=0"`
	Series        SeriesConfig     `yaml:"series"`
	RawArchive    FileOutputConfig `yaml:"raw_archive"`
}

// RedisConfig controls a Redis connection.
type RedisConfig struct {
	Addr         string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout" validate:"gte=0"`
}

// SeriesConfig selects where samples are kept: the store or Redis sorted sets.
type SeriesConfig struct {
	Backend   string        `yaml:"backend" validate:"omitempty,oneof=store redis"`
	KeyPrefix string        `yaml:"key_prefix"`
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// CredentialsConfig selects credential sources. Inventory credentials are always used;
// Vault is consulted first when enabled.
type CredentialsConfig struct {
	Vault VaultConfig `yaml:"vault"`
}

// VaultConfig controls the Vault KV resolver.
type VaultConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Address    string        `yaml:"address" validate:"required_if=Enabled true"`
	TokenEnv   string        `yaml:"token_env"`
	Namespace  string        `yaml:"namespace"`
	MountPath  string        `yaml:"mount_path"`
	PathPrefix string        `yaml:"path_prefix"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
}

// InventoryConfig points at the node inventory file.
type InventoryConfig struct {
	Path string `yaml:"path"`
}

// NotificationsConfig controls notification delivery sinks. Every enabled sink
// receives every notification.
type NotificationsConfig struct {
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
	NATS NATSOutputConfig `yaml:"nats"`
}

// AuditConfig controls the remediation log mirror.
type AuditConfig struct {
	Mode       string                 `yaml:"mode" validate:"omitempty,oneof=none file clickhouse"`
	File       FileOutputConfig       `yaml:"file"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers  map[string]string `yaml:"headers"`
}

// FileOutputConfig config for local JSON lines output. An empty path disables it.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for webhook output. An empty URL disables it.
type HTTPOutputConfig struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Timeout  time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers  map[string]string `yaml:"headers"`
	Channels []string          `yaml:"channels"`
}

// NATSOutputConfig config for NATS output. An empty URL disables it.
type NATSOutputConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	TokenEnv      string        `yaml:"token_env"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
	Mode   string `yaml:"mode" validate:"omitempty,oneof=debug release test"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints. Call it after defaults are applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// AutoRemediationEnabled reports the engine switch; unset means enabled.
func (e EngineConfig) AutoRemediationEnabled() bool {
	return e.AutoRemediation == nil || *e.AutoRemediation
}
