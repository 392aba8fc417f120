package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"autoremedy/config"
	"autoremedy/internal/logger"
)

const defaultConfigName = "autoremedy.yml"

var (
	configArg string

	rootCmd = &cobra.Command{
		Use:   "autoremedy",
		Short: "Infrastructure auto-remediation engine",
		Long: `autoremedy turns incidents and threshold alerts into diagnosed,
audited remediation commands executed over SSH, WinRM or device CLI sessions.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configArg, "config", "c", "", "path to "+defaultConfigName)
	rootCmd.AddCommand(serveCmd, evaluateCmd, diagnoseCmd, executeCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigName
}

func applyDefaults(cfg *config.Config) {
	ar := &cfg.AutoRemedy

	if ar.Engine.RemediationTimeout <= 0 {
		ar.Engine.RemediationTimeout = 300 * time.Second
	}
	if ar.Engine.MaxConcurrent <= 0 {
		ar.Engine.MaxConcurrent = 10
	}
	if ar.Engine.QueueSize <= 0 {
		ar.Engine.QueueSize = ar.Engine.MaxConcurrent * 4
	}

	if ar.SSH.Port == 0 {
		ar.SSH.Port = 22
	}
	if ar.SSH.Timeout <= 0 {
		ar.SSH.Timeout = 30 * time.Second
	}
	if ar.WinRM.Port == 0 {
		ar.WinRM.Port = 5985
		if ar.WinRM.HTTPS {
			ar.WinRM.Port = 5986
		}
	}
	if ar.WinRM.Timeout <= 0 {
		ar.WinRM.Timeout = 30 * time.Second
	}
	if ar.CLI.ConnectTimeout <= 0 {
		ar.CLI.ConnectTimeout = 30 * time.Second
	}

	if ar.Alerts.Interval <= 0 {
		ar.Alerts.Interval = time.Minute
	}
	if ar.Alerts.Window <= 0 {
		ar.Alerts.Window = 5 * time.Minute
	}
	if ar.Alerts.SampleLimit <= 0 {
		ar.Alerts.SampleLimit = 5
	}

	if ar.Diagnosis.Engine == "" {
		ar.Diagnosis.Engine = "keyword"
	}
	if ar.Store.Driver == "" {
		ar.Store.Driver = "memory"
	}
	if ar.Store.MaxMetrics <= 0 {
		ar.Store.MaxMetrics = 10000
	}

	if ar.MetricsInput.Redis.Addr == "" {
		ar.MetricsInput.Redis.Addr = "127.0.0.1:6379"
	}
	if ar.MetricsInput.Redis.Key == "" {
		ar.MetricsInput.Redis.Key = "node_metrics"
	}
	if ar.MetricsInput.Redis.BlockTimeout == 0 {
		ar.MetricsInput.Redis.BlockTimeout = 5 * time.Second
	}
	if ar.MetricsInput.Workers <= 0 {
		ar.MetricsInput.Workers = 4
	}
	if ar.MetricsInput.BatchSize <= 0 {
		ar.MetricsInput.BatchSize = 500
	}
	if ar.MetricsInput.FlushInterval <= 0 {
		ar.MetricsInput.FlushInterval = 2 * time.Second
	}
	if ar.MetricsInput.Series.Backend == "" {
		ar.MetricsInput.Series.Backend = "store"
	}
	if ar.MetricsInput.Series.KeyPrefix == "" {
		ar.MetricsInput.Series.KeyPrefix = "autoremedy:metrics"
	}
	if ar.MetricsInput.Series.Retention <= 0 {
		ar.MetricsInput.Series.Retention = 24 * time.Hour
	}

	if ar.Credentials.Vault.TokenEnv == "" {
		ar.Credentials.Vault.TokenEnv = "VAULT_TOKEN"
	}
	if ar.Credentials.Vault.MountPath == "" {
		ar.Credentials.Vault.MountPath = "secret"
	}

	if ar.Audit.Mode == "" {
		ar.Audit.Mode = "file"
	}
	if ar.Audit.File.Path == "" {
		ar.Audit.File.Path = "output/remediation_logs.jsonl"
	}
	if ar.Audit.ClickHouse.Database == "" {
		ar.Audit.ClickHouse.Database = "autoremedy"
	}
	if ar.Audit.ClickHouse.Table == "" {
		ar.Audit.ClickHouse.Table = "remediation_logs"
	}

	if ar.API.Listen == "" {
		ar.API.Listen = "127.0.0.1:8080"
	}
	if ar.API.Mode == "" {
		ar.API.Mode = "release"
	}

	if ar.Logging.Level == "" {
		ar.Logging.Level = "info"
	}
}

// loadConfig resolves, parses, defaults and validates the config, then initializes logging.
func loadConfig() (*config.Config, string, error) {
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("load config %s: %w", configPath, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, configPath, err
	}

	lg := cfg.AutoRemedy.Logging
	if err := logger.Init(lg.Enabled, lg.Level, lg.File, lg.Console); err != nil {
		return nil, configPath, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, configPath, nil
}
