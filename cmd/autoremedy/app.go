package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"autoremedy/config"
	"autoremedy/internal/alerts"
	"autoremedy/internal/backend"
	"autoremedy/internal/credentials"
	"autoremedy/internal/diagnosis"
	inputredis "autoremedy/internal/input/redis"
	"autoremedy/internal/inventory"
	"autoremedy/internal/logger"
	"autoremedy/internal/metrics"
	"autoremedy/internal/metricstore"
	"autoremedy/internal/orchestrator"
	"autoremedy/internal/output/logclickhouse"
	"autoremedy/internal/output/logjson"
	"autoremedy/internal/output/notifyhttp"
	"autoremedy/internal/output/notifyjson"
	"autoremedy/internal/output/notifynats"
	"autoremedy/internal/output/rawjson"
	"autoremedy/internal/pipeline"
	"autoremedy/internal/store"
	"autoremedy/internal/store/sqlite"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

// seriesStore is where ingested samples land and where diagnosis and alerting read them.
type seriesStore interface {
	pipeline.MetricWriter
	orchestrator.MetricSource
}

// app holds every wired component. Components are built from config once and shared
// by all commands.
type app struct {
	cfg *config.Config

	store        store.Store
	series       seriesStore
	metrics      *metrics.Metrics
	orchestrator *orchestrator.Orchestrator
	evaluator    *alerts.Evaluator
	pool         *pipeline.RemediationPool
	ingest       *pipeline.MetricPipeline

	closers []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	ar := a.cfg.AutoRemedy

	st, err := openStore(ar.Store)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	series, err := openSeries(ar.MetricsInput.Series, ar.MetricsInput.Redis, st)
	if err != nil {
		return err
	}
	a.series = series

	registry, err := loadTemplates(ar.Templates)
	if err != nil {
		return err
	}

	var inv *inventory.Inventory
	if ar.Inventory.Path != "" {
		inv, err = inventory.Load(ar.Inventory.Path)
		if err != nil {
			return err
		}
		if err := inv.Seed(ctx, st); err != nil {
			return fmt.Errorf("seed inventory: %w", err)
		}
	}

	creds, err := buildCredentials(ar.Credentials, inv)
	if err != nil {
		return err
	}

	engine, err := buildEngine(ar.Diagnosis)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(ar.Notifications)
	if err != nil {
		return err
	}
	if notifier != nil {
		a.closers = append(a.closers, notifier.Close)
	}

	audit, err := buildAudit(ar.Audit)
	if err != nil {
		return err
	}
	if audit != nil {
		a.closers = append(a.closers, audit.Close)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:        st,
		Templates:    registry,
		Dispatcher:   buildDispatcher(ar, creds),
		Engine:       engine,
		Notifier:     notifier,
		Audit:        audit,
		Metrics:      a.metrics,
		MetricSource: series,
	}, orchestratorConfig(ar))
	if err != nil {
		return err
	}
	a.orchestrator = orch
	// Pending deliveries finish before sinks close.
	a.closers = append(a.closers, orch.Close)

	a.evaluator, err = alerts.NewEvaluator(alerts.Config{
		Interval:    ar.Alerts.Interval,
		Window:      ar.Alerts.Window,
		SampleLimit: ar.Alerts.SampleLimit,
	}, st, series, orch, a.metrics)
	if err != nil {
		return err
	}

	a.pool = pipeline.NewRemediationPool(orch, ar.Engine.MaxConcurrent, ar.Engine.QueueSize)
	return nil
}

// metricPipeline builds the Redis ingest pipeline on first use. It owns the series
// writer once built.
func (a *app) metricPipeline() (*pipeline.MetricPipeline, error) {
	if a.ingest != nil {
		return a.ingest, nil
	}
	in := a.cfg.AutoRemedy.MetricsInput
	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         in.Redis.Addr,
		Password:     in.Redis.Password,
		DB:           in.Redis.DB,
		Key:          in.Redis.Key,
		BlockTimeout: in.Redis.BlockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis consumer: %w", err)
	}

	var raw pipeline.RawWriter
	if in.RawArchive.Path != "" {
		w, err := rawjson.NewWriter(in.RawArchive.Path)
		if err != nil {
			consumer.Close()
			return nil, fmt.Errorf("create raw archive writer: %w", err)
		}
		raw = w
		logger.Infof("Raw metric archive: %s", in.RawArchive.Path)
	}

	writer := pipeline.CountingMetricWriter{MetricWriter: a.series, OnWrite: a.metrics.MetricSamples}
	a.ingest = pipeline.NewMetricPipeline(consumer, writer, raw, in.Workers, in.BatchSize, in.FlushInterval)
	logger.Infof("Metric input: redis %s key=%s series=%s", in.Redis.Addr, in.Redis.Key, in.Series.Backend)
	return a.ingest, nil
}

// Close releases components in reverse build order.
func (a *app) Close() error {
	var errs []error
	if a.ingest != nil {
		errs = append(errs, a.ingest.Close())
	} else if a.series != nil {
		errs = append(errs, a.series.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Infof("Store: memory (max_metrics=%d)", cfg.MaxMetrics)
		return store.NewMemoryStore(cfg.MaxMetrics), nil
	case "sqlite":
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.Path, err)
		}
		logger.Infof("Store: sqlite (%s)", cfg.Path)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func openSeries(cfg config.SeriesConfig, rc config.RedisConfig, st store.Store) (seriesStore, error) {
	switch cfg.Backend {
	case "store":
		return store.Metrics{Store: st}, nil
	case "redis":
		rs, err := metricstore.NewRedisStore(metricstore.RedisConfig{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: cfg.KeyPrefix,
			Retention: cfg.Retention,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis metric store: %w", err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown series backend: %s", cfg.Backend)
	}
}

func loadTemplates(cfg config.TemplatesConfig) (*templates.Registry, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return templates.Default(), nil
	}
	reg, err := templates.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load action templates: %w", err)
	}
	logger.Infof("Action templates loaded from %s: %d actions", cfg.Path, len(reg.All()))
	return reg, nil
}

func buildCredentials(cfg config.CredentialsConfig, inv *inventory.Inventory) (credentials.Resolver, error) {
	var chain credentials.Chain
	if cfg.Vault.Enabled {
		v, err := credentials.NewVault(credentials.VaultConfig{
			Address:    cfg.Vault.Address,
			Token:      os.Getenv(cfg.Vault.TokenEnv),
			Namespace:  cfg.Vault.Namespace,
			MountPath:  cfg.Vault.MountPath,
			PathPrefix: cfg.Vault.PathPrefix,
			Timeout:    cfg.Vault.Timeout,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
		logger.Infof("Credentials: vault %s (mount=%s)", cfg.Vault.Address, cfg.Vault.MountPath)
	}
	if inv != nil {
		static, err := inv.Credentials()
		if err != nil {
			return nil, err
		}
		chain = append(chain, static)
	}
	return chain, nil
}

func buildDispatcher(ar config.AutoRemedyConfig, creds credentials.Resolver) *backend.Dispatcher {
	dialer := backend.SSHDialer{}

	classifiers := backend.ClassifierSet{Default: backend.NewMarkerClassifier(ar.CLI.FailureMarkers...)}
	if len(ar.CLI.FamilyMarkers) > 0 {
		classifiers.ByFamily = make(map[string]backend.Classifier, len(ar.CLI.FamilyMarkers))
		for family, markers := range ar.CLI.FamilyMarkers {
			classifiers.ByFamily[family] = backend.NewMarkerClassifier(markers...)
		}
	}

	posix := backend.NewSSHBackend(creds, dialer, ar.SSH.Timeout)
	windows := backend.NewRemoteShellBackend(creds, backend.WinRMClientConnector{Options: backend.WinRMOptions{
		Port:     ar.WinRM.Port,
		HTTPS:    ar.WinRM.HTTPS,
		Insecure: ar.WinRM.Insecure,
		Timeout:  ar.WinRM.Timeout,
	}}, ar.WinRM.Port, ar.WinRM.Timeout)
	network := backend.NewInteractiveCLIBackend(creds, dialer, classifiers, backend.CLITimings{
		BannerWait:   ar.CLI.BannerWait,
		SettleDelay:  ar.CLI.SettleDelay,
		CommandWait:  ar.CLI.CommandWait,
		PollInterval: ar.CLI.PollInterval,
		MaxWait:      ar.CLI.MaxWait,
	}, ar.CLI.ConnectTimeout)
	return backend.NewDispatcher(posix, windows, network)
}

func buildEngine(cfg config.DiagnosisConfig) (diagnosis.Engine, error) {
	keyword := diagnosis.NewKeywordEngine()
	if cfg.Engine != "sigma" {
		return keyword, nil
	}
	eng, stats, err := diagnosis.NewSigmaEngine(cfg.SigmaRulesPath, keyword)
	if err != nil {
		return nil, fmt.Errorf("load sigma rules from %s: %w", cfg.SigmaRulesPath, err)
	}
	logger.Infof("Sigma diagnosis rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
		stats.Loaded,
		stats.SkippedComplex,
		stats.SkippedInvalid,
		stats.TotalFiles,
	)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; keyword diagnosis only")
	}
	return eng, nil
}

func buildNotifier(cfg config.NotificationsConfig) (pipeline.NotificationWriter, error) {
	var sinks pipeline.MultiNotificationWriter
	if cfg.File.Path != "" {
		w, err := notifyjson.NewWriter(cfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("create notification file writer: %w", err)
		}
		sinks = append(sinks, w)
		logger.Infof("Notification output: file (%s)", cfg.File.Path)
	}
	if cfg.HTTP.URL != "" {
		w, err := notifyhttp.NewWriter(notifyhttp.Config{
			URL:      cfg.HTTP.URL,
			Timeout:  cfg.HTTP.Timeout,
			Headers:  cfg.HTTP.Headers,
			Channels: cfg.HTTP.Channels,
		})
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("create notification HTTP writer: %w", err)
		}
		sinks = append(sinks, w)
		logger.Infof("Notification output: http (%s)", cfg.HTTP.URL)
	}
	if cfg.NATS.URL != "" {
		token := ""
		if cfg.NATS.TokenEnv != "" {
			token = os.Getenv(cfg.NATS.TokenEnv)
		}
		w, err := notifynats.NewWriter(notifynats.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          "autoremedy",
			Token:         token,
			Timeout:       cfg.NATS.Timeout,
		})
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("create notification NATS writer: %w", err)
		}
		sinks = append(sinks, w)
		logger.Infof("Notification output: nats (%s)", cfg.NATS.URL)
	}
	if len(sinks) == 0 {
		logger.Warnf("No notification outputs configured; notifications stay pending")
		return nil, nil
	}
	return sinks, nil
}

func buildAudit(cfg config.AuditConfig) (pipeline.LogWriter, error) {
	switch cfg.Mode {
	case "none":
		return nil, nil
	case "file":
		w, err := logjson.NewWriter(cfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("create audit file writer: %w", err)
		}
		logger.Infof("Audit output mode: file (%s)", cfg.File.Path)
		return w, nil
	case "clickhouse":
		w, err := logclickhouse.NewWriter(logclickhouse.Config{
			URL:      cfg.ClickHouse.URL,
			Database: cfg.ClickHouse.Database,
			Table:    cfg.ClickHouse.Table,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Timeout:  cfg.ClickHouse.Timeout,
			Headers:  cfg.ClickHouse.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("create audit ClickHouse writer: %w", err)
		}
		logger.Infof("Audit output mode: clickhouse (%s)", cfg.ClickHouse.URL)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown audit mode: %s", cfg.Mode)
	}
}

func orchestratorConfig(ar config.AutoRemedyConfig) orchestrator.Config {
	tiers := orchestrator.DefaultTiers()
	for name, tc := range ar.Severity {
		sev, err := models.ParseSeverity(name)
		if err != nil {
			continue
		}
		tiers[sev] = orchestrator.Tier{AutoRemediate: tc.AutoRemediate, Channels: tc.Channels}
	}
	return orchestrator.Config{
		AutoRemediation:  ar.Engine.AutoRemediationEnabled(),
		Tiers:            tiers,
		ExecutionTimeout: ar.Engine.RemediationTimeout,
		MaxAutoPerHour:   ar.Engine.MaxAutoRemediationsPerHour,
	}
}
