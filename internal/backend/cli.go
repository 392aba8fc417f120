package backend

import (
	"context"
	"strings"
	"time"

	"autoremedy/internal/credentials"
	"autoremedy/internal/errs"
	"autoremedy/internal/logger"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

// CLITimings bounds each phase of an interactive session.
type CLITimings struct {
	BannerWait   time.Duration
	SettleDelay  time.Duration
	CommandWait  time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration
}

// DefaultCLITimings returns the timings used when none are configured.
func DefaultCLITimings() CLITimings {
	return CLITimings{
		BannerWait:   time.Second,
		SettleDelay:  500 * time.Millisecond,
		CommandWait:  2 * time.Second,
		PollInterval: 500 * time.Millisecond,
		MaxWait:      30 * time.Second,
	}
}

func (t CLITimings) withDefaults() CLITimings {
	d := DefaultCLITimings()
	if t.BannerWait <= 0 {
		t.BannerWait = d.BannerWait
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = d.SettleDelay
	}
	if t.CommandWait <= 0 {
		t.CommandWait = d.CommandWait
	}
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	if t.MaxWait <= 0 {
		t.MaxWait = d.MaxWait
	}
	return t
}

// InteractiveCLIBackend drives network device CLIs over an SSH PTY shell.
type InteractiveCLIBackend struct {
	creds       credentials.Resolver
	dialer      Dialer
	classifiers ClassifierSet
	timings     CLITimings
	timeout     time.Duration
}

// NewInteractiveCLIBackend creates a network device backend.
func NewInteractiveCLIBackend(creds credentials.Resolver, dialer Dialer, classifiers ClassifierSet, timings CLITimings, connectTimeout time.Duration) *InteractiveCLIBackend {
	if dialer == nil {
		dialer = SSHDialer{}
	}
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &InteractiveCLIBackend{
		creds:       creds,
		dialer:      dialer,
		classifiers: classifiers,
		timings:     timings.withDefaults(),
		timeout:     connectTimeout,
	}
}

// Name implements Backend.
func (b *InteractiveCLIBackend) Name() string { return "interactive_cli" }

// Execute implements Backend.
func (b *InteractiveCLIBackend) Execute(ctx context.Context, node models.InfrastructureNode, tmpl models.ActionTemplate, params map[string]string) (models.ExecutionResult, error) {
	cred, err := b.creds.Resolve(ctx, node.ID, models.CredentialSSH)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	family := node.Class.CommandFamily()
	cmd, err := templates.Render(tmpl, family, params)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	profile := LookupDevice(string(node.Class.Family))
	port := profile.Port
	if node.Port > 0 {
		port = node.Port
	}
	addr := node.Address(port)

	shell, err := b.dialer.OpenShell(ctx, addr, cred, b.timeout)
	if err != nil {
		return models.ExecutionResult{}, errs.Execution("cli connect", err)
	}
	defer shell.Close()

	result := models.ExecutionResult{DeviceFamily: string(node.Class.Family)}
	output, err := b.converse(ctx, shell, profile, cred, cmd)
	result.Output = output
	if err != nil {
		if ctx.Err() != nil {
			result.Error = "timeout"
			return result, nil
		}
		return models.ExecutionResult{}, errs.Execution("cli session", err)
	}

	result.Success = b.classifiers.For(family).Classify(output)
	if !result.Success {
		result.Error = "command output indicates failure"
	}
	logger.Debugf("cli exec node=%s family=%s action=%s success=%t", node.ID, node.Class.Family, tmpl.ActionType, result.Success)
	return result, nil
}

func (b *InteractiveCLIBackend) converse(ctx context.Context, shell Shell, profile DeviceProfile, cred *models.Credential, cmd string) (string, error) {
	t := b.timings
	if err := sleepCtx(ctx, t.BannerWait); err != nil {
		return "", err
	}
	shell.Drain()

	if secret := cred.Metadata[models.EnablePasswordKey]; profile.EnableMode && secret != "" {
		if _, err := shell.Write([]byte("enable\n")); err != nil {
			return "", err
		}
		if err := sleepCtx(ctx, t.SettleDelay); err != nil {
			return "", err
		}
		if _, err := shell.Write([]byte(secret + "\n")); err != nil {
			return "", err
		}
		if err := sleepCtx(ctx, t.SettleDelay); err != nil {
			return "", err
		}
		shell.Drain()
	}

	if _, err := shell.Write([]byte(cmd + "\n")); err != nil {
		return "", err
	}
	deadline := time.Now().Add(t.MaxWait)
	var out strings.Builder
	if err := sleepCtx(ctx, minDuration(t.CommandWait, t.MaxWait)); err != nil {
		return out.String(), err
	}
	for {
		chunk := shell.Drain()
		if len(chunk) == 0 {
			break
		}
		out.Write(chunk)
		if !time.Now().Before(deadline) {
			break
		}
		if err := sleepCtx(ctx, minDuration(t.PollInterval, time.Until(deadline))); err != nil {
			return out.String(), err
		}
	}
	return out.String(), nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
