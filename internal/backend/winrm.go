package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/masterzen/winrm"

	"autoremedy/internal/credentials"
	"autoremedy/internal/errs"
	"autoremedy/internal/logger"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

// PowerShellRunner runs one PowerShell command on a remote Windows host.
type PowerShellRunner interface {
	Run(ctx context.Context, script string) (stdout, stderr string, exitCode int, err error)
}

// WinRMConnector builds a runner for a host.
type WinRMConnector interface {
	Connect(host string, port int, cred *models.Credential) (PowerShellRunner, error)
}

// WinRMOptions controls the WinRM endpoint.
type WinRMOptions struct {
	Port     int
	HTTPS    bool
	Insecure bool
	Timeout  time.Duration
}

// WinRMClientConnector is the masterzen/winrm implementation of WinRMConnector.
type WinRMClientConnector struct {
	Options WinRMOptions
}

type winrmRunner struct {
	client *winrm.Client
}

// Connect implements WinRMConnector.
func (c WinRMClientConnector) Connect(host string, port int, cred *models.Credential) (PowerShellRunner, error) {
	endpoint := winrm.NewEndpoint(host, port, c.Options.HTTPS, c.Options.Insecure, nil, nil, nil, c.Options.Timeout)
	client, err := winrm.NewClient(endpoint, cred.Username, cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("create winrm client: %w", err)
	}
	return &winrmRunner{client: client}, nil
}

func (r *winrmRunner) Run(ctx context.Context, script string) (string, string, int, error) {
	return r.client.RunWithContextWithString(ctx, winrm.Powershell(script), "")
}

// RemoteShellBackend runs the windows command of a template as PowerShell over WinRM.
type RemoteShellBackend struct {
	creds     credentials.Resolver
	connector WinRMConnector
	port      int
	timeout   time.Duration
}

// NewRemoteShellBackend creates a WinRM backend. timeout is the hard bound on one execution.
func NewRemoteShellBackend(creds credentials.Resolver, connector WinRMConnector, port int, timeout time.Duration) *RemoteShellBackend {
	if port <= 0 {
		port = 5985
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &RemoteShellBackend{creds: creds, connector: connector, port: port, timeout: timeout}
}

// Name implements Backend.
func (b *RemoteShellBackend) Name() string { return "winrm" }

type psOutcome struct {
	stdout, stderr string
	code           int
	err            error
}

// Execute implements Backend. An execution exceeding the timeout yields a failed
// result with error "timeout".
func (b *RemoteShellBackend) Execute(ctx context.Context, node models.InfrastructureNode, tmpl models.ActionTemplate, params map[string]string) (models.ExecutionResult, error) {
	cred, err := b.creds.Resolve(ctx, node.ID, models.CredentialWinRM)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	script, err := templates.Render(tmpl, models.FamilyWindows, params)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	host := node.IPAddress
	if host == "" {
		host = node.Hostname
	}
	port := node.Port
	if port <= 0 {
		port = b.port
	}
	runner, err := b.connector.Connect(host, port, cred)
	if err != nil {
		return models.ExecutionResult{}, errs.Execution("winrm connect", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	logger.Debugf("winrm exec node=%s host=%s:%d action=%s", node.ID, host, port, tmpl.ActionType)
	done := make(chan psOutcome, 1)
	go func() {
		var o psOutcome
		o.stdout, o.stderr, o.code, o.err = runner.Run(runCtx, script)
		done <- o
	}()

	select {
	case <-runCtx.Done():
		logger.Warnf("winrm exec node=%s action=%s timed out after %s", node.ID, tmpl.ActionType, b.timeout)
		return models.Failure("timeout"), nil
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled) {
				return models.Failure("timeout"), nil
			}
			return models.ExecutionResult{}, errs.Execution("winrm run", o.err)
		}
		return models.ExecutionResult{
			Success:  o.code == 0,
			Output:   o.stdout,
			Error:    o.stderr,
			ExitCode: models.ExitCodeOf(o.code),
		}, nil
	}
}
