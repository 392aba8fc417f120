package backend

import (
	"bytes"
	"context"
	"time"

	"autoremedy/internal/credentials"
	"autoremedy/internal/errs"
	"autoremedy/internal/logger"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

// SSHBackend runs the linux command of a template over a one-shot SSH session.
type SSHBackend struct {
	creds   credentials.Resolver
	dialer  Dialer
	timeout time.Duration
	port    int
}

// NewSSHBackend creates an SSH backend. timeout bounds the connection handshake.
func NewSSHBackend(creds credentials.Resolver, dialer Dialer, timeout time.Duration) *SSHBackend {
	if dialer == nil {
		dialer = SSHDialer{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SSHBackend{creds: creds, dialer: dialer, timeout: timeout, port: 22}
}

// Name implements Backend.
func (b *SSHBackend) Name() string { return "ssh" }

// Execute implements Backend.
func (b *SSHBackend) Execute(ctx context.Context, node models.InfrastructureNode, tmpl models.ActionTemplate, params map[string]string) (models.ExecutionResult, error) {
	cred, err := b.creds.Resolve(ctx, node.ID, models.CredentialSSH)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	cmd, err := templates.Render(tmpl, models.FamilyLinux, params)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	addr := node.Address(b.port)
	conn, err := b.dialer.Dial(ctx, addr, cred, b.timeout)
	if err != nil {
		return models.ExecutionResult{}, errs.Execution("ssh connect", err)
	}
	defer conn.Close()

	logger.Debugf("ssh exec node=%s addr=%s action=%s", node.ID, addr, tmpl.ActionType)
	var stdout, stderr bytes.Buffer
	code, err := conn.Run(ctx, cmd, &stdout, &stderr)
	if err != nil {
		if ctx.Err() != nil {
			res := models.Failure("timeout")
			res.Output = stdout.String()
			return res, nil
		}
		return models.ExecutionResult{}, errs.Execution("ssh run", err)
	}

	return models.ExecutionResult{
		Success:  code == 0,
		Output:   stdout.String(),
		Error:    stderr.String(),
		ExitCode: models.ExitCodeOf(code),
	}, nil
}
