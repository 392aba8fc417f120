package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"autoremedy/pkg/models"
)

// Conn is one authenticated SSH connection used for a single command.
type Conn interface {
	// Run executes cmd in a fresh session and returns its exit status. A non-nil error
	// means the session broke before an exit status was received.
	Run(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error)
	Close() error
}

// Shell is an interactive PTY session on a network device.
type Shell interface {
	io.Writer
	// Drain returns the bytes received since the previous call without blocking.
	Drain() []byte
	Close() error
}

// Dialer opens SSH connections and shells.
type Dialer interface {
	Dial(ctx context.Context, addr string, cred *models.Credential, timeout time.Duration) (Conn, error)
	OpenShell(ctx context.Context, addr string, cred *models.Credential, timeout time.Duration) (Shell, error)
}

// SSHDialer is the x/crypto/ssh implementation of Dialer. Host keys are not verified.
type SSHDialer struct{}

func clientConfig(cred *models.Credential, timeout time.Duration) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if key := cred.Metadata["private_key"]; key != "" {
		signer, err := ssh.ParsePrivateKey([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cred.Secret != "" {
		secret := cred.Secret
		auth = append(auth,
			ssh.Password(secret),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = secret
				}
				return answers, nil
			}),
		)
	}
	return &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

func (SSHDialer) connect(ctx context.Context, addr string, cred *models.Credential, timeout time.Duration) (*ssh.Client, error) {
	cfg, err := clientConfig(cred, timeout)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if timeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	_ = raw.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// Dial implements Dialer.
func (d SSHDialer) Dial(ctx context.Context, addr string, cred *models.Credential, timeout time.Duration) (Conn, error) {
	client, err := d.connect(ctx, addr, cred, timeout)
	if err != nil {
		return nil, err
	}
	return &sshConn{client: client}, nil
}

// OpenShell implements Dialer.
func (d SSHDialer) OpenShell(ctx context.Context, addr string, cred *models.Credential, timeout time.Duration) (Shell, error) {
	client, err := d.connect(ctx, addr, cred, timeout)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}
	modes := ssh.TerminalModes{ssh.ECHO: 0, ssh.TTY_OP_ISPEED: 14400, ssh.TTY_OP_OSPEED: 14400}
	if err := session.RequestPty("vt100", 200, 80, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	sh := &sshShell{client: client, session: session, stdin: stdin}
	go sh.pump(stdout)
	return sh, nil
}

type sshConn struct {
	client *ssh.Client
}

func (c *sshConn) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()
	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return -1, ctx.Err()
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, err
	}
}

func (c *sshConn) Close() error {
	return c.client.Close()
}

type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *sshShell) pump(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *sshShell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *sshShell) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}

func (s *sshShell) Close() error {
	sessErr := s.session.Close()
	clientErr := s.client.Close()
	if sessErr != nil && !errors.Is(sessErr, io.EOF) {
		return sessErr
	}
	return clientErr
}
