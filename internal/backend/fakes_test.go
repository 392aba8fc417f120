package backend

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"autoremedy/internal/credentials"
	"autoremedy/pkg/models"
)

type fakeConn struct {
	stdout string
	stderr string
	code   int
	err    error

	mu     sync.Mutex
	cmds   []string
	closed bool
}

func (c *fakeConn) Run(_ context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	c.mu.Lock()
	c.cmds = append(c.cmds, cmd)
	c.mu.Unlock()
	if c.err != nil {
		return -1, c.err
	}
	io.WriteString(stdout, c.stdout)
	io.WriteString(stderr, c.stderr)
	return c.code, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// fakeShell answers each written line with the first reply whose key is a prefix of it.
type fakeShell struct {
	mu      sync.Mutex
	banner  string
	replies map[string]string
	stream  bool
	pending strings.Builder
	written []string
	closed  bool
}

func (s *fakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := strings.TrimSuffix(string(p), "\n")
	s.written = append(s.written, line)
	for prefix, reply := range s.replies {
		if strings.HasPrefix(line, prefix) {
			s.pending.WriteString(reply)
			break
		}
	}
	return len(p), nil
}

func (s *fakeShell) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.banner != "" {
		b := s.banner
		s.banner = ""
		return []byte(b)
	}
	if s.stream && len(s.written) > 0 {
		return []byte("line\n")
	}
	if s.pending.Len() == 0 {
		return nil
	}
	out := []byte(s.pending.String())
	s.pending.Reset()
	return out
}

func (s *fakeShell) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakeDialer struct {
	conn    *fakeConn
	shell   *fakeShell
	err     error
	addrs   []string
	timeout time.Duration
}

func (d *fakeDialer) Dial(_ context.Context, addr string, _ *models.Credential, timeout time.Duration) (Conn, error) {
	d.addrs = append(d.addrs, addr)
	d.timeout = timeout
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) OpenShell(_ context.Context, addr string, _ *models.Credential, _ time.Duration) (Shell, error) {
	d.addrs = append(d.addrs, addr)
	if d.err != nil {
		return nil, d.err
	}
	return d.shell, nil
}

func fastTimings() CLITimings {
	return CLITimings{
		BannerWait:   time.Millisecond,
		SettleDelay:  time.Millisecond,
		CommandWait:  2 * time.Millisecond,
		PollInterval: time.Millisecond,
		MaxWait:      50 * time.Millisecond,
	}
}

func sshCreds(nodeID string, meta map[string]string) *credentials.StaticResolver {
	return credentials.NewStatic(models.Credential{
		NodeID: nodeID, Type: models.CredentialSSH, Username: "admin", Secret: "pw", Metadata: meta,
	})
}

func linuxNode() models.InfrastructureNode {
	return models.NewNode(models.InfrastructureNode{
		ID: "web-1", Hostname: "web-1", IPAddress: "10.0.0.5", NodeType: models.NodeServer, OSType: "ubuntu",
	})
}

func ciscoNode() models.InfrastructureNode {
	return models.NewNode(models.InfrastructureNode{
		ID: "sw-1", Hostname: "sw-1", IPAddress: "10.0.1.1", NodeType: models.NodeNetworkDevice,
		OSType: "ios", Metadata: map[string]string{"device_type": "cisco_ios"},
	})
}
