package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/internal/credentials"
	"autoremedy/internal/errs"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

func template(t *testing.T, action string) models.ActionTemplate {
	t.Helper()
	tmpl, err := templates.Default().Get(action)
	require.NoError(t, err)
	return tmpl
}

func TestSSHBackendSuccess(t *testing.T) {
	conn := &fakeConn{stdout: "ok\n"}
	dialer := &fakeDialer{conn: conn}
	b := NewSSHBackend(sshCreds("web-1", nil), dialer, 5*time.Second)

	res, err := b.Execute(context.Background(), linuxNode(), template(t, "restart_service"), map[string]string{"service_name": "nginx"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ok\n", res.Output)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, []string{"sudo systemctl restart nginx"}, conn.cmds)
	assert.Equal(t, []string{"10.0.0.5:22"}, dialer.addrs)
	assert.Equal(t, 5*time.Second, dialer.timeout)
	assert.True(t, conn.closed)
}

func TestSSHBackendNonZeroExit(t *testing.T) {
	conn := &fakeConn{stderr: "Failed to restart nginx.service", code: 5}
	b := NewSSHBackend(sshCreds("web-1", nil), &fakeDialer{conn: conn}, 0)

	res, err := b.Execute(context.Background(), linuxNode(), template(t, "restart_service"), nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 5, *res.ExitCode)
	assert.Contains(t, res.Error, "Failed to restart")
	assert.True(t, conn.closed)
}

func TestSSHBackendMissingCredential(t *testing.T) {
	b := NewSSHBackend(credentials.NewStatic(), &fakeDialer{conn: &fakeConn{}}, 0)
	_, err := b.Execute(context.Background(), linuxNode(), template(t, "restart_service"), nil)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestSSHBackendDialFailure(t *testing.T) {
	b := NewSSHBackend(sshCreds("web-1", nil), &fakeDialer{err: errors.New("connection refused")}, 0)
	_, err := b.Execute(context.Background(), linuxNode(), template(t, "restart_service"), nil)
	require.Error(t, err)
	assert.True(t, errs.IsExecution(err))
}

func TestSSHBackendMissingFamilyCommand(t *testing.T) {
	b := NewSSHBackend(sshCreds("web-1", nil), &fakeDialer{conn: &fakeConn{}}, 0)
	_, err := b.Execute(context.Background(), linuxNode(), template(t, "save_network_config"), nil)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

type blockingRunner struct {
	release chan struct{}
}

func (r *blockingRunner) Run(_ context.Context, _ string) (string, string, int, error) {
	<-r.release
	return "", "", 0, nil
}

type scriptedRunner struct {
	stdout, stderr string
	code           int
	scripts        []string
}

func (r *scriptedRunner) Run(_ context.Context, script string) (string, string, int, error) {
	r.scripts = append(r.scripts, script)
	return r.stdout, r.stderr, r.code, nil
}

type fakeConnector struct {
	runner PowerShellRunner
	host   string
	port   int
}

func (c *fakeConnector) Connect(host string, port int, _ *models.Credential) (PowerShellRunner, error) {
	c.host, c.port = host, port
	return c.runner, nil
}

func winNode() models.InfrastructureNode {
	return models.NewNode(models.InfrastructureNode{
		ID: "dc-1", Hostname: "dc-1", IPAddress: "10.0.2.10", NodeType: models.NodeServer, OSType: "windows_server",
	})
}

func winCreds() *credentials.StaticResolver {
	return credentials.NewStatic(models.Credential{NodeID: "dc-1", Type: models.CredentialWinRM, Username: "Administrator", Secret: "pw"})
}

func TestRemoteShellTimeout(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	defer close(runner.release)
	b := NewRemoteShellBackend(winCreds(), &fakeConnector{runner: runner}, 0, 50*time.Millisecond)

	start := time.Now()
	res, err := b.Execute(context.Background(), winNode(), template(t, "restart_service"), map[string]string{"service_name": "Spooler"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "timeout", res.Error)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRemoteShellSuccess(t *testing.T) {
	runner := &scriptedRunner{stdout: "Flushed"}
	conn := &fakeConnector{runner: runner}
	b := NewRemoteShellBackend(winCreds(), conn, 0, time.Second)

	res, err := b.Execute(context.Background(), winNode(), template(t, "clear_dns_cache"), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Flushed", res.Output)
	assert.Equal(t, []string{"ipconfig /flushdns"}, runner.scripts)
	assert.Equal(t, "10.0.2.10", conn.host)
	assert.Equal(t, 5985, conn.port)
}

func TestRemoteShellNonZeroExit(t *testing.T) {
	b := NewRemoteShellBackend(winCreds(), &fakeConnector{runner: &scriptedRunner{stderr: "Access denied", code: 1}}, 5986, time.Second)
	res, err := b.Execute(context.Background(), winNode(), template(t, "fix_printer"), nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Access denied", res.Error)
}

func TestInteractiveCLIEnableAndSuccess(t *testing.T) {
	shell := &fakeShell{
		banner: "User Access Verification\nsw-1>",
		replies: map[string]string{
			"enable":       "Password: ",
			"en4ble":       "sw-1#",
			"write memory": "Building configuration...\n[OK]\nsw-1#",
		},
	}
	b := NewInteractiveCLIBackend(sshCreds("sw-1", map[string]string{models.EnablePasswordKey: "en4ble"}),
		&fakeDialer{shell: shell}, ClassifierSet{}, fastTimings(), 0)

	res, err := b.Execute(context.Background(), ciscoNode(), template(t, "save_network_config"), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "[OK]")
	assert.NotContains(t, res.Output, "Password")
	assert.Equal(t, []string{"enable", "en4ble", "write memory"}, shell.written)
	assert.Equal(t, "cisco_ios", res.DeviceFamily)
	assert.True(t, shell.closed)
}

func TestInteractiveCLIInvalidInput(t *testing.T) {
	shell := &fakeShell{replies: map[string]string{
		"interface": "interface Gi0/9; shutdown; no shutdown\n% Invalid input detected at '^' marker.\nsw-1>",
	}}
	b := NewInteractiveCLIBackend(sshCreds("sw-1", nil), &fakeDialer{shell: shell}, ClassifierSet{}, fastTimings(), 0)

	res, err := b.Execute(context.Background(), ciscoNode(), template(t, "reset_interface"), map[string]string{"interface": "Gi0/9"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, []string{"interface Gi0/9; shutdown; no shutdown"}, shell.written)
}

func TestInteractiveCLISkipsEnableWithoutSecret(t *testing.T) {
	shell := &fakeShell{replies: map[string]string{"clear arp-cache": "sw-1>"}}
	b := NewInteractiveCLIBackend(sshCreds("sw-1", nil), &fakeDialer{shell: shell}, ClassifierSet{}, fastTimings(), 0)

	res, err := b.Execute(context.Background(), ciscoNode(), template(t, "clear_arp_cache"), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"clear arp-cache"}, shell.written)
}

func TestInteractiveCLIBoundedByMaxWait(t *testing.T) {
	shell := &fakeShell{stream: true}
	b := NewInteractiveCLIBackend(sshCreds("sw-1", nil), &fakeDialer{shell: shell}, ClassifierSet{}, fastTimings(), 0)

	start := time.Now()
	res, err := b.Execute(context.Background(), ciscoNode(), template(t, "clear_arp_cache"), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, res.Output, "line")
}

func TestInteractiveCLIUsesFamilyKey(t *testing.T) {
	node := models.NewNode(models.InfrastructureNode{
		ID: "fw-1", IPAddress: "10.0.3.1", NodeType: "firewall", OSType: "panos",
		Metadata: map[string]string{"device_type": "palo_alto"},
	})
	shell := &fakeShell{replies: map[string]string{"clear arp all": "ok"}}
	b := NewInteractiveCLIBackend(sshCreds("fw-1", nil), &fakeDialer{shell: shell}, ClassifierSet{}, fastTimings(), 0)

	res, err := b.Execute(context.Background(), node, template(t, "clear_arp_cache"), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"clear arp all"}, shell.written)
}

func TestDispatcher(t *testing.T) {
	posix := NewSSHBackend(sshCreds("web-1", nil), &fakeDialer{conn: &fakeConn{}}, 0)
	d := NewDispatcher(posix, nil, nil)

	b, err := d.For(linuxNode())
	require.NoError(t, err)
	assert.Equal(t, "ssh", b.Name())

	_, err = d.For(winNode())
	assert.True(t, errs.IsValidation(err))

	unknown := models.NewNode(models.InfrastructureNode{ID: "x", NodeType: "printer", OSType: "firmware"})
	_, err = d.For(unknown)
	assert.True(t, errs.IsValidation(err))

	assert.NoError(t, d.Supports(linuxNode(), template(t, "clear_disk_space")))
	assert.True(t, errs.IsValidation(d.Supports(linuxNode(), template(t, "reload_network_device"))))
}
