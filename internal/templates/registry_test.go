package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

func TestDefaultRegistryHasDiagnosisActions(t *testing.T) {
	r := Default()
	for _, action := range []string{"clear_disk_space", "expand_volume", "restart_service", "kill_process",
		"scale_service", "restart_container", "update_firewall", "save_network_config"} {
		assert.True(t, r.Has(action), action)
	}

	_, err := r.Get("reboot_universe")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestRenderSubstitutesParameters(t *testing.T) {
	tmpl, err := Default().Get("restart_service")
	require.NoError(t, err)

	cmd, err := Render(tmpl, models.FamilyLinux, map[string]string{"service_name": "nginx"})
	require.NoError(t, err)
	assert.Equal(t, "sudo systemctl restart nginx", cmd)

	cmd, err = Render(tmpl, models.FamilyWindows, nil)
	require.NoError(t, err)
	assert.Equal(t, "Restart-Service -Name {service_name} -Force", cmd)
}

func TestSubstituteIsSinglePass(t *testing.T) {
	got := Substitute("echo {a} {b}", map[string]string{"a": "{b}", "b": "INJECTED"})
	assert.Equal(t, "echo {b} INJECTED", got)

	got = Substitute("kill {pid}", map[string]string{"pid": "{pid}"})
	assert.Equal(t, "kill {pid}", got)
}

func TestPlaceholdersAndMissing(t *testing.T) {
	assert.Equal(t, []string{"drive_letter"}, Placeholders(
		"Resize-Partition -DriveLetter {drive_letter} -Size (Get-PartitionSupportedSize -DriveLetter {drive_letter}).SizeMax"))
	assert.Empty(t, Placeholders("Get-Service | Where-Object {$_.Status -eq 'Running'}"))

	tmpl, err := Default().Get("expand_volume")
	require.NoError(t, err)
	missing, err := Missing(tmpl, models.FamilyLinux, map[string]string{"size": "10G"})
	require.NoError(t, err)
	assert.Equal(t, []string{"volume"}, missing)

	_, err = Missing(tmpl, models.FamilyCisco, nil)
	assert.True(t, errs.IsValidation(err))

	assert.Equal(t, map[string]string{"drive_letter": "D"},
		Fill(tmpl, map[string]string{"drive_letter": "D", "rule_id": "r-1"}))
}

func TestServerChecksHaveLinuxAndWindowsCommands(t *testing.T) {
	r := Default()
	for _, check := range ServerChecks {
		tmpl, err := r.Get(check)
		require.NoError(t, err, check)
		for _, family := range []string{models.FamilyLinux, models.FamilyWindows} {
			cmd, ok := tmpl.Command(family)
			require.True(t, ok, "%s/%s", check, family)
			assert.Empty(t, Placeholders(cmd), "%s/%s", check, family)
		}
	}
	for _, action := range []string{"restart_explorer", "fix_display", "clear_temp_files", "fix_windows_update", "repair_network"} {
		tmpl, err := r.Get(action)
		require.NoError(t, err, action)
		_, ok := tmpl.Command(models.FamilyWindows)
		assert.True(t, ok, action)
	}
}

func TestRenderMissingFamily(t *testing.T) {
	tmpl, err := Default().Get("save_network_config")
	require.NoError(t, err)

	_, err = Render(tmpl, models.FamilyLinux, nil)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestGetReturnsCopy(t *testing.T) {
	r := Default()
	tmpl, err := r.Get("clear_arp_cache")
	require.NoError(t, err)
	tmpl.Commands["cisco"] = "reload"

	again, err := r.Get("clear_arp_cache")
	require.NoError(t, err)
	assert.Equal(t, "clear arp-cache", again.Commands["cisco"])
}

func TestLoadMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yml")
	content := `version: 1
templates:
  - action_type: restart_service
    commands:
      linux: "sudo service {service_name} restart"
  - action_type: rotate_logs
    commands:
      linux: "sudo logrotate -f /etc/logrotate.conf"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	restart, err := r.Get("restart_service")
	require.NoError(t, err)
	assert.Equal(t, "sudo service {service_name} restart", restart.Commands["linux"])
	assert.Equal(t, "Restart-Service -Name {service_name} -Force", restart.Commands["windows"])
	assert.Equal(t, "Restart Service", restart.Name)

	rotate, err := r.Get("rotate_logs")
	require.NoError(t, err)
	assert.Equal(t, "rotate_logs", rotate.Name)
}

func TestLoadRejectsTemplateWithoutCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - action_type: noop\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
