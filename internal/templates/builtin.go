package templates

import "autoremedy/pkg/models"

func tpl(actionType, name, description string, commands map[string]string) models.ActionTemplate {
	return models.ActionTemplate{ActionType: actionType, Name: name, Description: description, Commands: commands}
}

// Builtin returns the default action templates.
func Builtin() []models.ActionTemplate {
	return []models.ActionTemplate{
		tpl("restart_service", "Restart Service", "Restart a system service", map[string]string{
			"linux":   "sudo systemctl restart {service_name}",
			"windows": "Restart-Service -Name {service_name} -Force",
		}),
		tpl("clear_disk_space", "Clear Disk Space", "Clear temporary files and logs", map[string]string{
			"linux":   "sudo find /tmp -type f -atime +7 -delete && sudo journalctl --vacuum-time=7d",
			"windows": `Remove-Item -Path $env:TEMP\* -Recurse -Force -ErrorAction SilentlyContinue`,
		}),
		tpl("expand_volume", "Expand Volume", "Grow a logical volume and its filesystem", map[string]string{
			"linux":   "sudo lvextend -r -L +{size} {volume}",
			"windows": "Resize-Partition -DriveLetter {drive_letter} -Size (Get-PartitionSupportedSize -DriveLetter {drive_letter}).SizeMax",
		}),
		tpl("restart_container", "Restart Container", "Restart a Docker container", map[string]string{
			"linux":   "docker restart {container_name}",
			"windows": "docker restart {container_name}",
		}),
		tpl("scale_service", "Scale Service", "Scale a service up or down", map[string]string{
			"kubernetes":   "kubectl scale deployment {deployment_name} --replicas={replicas}",
			"docker_swarm": "docker service scale {service_name}={replicas}",
		}),
		tpl("clear_cache", "Clear Cache", "Clear application cache", map[string]string{
			"redis":     "redis-cli FLUSHDB",
			"memcached": "echo 'flush_all' | nc localhost 11211",
		}),
		tpl("restart_database", "Restart Database", "Restart database service", map[string]string{
			"postgresql": "sudo systemctl restart postgresql",
			"mysql":      "sudo systemctl restart mysql",
			"mongodb":    "sudo systemctl restart mongod",
		}),
		tpl("kill_process", "Kill Process", "Terminate a running process", map[string]string{
			"linux":   "sudo kill -9 {pid}",
			"windows": "Stop-Process -Id {pid} -Force",
		}),
		tpl("update_firewall", "Update Firewall", "Update firewall rules", map[string]string{
			"linux":   "sudo ufw {action} {port}",
			"windows": "netsh advfirewall firewall {action} rule name={rule_name}",
		}),
		tpl("restart_workstation", "Restart Workstation", "Restart a workstation", map[string]string{
			"linux":   "sudo shutdown -r now",
			"windows": "Restart-Computer -Force",
		}),
		tpl("fix_network_adapter", "Fix Network Adapter", "Reset network adapter", map[string]string{
			"linux":   "sudo systemctl restart NetworkManager",
			"windows": "Get-NetAdapter | Restart-NetAdapter",
		}),
		tpl("clear_dns_cache", "Clear DNS Cache", "Flush DNS resolver cache", map[string]string{
			"linux":   "sudo systemd-resolve --flush-caches",
			"windows": "ipconfig /flushdns",
		}),
		tpl("fix_printer", "Fix Printer", "Restart print spooler service", map[string]string{
			"linux":   "sudo systemctl restart cups",
			"windows": "Restart-Service -Name Spooler -Force",
		}),
		tpl("reset_user_profile", "Reset User Profile", "Reset user profile cache", map[string]string{
			"linux":   "rm -rf ~/.cache/*",
			"windows": `Remove-Item -Path $env:LOCALAPPDATA\Temp\* -Recurse -Force`,
		}),
		tpl("update_software", "Update Software", "Update system packages", map[string]string{
			"linux":   "sudo apt update && sudo apt upgrade -y",
			"windows": "Get-WindowsUpdate -Install -AcceptAll -AutoReboot",
		}),
		tpl("fix_audio", "Fix Audio", "Restart audio service", map[string]string{
			"linux":   "pulseaudio -k && pulseaudio --start",
			"windows": "Restart-Service -Name Audiosrv -Force",
		}),
		tpl("check_server_health", "Check Server Health", "Run comprehensive server health check", map[string]string{
			"linux":   "df -h && free -m && uptime && systemctl status",
			"windows": "Get-ComputerInfo | Select-Object CsName,OsVersion,OsUptime",
		}),
		tpl("optimize_server", "Optimize Server", "Optimize server performance", map[string]string{
			"linux":   "sync && echo 3 > /proc/sys/vm/drop_caches",
			"windows": "Clear-RecycleBin -Force; Optimize-Volume -DriveLetter C -Defrag",
		}),
		tpl("backup_server", "Backup Server", "Create server backup", map[string]string{
			"linux":   "tar -czf /backup/server-$(date +%Y%m%d).tar.gz /etc /var/www /home",
			"windows": "wbadmin start backup -backupTarget:{backup_target} -include:{volumes}",
		}),
		tpl("reload_network_device", "Reload Network Device", "Reload network device configuration", map[string]string{
			"cisco":     "reload in 1",
			"juniper":   "request system reboot",
			"palo_alto": "request restart system",
		}),
		tpl("save_network_config", "Save Network Config", "Save running configuration", map[string]string{
			"cisco":     "write memory",
			"juniper":   "commit",
			"palo_alto": "commit",
		}),
		tpl("clear_arp_cache", "Clear ARP Cache", "Clear ARP table", map[string]string{
			"cisco":     "clear arp-cache",
			"juniper":   "clear arp",
			"palo_alto": "clear arp all",
			"linux":     "sudo ip -s -s neigh flush all",
		}),
		tpl("reset_interface", "Reset Interface", "Reset network interface", map[string]string{
			"cisco":     "interface {interface}; shutdown; no shutdown",
			"juniper":   "set interfaces {interface} disable; commit",
			"palo_alto": "set network interface ethernet {interface} link-state down",
		}),
		tpl("check_disk_health", "Check Disk Health", "Check disk health status", map[string]string{
			"linux":   "sudo smartctl -a /dev/sda",
			"windows": "Get-PhysicalDisk | Get-StorageReliabilityCounter",
		}),

		// Workstation repairs.
		tpl("restart_explorer", "Restart Explorer", "Restart the Windows shell", map[string]string{
			"windows": "Stop-Process -Name explorer -Force; Start-Process explorer",
		}),
		tpl("fix_display", "Fix Display", "Reset display adapters", map[string]string{
			"windows": "Get-PnpDevice -Class Display | Disable-PnpDevice -Confirm:$false; Get-PnpDevice -Class Display | Enable-PnpDevice -Confirm:$false",
		}),
		tpl("clear_temp_files", "Clear Temp Files", "Remove the user's temporary files", map[string]string{
			"windows": `Remove-Item -Path $env:TEMP\* -Recurse -Force -ErrorAction SilentlyContinue`,
		}),
		tpl("fix_windows_update", "Fix Windows Update", "Reset the Windows Update cache", map[string]string{
			"windows": `Stop-Service wuauserv,bits; Remove-Item C:\Windows\SoftwareDistribution -Recurse -Force; Start-Service wuauserv,bits`,
		}),
		tpl("repair_network", "Repair Network", "Reset the network stack and renew the lease", map[string]string{
			"windows": "netsh winsock reset; netsh int ip reset; ipconfig /release; ipconfig /renew",
		}),

		// Server diagnostic checks, see ServerChecks.
		tpl("check_raid", "Check RAID", "Report RAID and physical disk state", map[string]string{
			"linux":   "sudo cat /proc/mdstat",
			"windows": "Get-PhysicalDisk | Select-Object FriendlyName,HealthStatus,OperationalStatus",
		}),
		tpl("monitor_resources", "Monitor Resources", "Snapshot CPU, memory and disk usage", map[string]string{
			"linux":   "top -bn1 | head -20; df -h; free -m",
			"windows": `Get-Counter '\Processor(_Total)\% Processor Time','\Memory\Available MBytes','\PhysicalDisk(_Total)\% Disk Time'`,
		}),
		tpl("check_services", "Check Services", "List running services", map[string]string{
			"linux":   "systemctl list-units --type=service --state=running",
			"windows": "Get-Service | Where-Object {$_.Status -eq 'Running'}",
		}),
		tpl("analyze_logs", "Analyze Logs", "Show recent system errors", map[string]string{
			"linux":   "journalctl -p err -n 50",
			"windows": "Get-EventLog -LogName System -EntryType Error -Newest 50",
		}),
	}
}

// ServerChecks are the read-only checks run by a node diagnostics sweep, in order.
var ServerChecks = []string{"check_raid", "monitor_resources", "check_services", "analyze_logs"}
