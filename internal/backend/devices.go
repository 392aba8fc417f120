package backend

import "strings"

// DeviceProfile describes how to drive one network device CLI.
type DeviceProfile struct {
	Name       string
	EnableMode bool
	Port       int
}

var deviceProfiles = map[string]DeviceProfile{
	"cisco_ios":     {Name: "Cisco IOS", EnableMode: true, Port: 22},
	"cisco_nxos":    {Name: "Cisco NX-OS", Port: 22},
	"juniper_junos": {Name: "Juniper JunOS", Port: 22},
	"palo_alto":     {Name: "Palo Alto PAN-OS", Port: 22},
	"f5_bigip":      {Name: "F5 BIG-IP", Port: 22},
	"arista_eos":    {Name: "Arista EOS", EnableMode: true, Port: 22},
	"hp_procurve":   {Name: "HP ProCurve", Port: 22},
}

// LookupDevice returns the profile for family, falling back to cisco_ios.
func LookupDevice(family string) DeviceProfile {
	if p, ok := deviceProfiles[strings.ToLower(family)]; ok {
		return p
	}
	return deviceProfiles["cisco_ios"]
}
