package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyResolvesBackendKind(t *testing.T) {
	cases := []struct {
		nodeType NodeType
		osType   string
		meta     map[string]string
		want     NodeClass
		family   string
	}{
		{NodeServer, "Ubuntu", nil, NodeClass{Kind: ClassPosix}, FamilyLinux},
		{NodeWorkstation, "windows_workstation", nil, NodeClass{Kind: ClassWindows}, FamilyWindows},
		{NodeNetworkDevice, "cisco_ios", nil, NodeClass{Kind: ClassNetworkDevice, Family: "cisco_ios"}, FamilyCisco},
		{"router", "", map[string]string{"device_type": "juniper_junos"}, NodeClass{Kind: ClassNetworkDevice, Family: "juniper_junos"}, FamilyJuniper},
		{"firewall", "palo_alto", nil, NodeClass{Kind: ClassNetworkDevice, Family: "palo_alto"}, FamilyPaloAlto},
		{NodeNetworkDevice, "mikrotik", nil, NodeClass{Kind: ClassNetworkDevice, Family: "mikrotik"}, FamilyCisco},
		{NodeServer, "plan9", nil, NodeClass{Kind: ClassUnsupported}, ""},
	}
	for _, tc := range cases {
		got := Classify(tc.nodeType, tc.osType, tc.meta)
		assert.Equal(t, tc.want, got, "%s/%s", tc.nodeType, tc.osType)
		assert.Equal(t, tc.family, got.CommandFamily(), "%s/%s", tc.nodeType, tc.osType)
	}
}

func TestNodeAddressDefaultsPort(t *testing.T) {
	n := InfrastructureNode{IPAddress: "10.0.0.5"}
	assert.Equal(t, "10.0.0.5:22", n.Address(22))
	n.Port = 2222
	assert.Equal(t, "10.0.0.5:2222", n.Address(22))
	v6 := InfrastructureNode{IPAddress: "fe80::1"}
	assert.Equal(t, "[fe80::1]:5985", v6.Address(5985))
}

func TestAlertRuleMatches(t *testing.T) {
	r := AlertRule{Condition: ">", Threshold: 90}
	m, ok := r.Matches(95)
	assert.True(t, ok)
	assert.True(t, m)
	m, _ = r.Matches(90)
	assert.False(t, m)

	r.Condition = "=="
	m, _ = r.Matches(90)
	assert.True(t, m)

	r.Condition = ">="
	_, ok = r.Matches(90)
	assert.False(t, ok)
}
