package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkerClassifier(t *testing.T) {
	c := NewMarkerClassifier()
	cases := []struct {
		out  string
		want bool
	}{
		{"% Invalid input detected at '^' marker.", false},
		{"% incomplete command.", false},
		{"% Ambiguous command: \"sh\"", false},
		{"error: configuration check-out failed", false},
		{"commit FAILED", false},
		{"syntax error, expecting <command>", false},
		{"Building configuration...\n[OK]", true},
		{"", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.out), tc.out)
	}
}

func TestClassifierSetOverride(t *testing.T) {
	set := ClassifierSet{ByFamily: map[string]Classifier{"juniper": NewMarkerClassifier("unknown command")}}

	assert.False(t, set.For("juniper").Classify("unknown command."))
	assert.True(t, set.For("juniper").Classify("% Invalid input"))
	assert.False(t, set.For("cisco").Classify("% Invalid input"))
}

func TestLookupDeviceFallsBackToCisco(t *testing.T) {
	assert.True(t, LookupDevice("arista_eos").EnableMode)
	assert.False(t, LookupDevice("juniper_junos").EnableMode)
	assert.Equal(t, "Cisco IOS", LookupDevice("mikrotik").Name)
}
