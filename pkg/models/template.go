package models

// Command family keys used by action templates.
const (
	FamilyLinux    = "linux"
	FamilyWindows  = "windows"
	FamilyCisco    = "cisco"
	FamilyJuniper  = "juniper"
	FamilyPaloAlto = "palo_alto"
)

// ActionTemplate maps a command family key to a command string with {param} placeholders.
type ActionTemplate struct {
	ActionType  string            `json:"action_type" yaml:"action_type"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Commands    map[string]string `json:"commands" yaml:"commands"`
}

// Command returns the raw command for a family key.
func (t ActionTemplate) Command(family string) (string, bool) {
	cmd, ok := t.Commands[family]
	if !ok || cmd == "" {
		return "", false
	}
	return cmd, true
}
