package models

// CredentialType names the connection kind a credential is valid for.
type CredentialType string

const (
	CredentialSSH   CredentialType = "ssh"
	CredentialWinRM CredentialType = "winrm"
)

// EnablePasswordKey is the credential metadata key holding the privilege escalation secret.
const EnablePasswordKey = "enable_password"

// Credential holds connection secrets for one node. It is resolved per execution and
// must not be persisted or cached by the engine.
type Credential struct {
	NodeID   string            `json:"node_id"`
	Type     CredentialType    `json:"credential_type"`
	Username string            `json:"username"`
	Secret   string            `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
