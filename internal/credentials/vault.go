package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

// VaultConfig controls the Vault KV resolver.
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	MountPath  string
	PathPrefix string
	Timeout    time.Duration
}

type secretReader interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
}

// VaultResolver reads credentials from a KV v2 mount at
// <mount>/data/<prefix>/<node_id>/<type>. Secrets are fetched on every call.
type VaultResolver struct {
	reader    secretReader
	mountPath string
	prefix    string
}

// NewVault creates a resolver backed by a Vault client.
func NewVault(cfg VaultConfig) (*VaultResolver, error) {
	vcfg := api.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		vcfg.Timeout = cfg.Timeout
	}
	client, err := api.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return newVaultResolver(client.Logical(), cfg.MountPath, cfg.PathPrefix), nil
}

func newVaultResolver(reader secretReader, mount, prefix string) *VaultResolver {
	if mount == "" {
		mount = "secret"
	}
	if prefix == "" {
		prefix = "autoremedy/nodes"
	}
	return &VaultResolver{
		reader:    reader,
		mountPath: strings.Trim(mount, "/"),
		prefix:    strings.Trim(prefix, "/"),
	}
}

// Resolve implements Resolver.
func (v *VaultResolver) Resolve(ctx context.Context, nodeID string, credType models.CredentialType) (*models.Credential, error) {
	path := fmt.Sprintf("%s/data/%s/%s/%s", v.mountPath, v.prefix, nodeID, credType)
	secret, err := v.reader.ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, errs.NotFound("credential", nodeID+"/"+string(credType))
	}

	// KV v2 wraps the fields in "data"; a deleted or destroyed version keeps the key
	// with a nil value. Without the key the mount is KV v1.
	data := secret.Data
	if wrapped, ok := secret.Data["data"]; ok {
		inner, ok := wrapped.(map[string]interface{})
		if !ok || inner == nil {
			return nil, errs.NotFound("credential", nodeID+"/"+string(credType))
		}
		data = inner
	}

	cred := &models.Credential{NodeID: nodeID, Type: credType, Metadata: map[string]string{}}
	for k, raw := range data {
		val, ok := raw.(string)
		if !ok {
			val = fmt.Sprint(raw)
		}
		switch k {
		case "username":
			cred.Username = val
		case "password", "secret":
			cred.Secret = val
		default:
			cred.Metadata[k] = val
		}
	}
	if cred.Username == "" {
		return nil, errs.Validation("vault secret %s has no username", path)
	}
	return cred, nil
}
