// Package inventory loads managed nodes, their credentials and alert rules from YAML.
package inventory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"autoremedy/internal/credentials"
	"autoremedy/internal/logger"
	"autoremedy/internal/store"
	"autoremedy/pkg/models"
)

// File is the on-disk inventory document.
type File struct {
	Nodes       []Node       `yaml:"nodes" validate:"dive"`
	Credentials []Credential `yaml:"credentials" validate:"dive"`
	AlertRules  []AlertRule  `yaml:"alert_rules" validate:"dive"`
}

// Node is an inventory node entry.
type Node struct {
	ID        string            `yaml:"id" validate:"required"`
	Hostname  string            `yaml:"hostname" validate:"required"`
	IPAddress string            `yaml:"ip_address" validate:"omitempty,ip|hostname"`
	Port      int               `yaml:"port" validate:"gte=0,lte=65535"`
	NodeType  string            `yaml:"node_type" validate:"required"`
	OSType    string            `yaml:"os_type"`
	Metadata  map[string]string `yaml:"metadata"`
}

// Credential is an inventory credential entry. Secrets are read from the environment
// variables named by the *_env fields; inline values are used only when no variable
// is named.
type Credential struct {
	NodeID            string            `yaml:"node_id" validate:"required"`
	Type              string            `yaml:"type" validate:"required,oneof=ssh winrm"`
	Username          string            `yaml:"username" validate:"required"`
	SecretEnv         string            `yaml:"secret_env"`
	Secret            string            `yaml:"secret"`
	EnablePasswordEnv string            `yaml:"enable_password_env"`
	PrivateKeyFile    string            `yaml:"private_key_file"`
	Metadata          map[string]string `yaml:"metadata"`
}

// AlertRule is an inventory alert rule entry.
type AlertRule struct {
	ID          string  `yaml:"id" validate:"required"`
	Name        string  `yaml:"name" validate:"required"`
	Description string  `yaml:"description"`
	NodeID      string  `yaml:"node_id" validate:"required"`
	MetricName  string  `yaml:"metric_name" validate:"required"`
	Condition   string  `yaml:"condition" validate:"required,oneof=> < =="`
	Threshold   float64 `yaml:"threshold"`
	Severity    string  `yaml:"severity" validate:"required,oneof=low medium high critical"`
	Enabled     *bool   `yaml:"enabled"`
}

// Inventory is a validated inventory.
type Inventory struct {
	file   File
	getenv func(string) string
}

// Load reads and validates an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return Parse(data)
}

// Parse validates an inventory document.
func Parse(data []byte) (*Inventory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid inventory: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Nodes))
	for _, n := range f.Nodes {
		if _, dup := seen[n.ID]; dup {
			return nil, fmt.Errorf("invalid inventory: duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, c := range f.Credentials {
		if _, ok := seen[c.NodeID]; !ok {
			return nil, fmt.Errorf("invalid inventory: credential for unknown node %q", c.NodeID)
		}
	}
	for _, r := range f.AlertRules {
		if _, ok := seen[r.NodeID]; !ok {
			return nil, fmt.Errorf("invalid inventory: alert rule %s targets unknown node %q", r.ID, r.NodeID)
		}
	}
	return &Inventory{file: f, getenv: os.Getenv}, nil
}

// Nodes returns the inventory nodes with their class resolved.
func (inv *Inventory) Nodes() []models.InfrastructureNode {
	out := make([]models.InfrastructureNode, 0, len(inv.file.Nodes))
	for _, n := range inv.file.Nodes {
		out = append(out, models.NewNode(models.InfrastructureNode{
			ID:        n.ID,
			Hostname:  n.Hostname,
			IPAddress: n.IPAddress,
			Port:      n.Port,
			NodeType:  models.NodeType(strings.ToLower(n.NodeType)),
			OSType:    n.OSType,
			Metadata:  n.Metadata,
		}))
	}
	return out
}

// AlertRules returns the inventory rules. Rules are enabled unless set otherwise.
func (inv *Inventory) AlertRules() []models.AlertRule {
	out := make([]models.AlertRule, 0, len(inv.file.AlertRules))
	for _, r := range inv.file.AlertRules {
		enabled := r.Enabled == nil || *r.Enabled
		out = append(out, models.AlertRule{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			NodeID:      r.NodeID,
			MetricName:  r.MetricName,
			Condition:   r.Condition,
			Threshold:   r.Threshold,
			Severity:    models.Severity(r.Severity),
			Enabled:     enabled,
		})
	}
	return out
}

// Credentials builds a static resolver. A named but unset environment variable is an error.
func (inv *Inventory) Credentials() (*credentials.StaticResolver, error) {
	res := credentials.NewStatic()
	for _, c := range inv.file.Credentials {
		secret := c.Secret
		if c.SecretEnv != "" {
			secret = inv.getenv(c.SecretEnv)
			if secret == "" {
				return nil, fmt.Errorf("credential %s/%s: environment variable %s is empty", c.NodeID, c.Type, c.SecretEnv)
			}
		}
		meta := make(map[string]string, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		if c.EnablePasswordEnv != "" {
			if v := inv.getenv(c.EnablePasswordEnv); v != "" {
				meta[models.EnablePasswordKey] = v
			}
		}
		if c.PrivateKeyFile != "" {
			key, err := os.ReadFile(c.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("credential %s/%s: read private key: %w", c.NodeID, c.Type, err)
			}
			meta["private_key"] = string(key)
		}
		res.Put(models.Credential{
			NodeID:   c.NodeID,
			Type:     models.CredentialType(c.Type),
			Username: c.Username,
			Secret:   secret,
			Metadata: meta,
		})
	}
	return res, nil
}

// Seed upserts nodes and alert rules into st in one transaction.
func (inv *Inventory) Seed(ctx context.Context, st store.Store) error {
	nodes := inv.Nodes()
	rules := inv.AlertRules()
	err := st.WithTx(ctx, func(tx store.Tx) error {
		for _, n := range nodes {
			if n.Class.Kind == models.ClassUnsupported {
				logger.Warnf("Inventory node %s (node_type=%s os_type=%s) has no command backend", n.ID, n.NodeType, n.OSType)
			}
			if err := tx.UpsertNode(n); err != nil {
				return err
			}
		}
		for _, r := range rules {
			if err := tx.UpsertAlertRule(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed inventory: %w", err)
	}
	logger.Infof("Inventory seeded: %d nodes, %d alert rules", len(nodes), len(rules))
	return nil
}
