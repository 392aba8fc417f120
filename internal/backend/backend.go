// Package backend executes rendered action templates against infrastructure nodes.
package backend

import (
	"context"
	"time"

	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

// Backend runs one action template on one node.
//
// A returned error means the command could not be attempted or the transport broke
// (missing credential, dial failure, no command for the node's family). A command that
// ran and failed is reported as a result with Success false and a nil error.
type Backend interface {
	Name() string
	Execute(ctx context.Context, node models.InfrastructureNode, tmpl models.ActionTemplate, params map[string]string) (models.ExecutionResult, error)
}

// Dispatcher selects a backend by node class.
type Dispatcher struct {
	byKind map[models.ClassKind]Backend
}

// NewDispatcher wires the three transport backends. A nil backend leaves that class
// unsupported.
func NewDispatcher(posix, windows, network Backend) *Dispatcher {
	d := &Dispatcher{byKind: make(map[models.ClassKind]Backend, 3)}
	if posix != nil {
		d.byKind[models.ClassPosix] = posix
	}
	if windows != nil {
		d.byKind[models.ClassWindows] = windows
	}
	if network != nil {
		d.byKind[models.ClassNetworkDevice] = network
	}
	return d
}

// For returns the backend for node or a validation error when the class is unsupported.
func (d *Dispatcher) For(node models.InfrastructureNode) (Backend, error) {
	b, ok := d.byKind[node.Class.Kind]
	if !ok {
		return nil, errs.Validation("unsupported node class %q for node %s (node_type=%s os_type=%s)",
			node.Class.Kind, node.ID, node.NodeType, node.OSType)
	}
	return b, nil
}

// Supports reports whether node can be executed against, and the template has a command
// for its family key.
func (d *Dispatcher) Supports(node models.InfrastructureNode, tmpl models.ActionTemplate) error {
	if _, err := d.For(node); err != nil {
		return err
	}
	family := node.Class.CommandFamily()
	if _, ok := tmpl.Command(family); !ok {
		return errs.Validation("action %s has no command for %s nodes", tmpl.ActionType, family)
	}
	return nil
}

// Name implements Backend.
func (d *Dispatcher) Name() string { return "dispatcher" }

// Execute implements Backend by delegating to the node's backend.
func (d *Dispatcher) Execute(ctx context.Context, node models.InfrastructureNode, tmpl models.ActionTemplate, params map[string]string) (models.ExecutionResult, error) {
	b, err := d.For(node)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	return b.Execute(ctx, node, tmpl, params)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
