// Package templates holds the action template registry and command rendering.
package templates

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

// Registry is a read-only set of action templates keyed by action type.
type Registry struct {
	byType map[string]models.ActionTemplate
}

// File is the on-disk layout of a template override file.
type File struct {
	Version   int                     `yaml:"version"`
	Templates []models.ActionTemplate `yaml:"templates"`
}

// NewRegistry builds a registry from the given templates. Later entries replace earlier
// ones with the same action type.
func NewRegistry(list ...models.ActionTemplate) *Registry {
	r := &Registry{byType: make(map[string]models.ActionTemplate, len(list))}
	for _, t := range list {
		r.byType[t.ActionType] = cloneTemplate(t)
	}
	return r
}

// Default returns a registry holding the built-in templates.
func Default() *Registry {
	return NewRegistry(Builtin()...)
}

// Load returns the built-in registry merged with overrides from path. An empty path
// yields the built-ins. Override commands are merged per family key.
func Load(path string) (*Registry, error) {
	r := Default()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse template file: %w", err)
	}
	for i, t := range f.Templates {
		t.ActionType = strings.TrimSpace(t.ActionType)
		if t.ActionType == "" {
			return nil, fmt.Errorf("template %d: action_type is required", i+1)
		}
		if len(t.Commands) == 0 {
			return nil, fmt.Errorf("template %s: no commands", t.ActionType)
		}
		base, ok := r.byType[t.ActionType]
		if !ok {
			if t.Name == "" {
				t.Name = t.ActionType
			}
			r.byType[t.ActionType] = cloneTemplate(t)
			continue
		}
		if t.Name != "" {
			base.Name = t.Name
		}
		if t.Description != "" {
			base.Description = t.Description
		}
		for k, v := range t.Commands {
			base.Commands[k] = v
		}
		r.byType[t.ActionType] = base
	}
	return r, nil
}

// Get returns the template for actionType or a not-found error.
func (r *Registry) Get(actionType string) (models.ActionTemplate, error) {
	t, ok := r.byType[actionType]
	if !ok {
		return models.ActionTemplate{}, errs.NotFound("template", actionType)
	}
	return cloneTemplate(t), nil
}

// Has reports whether actionType is registered.
func (r *Registry) Has(actionType string) bool {
	_, ok := r.byType[actionType]
	return ok
}

// All returns every template sorted by action type.
func (r *Registry) All() []models.ActionTemplate {
	out := make([]models.ActionTemplate, 0, len(r.byType))
	for _, t := range r.byType {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionType < out[j].ActionType })
	return out
}

// Render selects the command for family and substitutes {key} placeholders from params.
// Placeholders with no matching parameter are left as-is.
func Render(t models.ActionTemplate, family string, params map[string]string) (string, error) {
	cmd, ok := t.Command(family)
	if !ok {
		return "", errs.Validation("template %s has no command for %s", t.ActionType, family)
	}
	return Substitute(cmd, params), nil
}

// Substitute replaces each {key} in cmd with params[key] in a single pass. Substituted
// values are never rescanned, so a value containing {other} stays literal.
func Substitute(cmd string, params map[string]string) string {
	if len(params) == 0 {
		return cmd
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", params[k])
	}
	return strings.NewReplacer(pairs...).Replace(cmd)
}

var placeholderRE = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Placeholders returns the distinct {key} names referenced by cmd in order of first use.
// Script blocks such as {$_.Status} are not placeholders.
func Placeholders(cmd string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderRE.FindAllStringSubmatch(cmd, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Missing lists the placeholders of t's command for family that params does not supply.
func Missing(t models.ActionTemplate, family string, params map[string]string) ([]string, error) {
	cmd, ok := t.Command(family)
	if !ok {
		return nil, errs.Validation("template %s has no command for %s", t.ActionType, family)
	}
	var missing []string
	for _, key := range Placeholders(cmd) {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

// Fill picks the entries of values that some command of t references.
func Fill(t models.ActionTemplate, values map[string]string) map[string]string {
	out := make(map[string]string)
	for _, cmd := range t.Commands {
		for _, key := range Placeholders(cmd) {
			if v, ok := values[key]; ok {
				out[key] = v
			}
		}
	}
	return out
}

func cloneTemplate(t models.ActionTemplate) models.ActionTemplate {
	cmds := make(map[string]string, len(t.Commands))
	for k, v := range t.Commands {
		cmds[k] = v
	}
	t.Commands = cmds
	return t
}
