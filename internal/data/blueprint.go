package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Blueprint is a named entity template: one YAML node per component, keyed by
// the owning system's name.
type Blueprint struct {
	Name       string               `yaml:"name"`
	Components map[string]yaml.Node `yaml:"components"`
}

type blueprintListFile struct {
	Blueprints []Blueprint `yaml:"blueprints"`
}

// BlueprintTable holds all blueprints indexed by name.
type BlueprintTable struct {
	blueprints map[string]*Blueprint
}

// Get returns the blueprint with the given name, or nil.
func (t *BlueprintTable) Get(name string) *Blueprint {
	return t.blueprints[name]
}

// Count returns the number of blueprints.
func (t *BlueprintTable) Count() int {
	return len(t.blueprints)
}

// Names returns the blueprint names in sorted order.
func (t *BlueprintTable) Names() []string {
	names := make([]string, 0, len(t.blueprints))
	for n := range t.blueprints {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ComponentNames returns the blueprint's component keys in sorted order, so
// entities are always assembled in the same sequence.
func (b *Blueprint) ComponentNames() []string {
	names := make([]string, 0, len(b.Components))
	for n := range b.Components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Encode renders the blueprint's components as a standalone YAML document of
// the form {components: {...}}.
func (b *Blueprint) Encode() ([]byte, error) {
	out, err := yaml.Marshal(struct {
		Components map[string]yaml.Node `yaml:"components"`
	}{b.Components})
	if err != nil {
		return nil, fmt.Errorf("encode blueprint %s: %w", b.Name, err)
	}
	return out, nil
}

// ParseBlueprints decodes a blueprint list document.
func ParseBlueprints(raw []byte) (*BlueprintTable, error) {
	var f blueprintListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse blueprints: %w", err)
	}
	t := &BlueprintTable{blueprints: make(map[string]*Blueprint, len(f.Blueprints))}
	for i := range f.Blueprints {
		bp := &f.Blueprints[i]
		if bp.Name == "" {
			return nil, fmt.Errorf("parse blueprints: entry %d has no name", i)
		}
		if _, dup := t.blueprints[bp.Name]; dup {
			return nil, fmt.Errorf("parse blueprints: duplicate blueprint %q", bp.Name)
		}
		t.blueprints[bp.Name] = bp
	}
	return t, nil
}

// LoadBlueprintTable loads entity blueprints from a YAML file.
func LoadBlueprintTable(path string) (*BlueprintTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blueprints: %w", err)
	}
	return ParseBlueprints(raw)
}
