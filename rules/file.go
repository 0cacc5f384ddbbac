package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk form of a rule catalog. Conditions may be
// defined inline as CEL expressions over the context data bag; rules
// reference conditions and actions by name.
type catalogFile struct {
	Conditions []conditionSpec `yaml:"conditions"`
	Rules      []ruleSpec      `yaml:"rules"`
}

type conditionSpec struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

type ruleSpec struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Category     string   `yaml:"category"`
	Conditions   []string `yaml:"conditions"`
	Actions      []string `yaml:"actions"`
	Priority     int      `yaml:"priority"`
	Supersedes   []string `yaml:"supersedes"`
	SupersededBy []string `yaml:"supersededBy"`
	Active       *bool    `yaml:"active"`
}

// LoadFile reads one YAML catalog file, registers its inline CEL conditions,
// and loads its rules into catalog. A condition name already present in the
// registry is skipped, so Go handlers win over file definitions and reloads
// do not collide with themselves.
func LoadFile(path string, registry *Registry, catalog *Catalog) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}
	return loadCatalogBytes(path, data, registry, catalog)
}

// LoadDir loads every .yaml/.yml file in dir, in lexical order, into a
// single catalog load.
func LoadDir(dir string, registry *Registry, catalog *Catalog) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var merged catalogFile
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read catalog file %q: %w", name, err)
		}
		var cf catalogFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return fmt.Errorf("failed to parse catalog file %q: %w", name, err)
		}
		merged.Conditions = append(merged.Conditions, cf.Conditions...)
		merged.Rules = append(merged.Rules, cf.Rules...)
	}

	return loadCatalog(dir, merged, registry, catalog)
}

func loadCatalogBytes(path string, data []byte, registry *Registry, catalog *Catalog) error {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse catalog file %q: %w", path, err)
	}
	return loadCatalog(path, cf, registry, catalog)
}

func loadCatalog(source string, cf catalogFile, registry *Registry, catalog *Catalog) error {
	for _, cond := range cf.Conditions {
		if cond.Name == "" || cond.Expression == "" {
			return fmt.Errorf("catalog %q: condition requires both name and expression", source)
		}
		if registry.HasCondition(cond.Name) {
			continue
		}
		if err := registry.RegisterCELCondition(cond.Name, cond.Expression); err != nil {
			return fmt.Errorf("catalog %q: %w", source, err)
		}
	}

	ruleset := make([]*Rule, 0, len(cf.Rules))
	for _, rs := range cf.Rules {
		active := true
		if rs.Active != nil {
			active = *rs.Active
		}
		ruleset = append(ruleset, &Rule{
			ID:           rs.ID,
			Name:         rs.Name,
			Category:     rs.Category,
			Conditions:   rs.Conditions,
			Actions:      rs.Actions,
			Priority:     rs.Priority,
			Supersedes:   rs.Supersedes,
			SupersededBy: rs.SupersededBy,
			Active:       active,
		})
	}

	if err := catalog.Load(ruleset, registry); err != nil {
		return fmt.Errorf("catalog %q: %w", source, err)
	}
	return nil
}
