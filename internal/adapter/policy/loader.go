package policy

import (
	"fmt"
	"os"
	"slices"

	"github.com/guillermoBallester/colprobe/internal/core/port"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	if err := validateRule("defaults", pol.Defaults); err != nil {
		return err
	}
	for key, rule := range pol.Tables {
		if key == "" {
			return fmt.Errorf("tables contains an empty key")
		}
		if err := validateRule(fmt.Sprintf("tables[%q]", key), rule); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(where string, rule TableRule) error {
	if rule.CategoryThreshold < 0 || rule.CategoryThreshold > 1 {
		return fmt.Errorf("%s.category_threshold: %g outside [0, 1]", where, rule.CategoryThreshold)
	}
	for _, section := range rule.Compare {
		if !slices.Contains(port.Sections, section) {
			return fmt.Errorf("%s.compare: unknown section %q", where, section)
		}
	}
	for _, name := range append(slices.Clone(rule.Drop), rule.Columns...) {
		if name == "" {
			return fmt.Errorf("%s: empty column name", where)
		}
	}
	return nil
}
