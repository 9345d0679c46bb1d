package policy

import (
	"fmt"

	"github.com/guillermoBallester/colprobe/internal/core/port"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled profiling settings loaded from a YAML file.
type Policy struct {
	Defaults TableRule            `yaml:"defaults"`
	Tables   map[string]TableRule `yaml:"tables"`
}

// TableRule configures classification and drift checks for one table.
type TableRule struct {
	Drop              StringList `yaml:"drop"`
	CategoryThreshold float64    `yaml:"category_threshold"`
	Columns           StringList `yaml:"columns"`
	Compare           StringList `yaml:"compare"`
}

// StringList accepts either a single scalar or a sequence.
//
//	drop: internal_note           # → [internal_note]
//	drop: [internal_note, etl_ts]
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value == "" {
			*s = nil
			return nil
		}
		*s = StringList{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return fmt.Errorf("decoding string list: %w", err)
	}
	*s = list
	return nil
}

// Resolve merges the defaults with the table's own rule. Table lists replace
// default lists; a zero threshold falls back to the default one.
func (p *Policy) Resolve(table string) port.TableOptions {
	if p == nil {
		return port.TableOptions{}
	}
	opts := port.TableOptions{
		Drop:              p.Defaults.Drop,
		CategoryThreshold: p.Defaults.CategoryThreshold,
		Columns:           p.Defaults.Columns,
		Compare:           p.Defaults.Compare,
	}
	rule, ok := p.Tables[table]
	if !ok {
		return opts
	}
	if rule.Drop != nil {
		opts.Drop = rule.Drop
	}
	if rule.CategoryThreshold > 0 {
		opts.CategoryThreshold = rule.CategoryThreshold
	}
	if rule.Columns != nil {
		opts.Columns = rule.Columns
	}
	if rule.Compare != nil {
		opts.Compare = rule.Compare
	}
	return opts
}
