package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pilotage/internal/core"
)

type monthBoundFile struct {
	UntilWeek int    `yaml:"until_week"`
	Month     string `yaml:"month"`
}

type monthRulesFile struct {
	Default []monthBoundFile         `yaml:"default"`
	Years   map[int][]monthBoundFile `yaml:"years"`
}

// LoadMonthRules reads and validates the week to month rule file.
func LoadMonthRules(path string) (core.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.RuleSet{}, fmt.Errorf("read month rules: %w", err)
	}
	rs, err := ParseMonthRules(data)
	if err != nil {
		return core.RuleSet{}, fmt.Errorf("month rules %s: %w", path, err)
	}
	return rs, nil
}

// ParseMonthRules decodes a YAML rule document. Weeks above the last bound
// of a rule fall into December.
func ParseMonthRules(data []byte) (core.RuleSet, error) {
	var f monthRulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return core.RuleSet{}, fmt.Errorf("decode: %w", err)
	}

	def, err := toRule(f.Default)
	if err != nil {
		return core.RuleSet{}, fmt.Errorf("default: %w", err)
	}
	rs := core.RuleSet{Default: def, Years: make(map[int]core.MonthRule, len(f.Years))}
	for year, bounds := range f.Years {
		r, err := toRule(bounds)
		if err != nil {
			return core.RuleSet{}, fmt.Errorf("year %d: %w", year, err)
		}
		rs.Years[year] = r
	}
	if err := rs.Validate(); err != nil {
		return core.RuleSet{}, err
	}
	return rs, nil
}

func toRule(bounds []monthBoundFile) (core.MonthRule, error) {
	rule := make(core.MonthRule, 0, len(bounds))
	for i, b := range bounds {
		m, ok := core.ParseMonth(b.Month)
		if !ok {
			return nil, fmt.Errorf("%w: bound %d: unknown month %q", core.ErrInvalidMonthRuleSet, i, b.Month)
		}
		rule = append(rule, core.MonthBound{UpperWeek: b.UntilWeek, Month: m})
	}
	return rule, nil
}
