package normalizer

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/rules.yaml
var rulesYAML []byte

// RulesConfig holds the suffix tables and qualifier lists loaded from
// the embedded YAML.
type RulesConfig struct {
	ProvinceSuffixes    []string            `yaml:"province_suffixes"`
	CitySuffixes        []string            `yaml:"city_suffixes"`
	SubdistrictSuffixes []string            `yaml:"subdistrict_suffixes"`
	ProvinceAliases     map[string][]string `yaml:"province_aliases"`
	NameQualifiers      []string            `yaml:"name_qualifiers"`
}

var (
	rulesOnce sync.Once
	rules     *RulesConfig
	rulesErr  error
)

// LoadRules parses the embedded rules file. The result is cached; the
// file is part of the binary so a parse failure is a build defect.
func LoadRules() (*RulesConfig, error) {
	rulesOnce.Do(func() {
		cfg := &RulesConfig{}
		if err := yaml.Unmarshal(rulesYAML, cfg); err != nil {
			rulesErr = fmt.Errorf("parse embedded rules.yaml: %w", err)
			return
		}
		rules = cfg
	})
	return rules, rulesErr
}

func mustRules() *RulesConfig {
	cfg, err := LoadRules()
	if err != nil {
		panic(err)
	}
	return cfg
}
