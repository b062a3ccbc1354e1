package screen

import (
	"fmt"
	"os"
	"regexp"

	"github.com/aqubia/stepgate/api"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates YAML configuration data.
func LoadBytes(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func validate(f *File) error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", f.Version)
	}

	if f.Settings.DefaultAction == "" {
		f.Settings.DefaultAction = api.VerdictAsk
	}

	validActions := map[string]bool{
		"allow": true, "deny": true, "ask": true,
	}
	if !validActions[string(f.Settings.DefaultAction)] {
		return fmt.Errorf("invalid default_action %q", f.Settings.DefaultAction)
	}

	for i, rule := range f.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if !validActions[rule.Action] {
			return fmt.Errorf("rule %q: invalid action %q", rule.Name, rule.Action)
		}
		if len(rule.Match.Payload) == 0 && len(rule.Match.Meta) == 0 {
			return fmt.Errorf("rule %q: at least one match condition is required", rule.Name)
		}
		// Validate regex patterns compile
		for key, fm := range rule.Match.Payload {
			if fm.Regex != "" {
				if _, err := regexp.Compile(fm.Regex); err != nil {
					return fmt.Errorf("rule %q: payload field %q regex invalid: %w", rule.Name, key, err)
				}
			}
		}
		for key, fm := range rule.Match.Meta {
			if fm.Regex != "" {
				if _, err := regexp.Compile(fm.Regex); err != nil {
					return fmt.Errorf("rule %q: meta field %q regex invalid: %w", rule.Name, key, err)
				}
			}
		}
	}

	return nil
}
