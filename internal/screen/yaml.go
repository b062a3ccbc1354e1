package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/aqubia/stepgate/api"
)

// YAMLEngine implements first-match-wins screening using YAML rules.
type YAMLEngine struct {
	mu   sync.RWMutex
	file *File
	path string

	// compiled regex cache
	regexCache map[string]*regexp.Regexp
}

// NewYAMLEngine creates a new YAML screening engine from a file path.
func NewYAMLEngine(path string) (*YAMLEngine, error) {
	e := &YAMLEngine{path: path}
	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// NewYAMLEngineFromFile creates a new YAML screening engine from an
// already-loaded configuration.
func NewYAMLEngineFromFile(f *File) (*YAMLEngine, error) {
	e := &YAMLEngine{}
	e.file = f
	e.regexCache = make(map[string]*regexp.Regexp)
	if err := e.compileRegexes(); err != nil {
		return nil, err
	}
	return e, nil
}

// Evaluate checks the submission against rules in order, returning the first
// match. With no match the default action applies; the out-of-the-box default
// is "ask", i.e. escalate to the operator.
func (e *YAMLEngine) Evaluate(_ context.Context, input *EvalInput) (*EvalResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.file.Rules {
		if e.matches(&rule, input) {
			return &EvalResult{
				Verdict: api.Verdict(rule.Action),
				Rule:    rule.Name,
				Message: rule.Message,
			}, nil
		}
	}

	return &EvalResult{
		Verdict: e.file.Settings.DefaultAction,
		Rule:    "_default",
		Message: "no matching rule; default action applied",
	}, nil
}

// Reload re-reads the configuration file from disk.
func (e *YAMLEngine) Reload(_ context.Context) error {
	if e.path == "" {
		return nil
	}
	f, err := LoadFile(e.path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.file = f
	e.regexCache = make(map[string]*regexp.Regexp)
	return e.compileRegexes()
}

// Rules returns the currently loaded rule set.
func (e *YAMLEngine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.file.Rules
}

func (e *YAMLEngine) compileRegexes() error {
	compile := func(ruleName, key string, fm FieldMatch) error {
		if fm.Regex == "" {
			return nil
		}
		re, err := regexp.Compile(fm.Regex)
		if err != nil {
			return fmt.Errorf("rule %q field %q: %w", ruleName, key, err)
		}
		e.regexCache[ruleName+":"+key] = re
		return nil
	}

	for _, rule := range e.file.Rules {
		for key, fm := range rule.Match.Payload {
			if err := compile(rule.Name, key, fm); err != nil {
				return err
			}
		}
		for key, fm := range rule.Match.Meta {
			if err := compile(rule.Name, "meta."+key, fm); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *YAMLEngine) matches(rule *Rule, input *EvalInput) bool {
	if len(rule.Match.Payload) > 0 {
		if input.Payload == nil {
			return false
		}

		var fields map[string]any
		if err := json.Unmarshal(input.Payload, &fields); err != nil {
			return false
		}

		for key, fm := range rule.Match.Payload {
			val, ok := fields[key]
			if !ok {
				return false
			}
			if !e.matchField(rule.Name, key, fm, fmt.Sprintf("%v", val)) {
				return false
			}
		}
	}

	for key, fm := range rule.Match.Meta {
		val, ok := input.Meta[key]
		if !ok {
			return false
		}
		if !e.matchField(rule.Name, "meta."+key, fm, val) {
			return false
		}
	}

	return true
}

func (e *YAMLEngine) matchField(ruleName, key string, fm FieldMatch, val string) bool {
	if fm.Exact != "" {
		return val == fm.Exact
	}
	if fm.Regex != "" {
		re, ok := e.regexCache[ruleName+":"+key]
		if !ok {
			return false
		}
		return re.MatchString(val)
	}
	return false
}
