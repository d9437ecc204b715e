// Package categorize maps vendor names to expense categories with an ordered
// table of substring rules.
package categorize

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"penny/internal/core"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

var (
	ErrEmptyToken    = errors.New("rule token is empty")
	ErrDuplicateRule = errors.New("duplicate rule token")
	ErrNoRules       = errors.New("rule table is empty")
)

// Rule assigns Category to any vendor whose lowercased name contains Token.
type Rule struct {
	Token    string        `yaml:"token" json:"token"`
	Category core.Category `yaml:"category" json:"category"`
}

// RuleTable is an immutable ordered rule list. Earlier rules win.
type RuleTable struct {
	rules []Rule
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleTable validates rules and returns a table that owns a private copy
// of them. Tokens are trimmed and lowercased.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		token := strings.ToLower(strings.TrimSpace(r.Token))
		if token == "" {
			return nil, fmt.Errorf("rule %d: %w", i+1, ErrEmptyToken)
		}
		if !r.Category.Valid() {
			return nil, fmt.Errorf("rule %d (%q): %w: %q", i+1, token, core.ErrUnknownCategory, r.Category)
		}
		if _, dup := seen[token]; dup {
			return nil, fmt.Errorf("rule %d: %w: %q", i+1, ErrDuplicateRule, token)
		}
		seen[token] = struct{}{}
		out = append(out, Rule{Token: token, Category: r.Category})
	}
	return &RuleTable{rules: out}, nil
}

// ParseRules decodes a YAML rule document of the form
//
//	rules:
//	  - {token: swiggy, category: Food}
func ParseRules(data []byte) (*RuleTable, error) {
	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return NewRuleTable(f.Rules)
}

// LoadFile reads a YAML rule table from path.
func LoadFile(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// Default returns the built-in rule table.
func Default() *RuleTable {
	t, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml is invalid: %v", err))
	}
	return t
}

// Load returns the table at path, or the built-in table when path is empty.
func Load(path string) (*RuleTable, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Rules returns a copy of the rules in priority order.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

func (t *RuleTable) Len() int {
	return len(t.rules)
}

// MarshalJSON encodes the table as a token -> category object whose keys
// keep table order.
func (t *RuleTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range t.rules {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(r.Token)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Category)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
