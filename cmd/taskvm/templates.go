package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// calldataTemplate is one named entry in calldata.toml: a mnemonic source
// snippet, optionally carrying %NAME%-style or {{n}}-style placeholders.
type calldataTemplate struct {
	Instructions string `toml:"instructions"`
}

// calldataTemplates is the parsed form of calldata.toml, keyed by name.
type calldataTemplates map[string]calldataTemplate

// loadTemplates reads and parses a calldata.toml file.
func loadTemplates(path string) (calldataTemplates, error) {
	var templates calldataTemplates
	if _, err := toml.DecodeFile(path, &templates); err != nil {
		return nil, fmt.Errorf("loading calldata templates from %s: %w", path, err)
	}
	return templates, nil
}

// lookup resolves name in the template set, expanding {{0}}, {{1}}, ...
// placeholders positionally from args.
func (t calldataTemplates) lookup(name string, args []string) (string, error) {
	tpl, ok := t[name]
	if !ok {
		return "", fmt.Errorf("calldata template %q not found", name)
	}
	expanded := tpl.Instructions
	for i, arg := range args {
		expanded = strings.ReplaceAll(expanded, fmt.Sprintf("{{%d}}", i), arg)
	}
	return expanded, nil
}

// expandNamed substitutes %NAME%-style placeholders used by the built-in
// add/status/delete commands.
func expandNamed(src string, replacements map[string]string) string {
	out := src
	for name, val := range replacements {
		out = strings.ReplaceAll(out, "%"+name+"%", val)
	}
	return out
}
