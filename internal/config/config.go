// Package config loads the layered TOML configuration. Sources merge in
// order: scalar options last-wins, list options append, exception rules
// append and are never deduplicated. The resulting Config is read-only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmcheck/internal/models"
)

// Source is one configuration layer. Optional sources may be absent;
// the mandatory default layer may not.
type Source struct {
	Path     string
	Optional bool
}

// ExceptionRule suppresses diagnostics whose message id matches Message
// (shell glob). Package, when set, additionally scopes the rule to
// matching packages (glob); the pattern is tried against the full
// name-version-release.arch identity and against the bare package
// name, so both `package = "mypkg"` and `package = "mypkg-1.*"` work.
// Argument, when set, must match the joined diagnostic arguments
// (regexp).
type ExceptionRule struct {
	Message  string `toml:"message"`
	Package  string `toml:"package"`
	Argument string `toml:"argument"`

	argRe *regexp.Regexp
}

// Matches reports whether the rule suppresses d. Any matching rule
// suppresses; there is no priority among rules.
func (r ExceptionRule) Matches(d models.Diagnostic) bool {
	if ok, _ := path.Match(r.Message, d.Message); !ok {
		return false
	}
	if r.Package != "" {
		full, _ := path.Match(r.Package, d.Package)
		bare, _ := path.Match(r.Package, baseName(d.Package))
		if !full && !bare {
			return false
		}
	}
	if r.argRe != nil && !r.argRe.MatchString(d.ArgString()) {
		return false
	}
	return true
}

// baseName strips the trailing version-release[.arch] fields from a
// package identity. Package names may themselves contain dashes, so
// only the last two dash-separated fields are dropped.
func baseName(ident string) string {
	i := strings.LastIndex(ident, "-")
	if i <= 0 {
		return ident
	}
	j := strings.LastIndex(ident[:i], "-")
	if j <= 0 {
		return ident
	}
	return ident[:j]
}

type optionKind int

const (
	kindString optionKind = iota
	kindInt
	kindBool
	kindDuration
)

// Declared option types, validated at load time.
var optionKinds = map[string]optionKind{
	"max-summary-length":  kindInt,
	"inspect-timeout":     kindDuration,
	"inspect-concurrency": kindInt,
	"keyring":             kindString,
	"strict-groups":       kindBool,
}

var optionDefaults = map[string]any{
	"max-summary-length":  int64(80),
	"inspect-timeout":     "10s",
	"inspect-concurrency": int64(8),
	"keyring":             "",
	"strict-groups":       false,
}

var listDefaults = map[string][]string{
	"standard-rpaths":    {"/lib", "/lib64", "/usr/lib", "/usr/lib64"},
	"valid-groups":       nil,
	"dangerous-commands": nil,
}

// Config is the effective merged configuration
type Config struct {
	options    map[string]any
	lists      map[string][]string
	exceptions []ExceptionRule
}

type layer struct {
	Options    map[string]any      `toml:"options"`
	Lists      map[string][]string `toml:"lists"`
	Exceptions []ExceptionRule     `toml:"exceptions"`
}

// Load merges the given sources into one Config
func Load(sources []Source) (*Config, error) {
	cfg := &Config{
		options: make(map[string]any),
		lists:   make(map[string][]string),
	}

	for _, src := range sources {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			if src.Optional && os.IsNotExist(err) {
				logrus.Debugf("Skipping absent config layer %s", src.Path)
				continue
			}
			return nil, &models.CheckError{Type: models.ErrConfigSyntax, Target: src.Path, Err: err}
		}

		if err := cfg.mergeLayer(src.Path, data); err != nil {
			// A broken optional layer degrades; a broken named layer
			// is fatal for the run.
			if src.Optional {
				logrus.Warnf("Skipping broken config layer %s: %v", src.Path, err)
				continue
			}
			return nil, err
		}
	}

	return cfg, nil
}

// mergeLayer validates one source completely before mutating the
// config, so a rejected layer leaves no partial state behind.
func (c *Config) mergeLayer(source string, data []byte) error {
	var l layer
	if err := toml.Unmarshal(data, &l); err != nil {
		return syntaxError(source, err)
	}

	for name, val := range l.Options {
		if err := validateOption(name, val); err != nil {
			return &models.CheckError{Type: models.ErrConfigSyntax, Target: source, Err: err}
		}
	}
	for name := range l.Lists {
		if _, ok := listDefaults[name]; !ok {
			return &models.CheckError{
				Type:   models.ErrConfigSyntax,
				Target: source,
				Err:    fmt.Errorf("unknown list option %q", name),
			}
		}
	}
	rules := make([]ExceptionRule, len(l.Exceptions))
	for i, rule := range l.Exceptions {
		if err := compileRule(&rule); err != nil {
			return &models.CheckError{Type: models.ErrConfigSyntax, Target: source, Err: err}
		}
		rules[i] = rule
	}

	for name, val := range l.Options {
		c.options[name] = val
	}
	for name, vals := range l.Lists {
		c.lists[name] = append(c.lists[name], vals...)
	}
	c.exceptions = append(c.exceptions, rules...)

	logrus.Debugf("Merged config layer %s (%d exceptions)", source, len(rules))
	return nil
}

func syntaxError(source string, err error) error {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return &models.CheckError{
			Type:   models.ErrConfigSyntax,
			Target: fmt.Sprintf("%s:%d", source, perr.Position.Line),
			Err:    errors.New(perr.Message),
		}
	}
	return &models.CheckError{Type: models.ErrConfigSyntax, Target: source, Err: err}
}

func validateOption(name string, val any) error {
	kind, ok := optionKinds[name]
	if !ok {
		return fmt.Errorf("unknown option %q", name)
	}
	switch kind {
	case kindString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("option %q: expected string, got %T", name, val)
		}
	case kindInt:
		if _, ok := val.(int64); !ok {
			return fmt.Errorf("option %q: expected integer, got %T", name, val)
		}
	case kindBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("option %q: expected boolean, got %T", name, val)
		}
	case kindDuration:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("option %q: expected duration string, got %T", name, val)
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("option %q: %w", name, err)
		}
	}
	return nil
}

func compileRule(r *ExceptionRule) error {
	if r.Message == "" {
		return fmt.Errorf("exception rule: message pattern is required")
	}
	if _, err := path.Match(r.Message, ""); err != nil {
		return fmt.Errorf("exception rule: bad message pattern %q", r.Message)
	}
	if r.Package != "" {
		if _, err := path.Match(r.Package, ""); err != nil {
			return fmt.Errorf("exception rule: bad package pattern %q", r.Package)
		}
	}
	if r.Argument != "" {
		re, err := regexp.Compile(r.Argument)
		if err != nil {
			return fmt.Errorf("exception rule: bad argument pattern: %w", err)
		}
		r.argRe = re
	}
	return nil
}

// String returns a string option, falling back to its default
func (c *Config) String(name string) string {
	if v, ok := c.options[name].(string); ok {
		return v
	}
	v, _ := optionDefaults[name].(string)
	return v
}

// Int returns an integer option, falling back to its default
func (c *Config) Int(name string) int {
	if v, ok := c.options[name].(int64); ok {
		return int(v)
	}
	v, _ := optionDefaults[name].(int64)
	return int(v)
}

// Bool returns a boolean option, falling back to its default
func (c *Config) Bool(name string) bool {
	if v, ok := c.options[name].(bool); ok {
		return v
	}
	v, _ := optionDefaults[name].(bool)
	return v
}

// Duration returns a duration option, falling back to its default
func (c *Config) Duration(name string) time.Duration {
	s := c.String(name)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// List returns a list option: the built-in default entries followed by
// every entry appended across the loaded layers.
func (c *Config) List(name string) []string {
	out := append([]string(nil), listDefaults[name]...)
	return append(out, c.lists[name]...)
}

// Exceptions returns all accumulated exception rules
func (c *Config) Exceptions() []ExceptionRule {
	return c.exceptions
}
