package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ralt/rpmcheck/internal/models"
)

func writeLayer(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write layer: %v", err)
	}
	return path
}

func TestScalarsLastWinListsAppend(t *testing.T) {
	dir := t.TempDir()
	a := writeLayer(t, dir, "a.toml", `
[options]
max-summary-length = 60
[lists]
valid-groups = ["System"]
`)
	b := writeLayer(t, dir, "b.toml", `
[options]
max-summary-length = 100
[lists]
valid-groups = ["Development", "System"]
`)

	cfg, err := Load([]Source{{Path: a}, {Path: b}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.Int("max-summary-length"); got != 100 {
		t.Errorf("Expected last-wins scalar 100, got %d", got)
	}
	want := []string{"System", "Development", "System"}
	if got := cfg.List("valid-groups"); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected appended list %v (duplicates kept), got %v", want, got)
	}
}

func TestLayeringIsAssociative(t *testing.T) {
	dir := t.TempDir()
	layers := []string{
		writeLayer(t, dir, "a.toml", `
[lists]
dangerous-commands = ["chroot"]
[[exceptions]]
message = "no-url"
`),
		writeLayer(t, dir, "b.toml", `
[lists]
dangerous-commands = ["mknod"]
[[exceptions]]
message = "no-packager"
package = "internal-*"
`),
		writeLayer(t, dir, "c.toml", `
[[exceptions]]
message = "no-url"
`),
	}

	allAtOnce, err := Load([]Source{{Path: layers[0]}, {Path: layers[1]}, {Path: layers[2]}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Loading layer by layer and concatenating must agree with loading
	// all sources at once.
	var stepwiseCommands []string
	var stepwiseExceptions []ExceptionRule
	for _, l := range layers {
		cfg, err := Load([]Source{{Path: l}})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		stepwiseCommands = append(stepwiseCommands, cfg.lists["dangerous-commands"]...)
		stepwiseExceptions = append(stepwiseExceptions, cfg.Exceptions()...)
	}

	if !reflect.DeepEqual(allAtOnce.lists["dangerous-commands"], stepwiseCommands) {
		t.Errorf("List layering not associative: %v vs %v",
			allAtOnce.lists["dangerous-commands"], stepwiseCommands)
	}
	if len(allAtOnce.Exceptions()) != len(stepwiseExceptions) {
		t.Fatalf("Exception layering not associative: %d vs %d rules",
			len(allAtOnce.Exceptions()), len(stepwiseExceptions))
	}
	for i, rule := range allAtOnce.Exceptions() {
		if rule.Message != stepwiseExceptions[i].Message {
			t.Errorf("Exception %d: expected %q, got %q", i, stepwiseExceptions[i].Message, rule.Message)
		}
	}
}

func TestExceptionsNeverDeduplicated(t *testing.T) {
	dir := t.TempDir()
	layer := writeLayer(t, dir, "dup.toml", `
[[exceptions]]
message = "no-url"

[[exceptions]]
message = "no-url"
`)

	cfg, err := Load([]Source{{Path: layer}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Exceptions()) != 2 {
		t.Errorf("Expected 2 identical rules kept, got %d", len(cfg.Exceptions()))
	}
}

func TestMissingOptionalSourceIsNotAnError(t *testing.T) {
	cfg, err := Load([]Source{{Path: "/nonexistent/config.toml", Optional: true}})
	if err != nil {
		t.Fatalf("Optional missing source should load empty, got %v", err)
	}
	if got := cfg.Int("max-summary-length"); got != 80 {
		t.Errorf("Expected built-in default 80, got %d", got)
	}
}

func TestBrokenOptionalSourceIsSkipped(t *testing.T) {
	dir := t.TempDir()
	broken := writeLayer(t, dir, "broken.toml", "[options]\nmax-summary-length = = 80\n")
	good := writeLayer(t, dir, "good.toml", "[options]\nmax-summary-length = 60\n")

	cfg, err := Load([]Source{{Path: broken, Optional: true}, {Path: good}})
	if err != nil {
		t.Fatalf("Broken optional source should be skipped, got %v", err)
	}
	if got := cfg.Int("max-summary-length"); got != 60 {
		t.Errorf("Expected remaining layers to merge, got %d", got)
	}
}

func TestRejectedLayerLeavesNoPartialState(t *testing.T) {
	dir := t.TempDir()
	// Valid exceptions before the invalid option must not leak in.
	broken := writeLayer(t, dir, "partial.toml", `
[[exceptions]]
message = "no-url"
[options]
not-an-option = 1
`)

	cfg, err := Load([]Source{{Path: broken, Optional: true}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n := len(cfg.Exceptions()); n != 0 {
		t.Errorf("Expected no rules from the rejected layer, got %d", n)
	}
}

func TestMissingMandatorySourceFails(t *testing.T) {
	_, err := Load([]Source{{Path: "/nonexistent/config.toml"}})
	if !models.IsType(err, models.ErrConfigSyntax) {
		t.Fatalf("Expected ConfigSyntax error, got %v", err)
	}
}

func TestSyntaxErrorNamesSourceAndLine(t *testing.T) {
	dir := t.TempDir()
	layer := writeLayer(t, dir, "bad.toml", "[options]\nmax-summary-length = = 80\n")

	_, err := Load([]Source{{Path: layer}})
	if !models.IsType(err, models.ErrConfigSyntax) {
		t.Fatalf("Expected ConfigSyntax error, got %v", err)
	}
	ce := err.(*models.CheckError)
	if ce.Target != layer+":2" {
		t.Errorf("Expected error to name %s:2, got %q", layer, ce.Target)
	}
}

func TestOptionTypeValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown option", "[options]\nnot-an-option = 1\n"},
		{"wrong type", "[options]\nmax-summary-length = \"eighty\"\n"},
		{"bad duration", "[options]\ninspect-timeout = \"ten seconds\"\n"},
		{"unknown list", "[lists]\nnot-a-list = []\n"},
		{"rule without message", "[[exceptions]]\npackage = \"foo\"\n"},
		{"rule with bad regexp", "[[exceptions]]\nmessage = \"x\"\nargument = \"[\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := writeLayer(t, dir, "layer.toml", tt.content)
			if _, err := Load([]Source{{Path: layer}}); !models.IsType(err, models.ErrConfigSyntax) {
				t.Errorf("Expected ConfigSyntax error, got %v", err)
			}
		})
	}
}

func TestExceptionRuleMatching(t *testing.T) {
	d := models.Diagnostic{
		Message: "strange-permission",
		Package: "mypkg-1.0-1.x86_64",
		Args:    []string{"/usr/bin/foo", "0777"},
	}

	tests := []struct {
		name string
		rule ExceptionRule
		want bool
	}{
		{"message only", ExceptionRule{Message: "strange-permission"}, true},
		{"message glob", ExceptionRule{Message: "strange-*"}, true},
		{"message mismatch", ExceptionRule{Message: "no-url"}, false},
		{"package scoped match", ExceptionRule{Message: "strange-permission", Package: "mypkg-*"}, true},
		{"package scoped mismatch", ExceptionRule{Message: "strange-permission", Package: "otherpkg-*"}, false},
		{"bare package name", ExceptionRule{Message: "strange-permission", Package: "mypkg"}, true},
		{"bare name is not a prefix", ExceptionRule{Message: "strange-permission", Package: "mypk"}, false},
		{"argument match", ExceptionRule{Message: "*", Argument: `/usr/bin/\S+ 0777`}, true},
		{"argument mismatch", ExceptionRule{Message: "*", Argument: "0644"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := compileRule(&tt.rule); err != nil {
				t.Fatalf("compileRule failed: %v", err)
			}
			if got := tt.rule.Matches(d); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBareNameMatchingKeepsDashedNames(t *testing.T) {
	d := models.Diagnostic{
		Message: "no-url",
		Package: "my-tool-extras-1.0-1.noarch",
	}

	rule := ExceptionRule{Message: "no-url", Package: "my-tool-extras"}
	if err := compileRule(&rule); err != nil {
		t.Fatalf("compileRule failed: %v", err)
	}
	if !rule.Matches(d) {
		t.Errorf("Bare name with dashes must match its own diagnostics")
	}

	other := ExceptionRule{Message: "no-url", Package: "my-tool"}
	if err := compileRule(&other); err != nil {
		t.Fatalf("compileRule failed: %v", err)
	}
	if other.Matches(d) {
		t.Errorf("A shorter dashed name must not match a longer one")
	}
}
