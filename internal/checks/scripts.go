package checks

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// ScriptsCheck scans scriptlet bodies for dangerous or broken
// constructs. The scanning is pattern-based, not a shell parser, so
// both false positives (commented-out commands) and false negatives
// (obfuscated commands) are possible.
type ScriptsCheck struct{}

func (ScriptsCheck) Name() string { return "scripts" }

// rm -rf $RPM_BUILD_ROOT (also ${RPM_BUILD_ROOT} and "$RPM_BUILD_ROOT")
// in an install-time scriptlet wipes whatever the variable expands to
// on the end user's machine, where it is typically empty.
var buildRootRe = regexp.MustCompile(`rm\s+(-[a-zA-Z]+\s+)*["']?\$\{?RPM_BUILD_ROOT\}?`)

var unexpandedMacroRe = regexp.MustCompile(`%\{[A-Za-z_][A-Za-z0-9_]*\}`)

func (ScriptsCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, cfg *config.Config) ([]models.Diagnostic, error) {
	var diags []models.Diagnostic
	add := func(d models.Diagnostic) { diags = append(diags, d) }

	extra := make([]*regexp.Regexp, 0, len(cfg.List("dangerous-commands")))
	for _, pattern := range cfg.List("dangerous-commands") {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logrus.Warnf("Skipping unparseable dangerous-commands pattern %q: %v", pattern, err)
			continue
		}
		extra = append(extra, re)
	}

	for _, phase := range []string{
		loader.PhasePreInstall,
		loader.PhasePostInstall,
		loader.PhasePreUninstall,
		loader.PhasePostUninstall,
	} {
		script, ok := pkg.Scriptlet(phase)
		if !ok {
			continue
		}

		if strings.TrimSpace(script) == "" {
			add(diag("scripts", "empty-scriptlet", models.SeverityWarning, phase))
			continue
		}

		if m := buildRootRe.FindString(script); m != "" {
			add(diag("scripts", "dangerous-build-root", models.SeverityError, phase, strings.TrimSpace(m)))
		}

		for _, re := range extra {
			if m := re.FindString(script); m != "" {
				add(diag("scripts", "dangerous-command", models.SeverityError, phase, strings.TrimSpace(m)))
			}
		}

		if m := unexpandedMacroRe.FindString(script); m != "" {
			add(diag("scripts", "unexpanded-macro-in-scriptlet", models.SeverityWarning, phase, m))
		}
	}

	return diags, nil
}

func (ScriptsCheck) Descriptions() map[string]string {
	return map[string]string{
		"dangerous-build-root": "A scriptlet removes $RPM_BUILD_ROOT. " +
			"Scriptlets run on the target system at install time, where the " +
			"variable is normally unset, turning the command into rm -rf /. " +
			"Build-root cleanup belongs in the %clean section of the spec.",
		"empty-scriptlet": "The package declares a scriptlet whose body is " +
			"empty. Remove the section from the spec file.",
		"unexpanded-macro-in-scriptlet": "The scriptlet contains an " +
			"unexpanded %{...} macro, usually a typo or a missing build " +
			"dependency defining the macro.",
	}
}
