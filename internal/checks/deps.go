package checks

import (
	"context"
	"strings"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// DepsCheck validates the dependency sets
type DepsCheck struct{}

func (DepsCheck) Name() string { return "deps" }

func (DepsCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, _ *config.Config) ([]models.Diagnostic, error) {
	var diags []models.Diagnostic
	add := func(d models.Diagnostic) { diags = append(diags, d) }

	provides := make(map[string]int)
	for _, p := range pkg.Dependencies(loader.Provides) {
		provides[p.Name]++
	}
	for name, n := range provides {
		if n > 1 {
			add(diag("deps", "useless-provides", models.SeverityWarning, name))
		}
	}

	for _, r := range pkg.Dependencies(loader.Requires) {
		// Explicit dependencies on library package names defeat the
		// automatic soname dependencies rpmbuild generates.
		if strings.HasPrefix(r.Name, "lib") && !strings.Contains(r.Name, ".so") &&
			!strings.HasPrefix(r.Name, "lib/") && r.Comparator == "" {
			add(diag("deps", "explicit-lib-dependency", models.SeverityWarning, r.Name))
		}
	}

	for _, o := range pkg.Dependencies(loader.Obsoletes) {
		if provides[o.Name] == 0 {
			add(diag("deps", "obsolete-not-provided", models.SeverityWarning, o.Name))
		}
	}

	for _, c := range pkg.Dependencies(loader.Conflicts) {
		if c.Name == pkg.Name {
			add(diag("deps", "self-conflict", models.SeverityError, c.Name))
		}
	}

	return diags, nil
}

func (DepsCheck) Descriptions() map[string]string {
	return map[string]string{
		"explicit-lib-dependency": "The package explicitly requires a " +
			"library package by name. Rely on the automatically generated " +
			"soname dependencies instead.",
		"obsolete-not-provided": "The package obsoletes another without " +
			"providing it, so upgrades silently drop the old capability.",
	}
}
