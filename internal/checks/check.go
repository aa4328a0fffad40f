// Package checks holds the check registry, the runner that drives all
// registered checks over each target package, and the individual rule
// modules.
package checks

import (
	"context"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// Check is one independent rule module. Checks are read-only against
// the package model and unordered relative to each other: no check may
// rely on another having run first.
type Check interface {
	// Name identifies the check in internal-error diagnostics
	Name() string

	// Run inspects one package and returns its findings. A returned
	// error (or panic) marks the check as internally failed without
	// aborting the other checks for that package.
	Run(ctx context.Context, pkg *loader.Package, cache *inspect.Cache, cfg *config.Config) ([]models.Diagnostic, error)

	// Descriptions maps this check's message ids to their long
	// explanation texts, shown in explain mode.
	Descriptions() map[string]string
}

// Registry is the explicit startup-time collection of checks
type Registry struct {
	checks []Check
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a check
func (r *Registry) Register(c Check) {
	r.checks = append(r.checks, c)
}

// Checks returns the registered checks in registration order
func (r *Registry) Checks() []Check {
	return r.checks
}

// DefaultRegistry returns a registry with every built-in check
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TagsCheck{})
	r.Register(FilesCheck{})
	r.Register(ScriptsCheck{})
	r.Register(BinariesCheck{})
	r.Register(DocsCheck{})
	r.Register(DigestsCheck{})
	r.Register(SignatureCheck{})
	r.Register(ChangelogCheck{})
	r.Register(DepsCheck{})
	return r
}

func diag(check, message string, sev models.Severity, args ...string) models.Diagnostic {
	return models.Diagnostic{
		Check:    check,
		Message:  message,
		Severity: sev,
		Args:     args,
	}
}
