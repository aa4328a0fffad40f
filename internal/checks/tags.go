package checks

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// TagsCheck validates the scalar header metadata of a package
type TagsCheck struct{}

func (TagsCheck) Name() string { return "tags" }

func (TagsCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, cfg *config.Config) ([]models.Diagnostic, error) {
	var diags []models.Diagnostic
	add := func(d models.Diagnostic) { diags = append(diags, d) }

	if pkg.Version == "" {
		add(diag("tags", "no-version", models.SeverityError))
	}
	if pkg.Release == "" {
		add(diag("tags", "no-release", models.SeverityError))
	}

	summary := pkg.Tag("summary")
	switch {
	case summary == "":
		add(diag("tags", "no-summary", models.SeverityError))
	case strings.Contains(summary, "\n"):
		add(diag("tags", "summary-on-multiple-lines", models.SeverityWarning))
	case len(summary) > cfg.Int("max-summary-length"):
		add(diag("tags", "summary-too-long", models.SeverityWarning, summary))
	}

	description := pkg.Tag("description")
	switch {
	case description == "":
		add(diag("tags", "no-description", models.SeverityError))
	case strings.TrimSpace(description) == strings.TrimSpace(summary):
		add(diag("tags", "description-same-as-summary", models.SeverityWarning))
	}

	if pkg.Tag("license") == "" {
		add(diag("tags", "no-license", models.SeverityError))
	}
	if pkg.Tag("packager") == "" {
		add(diag("tags", "no-packager", models.SeverityWarning))
	}

	group := pkg.Tag("group")
	if group == "" {
		add(diag("tags", "no-group", models.SeverityWarning))
	} else if cfg.Bool("strict-groups") {
		valid := cfg.List("valid-groups")
		if len(valid) > 0 && !slices.Contains(valid, group) {
			add(diag("tags", "non-standard-group", models.SeverityWarning, group))
		}
	}

	switch u := pkg.Tag("url"); {
	case u == "":
		add(diag("tags", "no-url", models.SeverityWarning))
	default:
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			add(diag("tags", "invalid-url", models.SeverityWarning, u))
		}
	}

	// Release containing a dist macro leftover means the spec never
	// expanded it.
	for _, field := range []struct{ name, value string }{
		{"version", pkg.Version},
		{"release", pkg.Release},
	} {
		if strings.ContainsAny(field.value, "%{}") {
			add(diag("tags", "unexpanded-macro-in-"+field.name, models.SeverityError, field.value))
		}
	}

	if pkg.Name != "" && summary != "" &&
		strings.HasPrefix(strings.ToLower(summary), strings.ToLower(pkg.Name)+" is ") {
		add(diag("tags", "name-repeated-in-summary", models.SeverityInfo, fmt.Sprintf("%.60s", summary)))
	}

	return diags, nil
}

func (TagsCheck) Descriptions() map[string]string {
	return map[string]string{
		"no-summary": "The package lacks a Summary tag. Add a one-line " +
			"description of the package to the spec file.",
		"no-description": "The package lacks a %description section.",
		"no-license": "The package lacks a License tag. Every package must " +
			"declare its license.",
		"summary-too-long": "The summary exceeds the configured maximum " +
			"length (option max-summary-length). Keep it to one short line.",
		"invalid-url": "The URL tag does not parse as an absolute URL with " +
			"a scheme and a host.",
		"non-standard-group": "The Group tag is not in the configured " +
			"valid-groups list.",
	}
}
