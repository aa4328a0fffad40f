package checks

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// ChangelogCheck validates the presence and sanity of the changelog
type ChangelogCheck struct{}

func (ChangelogCheck) Name() string { return "changelog" }

func (ChangelogCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, _ *config.Config) ([]models.Diagnostic, error) {
	entries := pkg.Changelog()
	if len(entries) == 0 {
		return []models.Diagnostic{
			diag("changelog", "no-changelog", models.SeverityWarning),
		}, nil
	}

	var diags []models.Diagnostic

	// Allow a day of clock skew between build hosts
	horizon := time.Now().Add(24 * time.Hour)
	if entries[0].Time.After(horizon) {
		diags = append(diags, diag("changelog", "changelog-time-in-future", models.SeverityError,
			entries[0].Time.UTC().Format(time.RFC3339)))
	}

	for _, e := range entries {
		if !utf8.ValidString(e.Text) || !utf8.ValidString(e.Author) {
			diags = append(diags, diag("changelog", "changelog-not-utf8", models.SeverityWarning))
			break
		}
	}

	return diags, nil
}

func (ChangelogCheck) Descriptions() map[string]string {
	return map[string]string{
		"no-changelog": "The package has no %changelog section. Changelogs " +
			"let users and QA trace what changed between releases.",
		"changelog-time-in-future": "The newest changelog entry is dated " +
			"in the future; the build host clock or the spec date is wrong.",
	}
}
