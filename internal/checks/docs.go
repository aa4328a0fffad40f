package checks

import (
	"context"
	"strings"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
	"github.com/ralt/rpmcheck/internal/utils"
)

// DocsCheck validates documentation files: compressed man pages and
// docs must decompress cleanly, and docs should not be executable.
type DocsCheck struct{}

func (DocsCheck) Name() string { return "docs" }

func (DocsCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, _ *config.Config) ([]models.Diagnostic, error) {
	if pkg.Source {
		return nil, nil
	}

	var diags []models.Diagnostic
	add := func(d models.Diagnostic) { diags = append(diags, d) }

	for _, f := range pkg.Files() {
		if !f.IsRegular() || f.IsGhost() {
			continue
		}
		isDoc := f.IsDoc() || strings.HasPrefix(f.Path, "/usr/share/man/") ||
			strings.HasPrefix(f.Path, "/usr/share/doc/")
		if !isDoc {
			continue
		}

		if f.Perm()&0o111 != 0 {
			add(diag("docs", "executable-doc-file", models.SeverityWarning, f.Path))
		}

		var decompress func([]byte) ([]byte, error)
		switch {
		case strings.HasSuffix(f.Path, ".gz"):
			decompress = utils.GzipDecompress
		case strings.HasSuffix(f.Path, ".xz"):
			decompress = utils.XzDecompress
		default:
			continue
		}

		data, err := pkg.FileContent(f.Path)
		if err != nil {
			if models.IsType(err, models.ErrMalformedPackage) {
				add(diag("docs", "corrupted-payload", models.SeverityError, err.Error()))
				return diags, nil
			}
			add(diag("docs", "unreadable-doc-file", models.SeverityWarning, f.Path))
			continue
		}
		if _, err := decompress(data); err != nil {
			add(diag("docs", "corrupt-compressed-doc", models.SeverityError, f.Path))
		}
	}

	return diags, nil
}

func (DocsCheck) Descriptions() map[string]string {
	return map[string]string{
		"corrupt-compressed-doc": "A compressed documentation file does " +
			"not decompress. man and friends will fail to display it.",
		"executable-doc-file": "Documentation files should not carry " +
			"executable permission bits.",
	}
}
