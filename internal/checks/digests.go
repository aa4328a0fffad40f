package checks

import (
	"context"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
	"github.com/ralt/rpmcheck/internal/utils"
)

// DigestsCheck recomputes the digest of every extracted payload file
// and compares it to the digest recorded in the header. A mismatch
// means the container was tampered with or corrupted after build.
type DigestsCheck struct{}

func (DigestsCheck) Name() string { return "digests" }

func (DigestsCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, _ *config.Config) ([]models.Diagnostic, error) {
	// Installed payloads legitimately drift (config edits, prelink);
	// digest verification there is rpm -V territory.
	if pkg.Installed() || pkg.Source {
		return nil, nil
	}

	var diags []models.Diagnostic
	for _, f := range pkg.Files() {
		if !f.IsRegular() || f.IsGhost() || f.Digest == "" {
			continue
		}

		fp, err := pkg.FilePath(f.Path)
		if err != nil {
			if models.IsType(err, models.ErrMalformedPackage) {
				diags = append(diags, diag("digests", "corrupted-payload", models.SeverityError, err.Error()))
				return diags, nil
			}
			return diags, err
		}

		sums, err := utils.CalculateChecksums(fp)
		if err != nil {
			diags = append(diags, diag("digests", "unreadable-payload-file", models.SeverityWarning, f.Path))
			continue
		}

		// Header digest width tells the algorithm apart
		var actual string
		switch len(f.Digest) {
		case 32:
			actual = sums.MD5
		case 40:
			actual = sums.SHA1
		case 64:
			actual = sums.SHA256
		case 128:
			actual = sums.SHA512
		default:
			continue
		}
		if actual != f.Digest {
			diags = append(diags, diag("digests", "file-digest-mismatch", models.SeverityError, f.Path))
		}
	}

	return diags, nil
}

func (DigestsCheck) Descriptions() map[string]string {
	return map[string]string{
		"file-digest-mismatch": "The file content in the payload does not " +
			"match the digest recorded in the package header. The package " +
			"was corrupted or modified after it was built.",
	}
}
