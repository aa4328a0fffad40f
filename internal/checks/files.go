package checks

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// FilesCheck validates payload metadata: permissions, placement,
// ownership oddities. It never reads file content.
type FilesCheck struct{}

func (FilesCheck) Name() string { return "files" }

func (FilesCheck) Run(_ context.Context, pkg *loader.Package, _ *inspect.Cache, _ *config.Config) ([]models.Diagnostic, error) {
	var diags []models.Diagnostic
	add := func(d models.Diagnostic) { diags = append(diags, d) }

	seen := make(map[string]bool)

	for _, f := range pkg.Files() {
		perm := f.Perm()
		octal := fmt.Sprintf("%04o", perm)

		if seen[f.Path] {
			add(diag("files", "duplicated-path", models.SeverityError, f.Path))
		}
		seen[f.Path] = true

		if f.IsRegular() {
			// Special bits and world-writability are independent defects:
			// a setuid file that is also world-writable reports both.
			if perm&0o4000 != 0 {
				add(diag("files", "setuid-binary", models.SeverityError, f.Path, f.Owner, octal))
			}
			if perm&0o2000 != 0 {
				add(diag("files", "setgid-binary", models.SeverityError, f.Path, f.Group, octal))
			}
			if perm&0o002 != 0 {
				// world-writable regular files; 0777 is the classic case
				add(diag("files", "strange-permission", models.SeverityWarning, f.Path, octal))
			}

			if f.Size == 0 && !f.IsGhost() && f.Flags&loader.FlagConfig == 0 &&
				!strings.Contains(path.Base(f.Path), "lock") {
				add(diag("files", "zero-length", models.SeverityWarning, f.Path))
			}
		}

		if f.IsDir() && perm&0o002 != 0 && perm&0o1000 == 0 {
			add(diag("files", "world-writable-dir-without-sticky-bit", models.SeverityError, f.Path, octal))
		}

		if strings.HasPrefix(path.Base(f.Path), ".") && !f.IsGhost() {
			add(diag("files", "hidden-file-or-dir", models.SeverityWarning, f.Path))
		}

		switch {
		case strings.HasPrefix(f.Path, "/tmp/"), strings.HasPrefix(f.Path, "/var/tmp/"):
			add(diag("files", "dir-or-file-in-tmp", models.SeverityError, f.Path))
		case strings.HasPrefix(f.Path, "/home/"):
			add(diag("files", "dir-or-file-in-home", models.SeverityError, f.Path))
		}

		if f.Owner == "" || f.Group == "" {
			add(diag("files", "missing-file-ownership", models.SeverityError, f.Path))
		}

		if f.IsSymlink() && f.Linkname == "" {
			add(diag("files", "symlink-without-target", models.SeverityError, f.Path))
		}
	}

	return diags, nil
}

func (FilesCheck) Descriptions() map[string]string {
	return map[string]string{
		"strange-permission": "A regular file is packaged with unusual, " +
			"world-writable permissions. Any user on the system could modify " +
			"it; this is almost never intended.",
		"setuid-binary": "The file is packaged setuid. Setuid binaries are " +
			"a common privilege-escalation vector and need explicit review.",
		"dir-or-file-in-tmp": "Packaged files must not live under /tmp or " +
			"/var/tmp; those trees are volatile and host-local.",
		"zero-length": "The packaged file is empty. If it is intentional " +
			"(a lock or marker file), flag it %ghost or %config.",
	}
}
