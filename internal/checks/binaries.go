package checks

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
)

// BinariesCheck analyzes ELF objects through the inspection cache:
// rpath hygiene, soname presence, stack executability, binaries in
// noarch packages.
type BinariesCheck struct{}

func (BinariesCheck) Name() string { return "binaries" }

var sharedLibRe = regexp.MustCompile(`/lib(64)?/[^/]+\.so(\.[0-9]+)*$`)

// candidate limits inspection to entries that can plausibly be ELF or
// executable scripts, keeping the number of spawned analyzers bounded.
func candidate(f loader.FileEntry) bool {
	if !f.IsRegular() || f.IsGhost() || f.IsDoc() {
		return false
	}
	if f.Perm()&0o111 != 0 {
		return true
	}
	return strings.Contains(f.Path, ".so") ||
		strings.HasPrefix(f.Path, "/usr/lib") ||
		strings.HasPrefix(f.Path, "/lib")
}

func (BinariesCheck) Run(ctx context.Context, pkg *loader.Package, cache *inspect.Cache, cfg *config.Config) ([]models.Diagnostic, error) {
	if pkg.Source {
		return nil, nil
	}

	var diags []models.Diagnostic
	add := func(d models.Diagnostic) { diags = append(diags, d) }

	standardRPaths := cfg.List("standard-rpaths")

	for _, f := range pkg.Files() {
		if !candidate(f) {
			continue
		}

		fp, err := pkg.FilePath(f.Path)
		if err != nil {
			if models.IsType(err, models.ErrMalformedPackage) {
				add(diag("binaries", "corrupted-payload", models.SeverityError, err.Error()))
				return diags, nil
			}
			return diags, err
		}

		ft, err := cache.Inspect(ctx, fp, inspect.ToolFileType)
		if err != nil {
			add(inspectionDiag("binaries", f.Path, err))
			continue
		}
		if !ft.Available {
			continue
		}

		if !ft.IsELF() {
			if f.Perm()&0o111 != 0 && !ft.IsScript() &&
				strings.Contains(ft.FileType, "text") {
				add(diag("binaries", "script-without-shebang", models.SeverityError, f.Path))
			}
			continue
		}

		if pkg.Arch == "noarch" {
			add(diag("binaries", "elf-in-noarch-package", models.SeverityError, f.Path))
		}
		if strings.Contains(ft.FileType, "not stripped") {
			add(diag("binaries", "unstripped-binary-or-object", models.SeverityWarning, f.Path))
		}
		if strings.Contains(ft.FileType, "statically linked") {
			add(diag("binaries", "statically-linked-binary", models.SeverityWarning, f.Path))
		}

		dyn, err := cache.Inspect(ctx, fp, inspect.ToolDynamic)
		if err != nil {
			add(inspectionDiag("binaries", f.Path, err))
			continue
		}
		if dyn.Available {
			for _, rp := range dyn.RPaths {
				if !allowedRPath(rp, standardRPaths) {
					add(diag("binaries", "binary-or-shlib-defines-rpath", models.SeverityError, f.Path, rp))
				}
			}
			if sharedLibRe.MatchString(f.Path) && dyn.SONAME == "" {
				add(diag("binaries", "no-soname", models.SeverityWarning, f.Path))
			}
			if dyn.SONAME != "" && path.Base(f.Path) != dyn.SONAME &&
				!strings.HasPrefix(path.Base(f.Path), dyn.SONAME) {
				add(diag("binaries", "invalid-soname", models.SeverityWarning, f.Path, dyn.SONAME))
			}
		}

		ph, err := cache.Inspect(ctx, fp, inspect.ToolProgramHeaders)
		if err != nil {
			add(inspectionDiag("binaries", f.Path, err))
			continue
		}
		if ph.Available {
			if flags, ok := ph.Stack(); ok && strings.Contains(flags, "E") {
				add(diag("binaries", "executable-stack", models.SeverityError, f.Path))
			} else if !ok {
				add(diag("binaries", "missing-PT_GNU_STACK-section", models.SeverityWarning, f.Path))
			}
		}
	}

	return diags, nil
}

func allowedRPath(rp string, standard []string) bool {
	rp = path.Clean(rp)
	for _, std := range standard {
		if rp == std || strings.HasPrefix(rp, std+"/") {
			return true
		}
	}
	// $ORIGIN-relative rpaths are how relocatable bundles link
	return strings.HasPrefix(rp, "$ORIGIN")
}

func inspectionDiag(check, path string, err error) models.Diagnostic {
	if models.IsType(err, models.ErrInspectionTimeout) {
		return diag(check, "inspection-timeout", models.SeverityInfo, path)
	}
	return diag(check, "inspection-failed", models.SeverityInfo, path)
}

func (BinariesCheck) Descriptions() map[string]string {
	return map[string]string{
		"binary-or-shlib-defines-rpath": "The object hardcodes a runtime " +
			"search path outside the standard library directories. The " +
			"dynamic loader will consult it before the system paths, which " +
			"breaks library upgrades and can be hijacked.",
		"no-soname": "A shared library in a library directory carries no " +
			"SONAME, so nothing can link against it reliably.",
		"executable-stack": "The object marks its stack executable " +
			"(GNU_STACK flags include E), defeating a basic exploit " +
			"mitigation. Usually caused by assembler sources missing a " +
			".note.GNU-stack section.",
		"elf-in-noarch-package": "A noarch package must not ship " +
			"architecture-specific ELF objects.",
		"script-without-shebang": "An executable text file has no #! " +
			"interpreter line. Either add one or drop the executable bits.",
	}
}
