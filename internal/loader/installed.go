package loader

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmcheck/internal/models"
)

// Installed packages are read through the rpm binary instead of a
// container file. Their payload is already on disk, so FileContent
// resolves against the root filesystem and no scratch directory is made.

const queryDelim = "\x1f"

var installedQueryFormat = strings.Join([]string{
	"%{NAME}", "%{VERSION}", "%{RELEASE}", "%|EPOCH?{%{EPOCH}}:{}|", "%{ARCH}",
	"%{SOURCERPM}", "%{SUMMARY}", "%{DESCRIPTION}", "%{LICENSE}", "%{GROUP}",
	"%{URL}", "%{PACKAGER}", "%{VENDOR}", "%{BUILDHOST}",
}, queryDelim)

// LoadInstalled builds a Package from the RPM database entry for name.
func LoadInstalled(name, runID string) (*Package, error) {
	out, err := rpmQuery(name, "--qf", installedQueryFormat)
	if err != nil {
		return nil, &models.CheckError{
			Type:   models.ErrNotFound,
			Target: name,
			Err:    fmt.Errorf("not installed: %w", err),
		}
	}

	fields := strings.Split(out, queryDelim)
	if len(fields) < 14 {
		return nil, &models.CheckError{
			Type:   models.ErrMalformedPackage,
			Target: name,
			Err:    fmt.Errorf("unexpected rpm query output"),
		}
	}

	pkg := NewPackage(PackageInfo{
		Name:          fields[0],
		Version:       fields[1],
		Release:       fields[2],
		Epoch:         noneEmpty(fields[3]),
		Arch:          noneEmpty(fields[4]),
		SourceRPM:     noneEmpty(fields[5]),
		InstalledRoot: "/",
		RunID:         runID,
	})

	for i, tag := range []string{
		"summary", "description", "license", "group",
		"url", "packager", "vendor", "buildhost",
	} {
		if v := noneEmpty(fields[6+i]); v != "" {
			pkg.tags[tag] = v
		}
	}

	if err := loadInstalledFiles(pkg); err != nil {
		logrus.Warnf("Failed to read file list of installed %s: %v", name, err)
	}
	loadInstalledDeps(pkg)
	loadInstalledScriptlets(pkg)
	loadInstalledChangelog(pkg)

	logrus.Debugf("Loaded installed %s (%d files)", pkg.Ident(), len(pkg.files))
	return pkg, nil
}

// ListInstalled returns every package name in the RPM database, for --all.
func ListInstalled() ([]string, error) {
	out, err := exec.Command("rpm", "-qa", "--qf", "%{NAME}\n").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list installed packages: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func rpmQuery(name string, args ...string) (string, error) {
	cmd := exec.Command("rpm", append([]string{"-q", name}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func noneEmpty(s string) string {
	if s == "(none)" {
		return ""
	}
	return s
}

func loadInstalledFiles(pkg *Package) error {
	out, err := rpmQuery(pkg.Name, "--qf",
		"[%{FILENAMES}\t%{FILEMODES}\t%{FILEUSERNAME}\t%{FILEGROUPNAME}\t%{FILESIZES}\t%{FILEDIGESTS}\t%{FILEFLAGS}\t%{FILELINKTOS}\n]")
	if err != nil {
		return err
	}
	for _, line := range strings.Split(out, "\n") {
		cols := strings.Split(line, "\t")
		if len(cols) < 8 || cols[0] == "" {
			continue
		}
		mode, _ := strconv.Atoi(cols[1])
		size, _ := strconv.ParseInt(cols[4], 10, 64)
		flags, _ := strconv.Atoi(cols[6])
		pkg.files = append(pkg.files, FileEntry{
			Path:     cols[0],
			Mode:     mode,
			Owner:    cols[2],
			Group:    cols[3],
			Size:     size,
			Digest:   cols[5],
			Flags:    FileFlag(flags),
			Linkname: cols[7],
		})
	}
	return nil
}

func loadInstalledDeps(pkg *Package) {
	for kind, format := range map[DependencyKind]string{
		Requires:  "[%{REQUIRENAME}\t%{REQUIREFLAGS:depflags}\t%{REQUIREVERSION}\n]",
		Provides:  "[%{PROVIDENAME}\t%{PROVIDEFLAGS:depflags}\t%{PROVIDEVERSION}\n]",
		Conflicts: "[%{CONFLICTNAME}\t%{CONFLICTFLAGS:depflags}\t%{CONFLICTVERSION}\n]",
		Obsoletes: "[%{OBSOLETENAME}\t%{OBSOLETEFLAGS:depflags}\t%{OBSOLETEVERSION}\n]",
	} {
		out, err := rpmQuery(pkg.Name, "--qf", format)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(out, "\n") {
			cols := strings.Split(line, "\t")
			if len(cols) < 3 || cols[0] == "" {
				continue
			}
			pkg.deps[kind] = append(pkg.deps[kind], Dependency{
				Name:       cols[0],
				Comparator: strings.TrimSpace(cols[1]),
				Version:    cols[2],
			})
		}
	}
}

func loadInstalledScriptlets(pkg *Package) {
	for phase, tag := range map[string]string{
		PhasePreInstall:    "PREIN",
		PhasePostInstall:   "POSTIN",
		PhasePreUninstall:  "PREUN",
		PhasePostUninstall: "POSTUN",
	} {
		out, err := rpmQuery(pkg.Name, "--qf", fmt.Sprintf("%%{%s}", tag))
		if err != nil {
			continue
		}
		if s := noneEmpty(strings.TrimSpace(out)); s != "" {
			pkg.scriptlets[phase] = s
		}
	}
}

func loadInstalledChangelog(pkg *Package) {
	out, err := rpmQuery(pkg.Name, "--qf",
		"[%{CHANGELOGTIME}\t%{CHANGELOGNAME}\n]")
	if err != nil {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		cols := strings.Split(line, "\t")
		if len(cols) < 2 || cols[0] == "" {
			continue
		}
		t, err := strconv.ParseInt(cols[0], 10, 64)
		if err != nil {
			continue
		}
		pkg.changelog = append(pkg.changelog, ChangelogEntry{
			Time:   time.Unix(t, 0),
			Author: cols[1],
		})
	}
}
