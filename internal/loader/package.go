package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ralt/rpmcheck/internal/models"
)

// DependencyKind selects one of the package dependency sets
type DependencyKind int

const (
	Requires DependencyKind = iota
	Provides
	Conflicts
	Obsoletes
)

// Dependency is one entry of a dependency set, e.g. {"libc.so.6", ">=", "2.34"}.
// Comparator is empty for unversioned dependencies.
type Dependency struct {
	Name       string
	Comparator string
	Version    string
}

// ChangelogEntry is one changelog record, newest first as stored in the header
type ChangelogEntry struct {
	Time   time.Time
	Author string
	Text   string
}

// FileFlag is the RPM per-file attribute bitmask
type FileFlag int

const (
	FlagConfig    FileFlag = 1 << 0
	FlagDoc       FileFlag = 1 << 1
	FlagMissingOK FileFlag = 1 << 3
	FlagNoReplace FileFlag = 1 << 4
	FlagGhost     FileFlag = 1 << 6
	FlagLicense   FileFlag = 1 << 7
)

// Scriptlet phases
const (
	PhasePreInstall    = "prein"
	PhasePostInstall   = "postin"
	PhasePreUninstall  = "preun"
	PhasePostUninstall = "postun"
)

// FileEntry describes one file of the package payload
type FileEntry struct {
	Path     string
	Mode     int
	Owner    string
	Group    string
	Size     int64
	Digest   string
	Flags    FileFlag
	Linkname string
}

// IsSymlink reports whether the entry is a symbolic link
func (f FileEntry) IsSymlink() bool { return f.Mode&0o170000 == 0o120000 }

// IsDir reports whether the entry is a directory
func (f FileEntry) IsDir() bool { return f.Mode&0o170000 == 0o040000 }

// IsRegular reports whether the entry is a regular file
func (f FileEntry) IsRegular() bool { return f.Mode&0o170000 == 0o100000 }

// Perm returns the permission bits of the entry
func (f FileEntry) Perm() int { return f.Mode & 0o7777 }

// IsDoc reports whether the entry carries the doc or license flag
func (f FileEntry) IsDoc() bool { return f.Flags&(FlagDoc|FlagLicense) != 0 }

// IsGhost reports whether the entry is a ghost (not shipped in the payload)
func (f FileEntry) IsGhost() bool { return f.Flags&FlagGhost != 0 }

// Package is the read-only view of one RPM used by all checks. Payload
// content is materialized lazily: the first FilePath or FileContent call
// extracts the whole payload into a private scratch directory, removed
// again by Close.
type Package struct {
	Name      string
	Version   string
	Release   string
	Epoch     string
	Arch      string
	SourceRPM string
	Source    bool

	tags       map[string]string
	deps       map[DependencyKind][]Dependency
	scriptlets map[string]string
	changelog  []ChangelogEntry
	files      []FileEntry

	// file-backed packages
	path   string
	expand func(dest string) error
	fh     *os.File

	// installed packages read content from the live filesystem
	installedRoot string

	runID       string
	scratch     string
	extractOnce sync.Once
	extractErr  error
}

// Ident returns the name-version-release.arch identity used in reports
// and scratch directory names.
func (p *Package) Ident() string {
	if p.Arch == "" {
		return fmt.Sprintf("%s-%s-%s", p.Name, p.Version, p.Release)
	}
	return fmt.Sprintf("%s-%s-%s.%s", p.Name, p.Version, p.Release, p.Arch)
}

// Tag returns a scalar header tag by canonical lowercase name
// ("summary", "license", "url", ...), or "" when absent.
func (p *Package) Tag(name string) string { return p.tags[name] }

// Files returns the payload file list
func (p *Package) Files() []FileEntry { return p.files }

// Scriptlet returns the script body for a phase, ok=false when the
// package has no scriptlet for that phase.
func (p *Package) Scriptlet(phase string) (string, bool) {
	s, ok := p.scriptlets[phase]
	return s, ok
}

// Scriptlets returns all present scriptlets keyed by phase
func (p *Package) Scriptlets() map[string]string { return p.scriptlets }

// Dependencies returns one dependency set
func (p *Package) Dependencies(kind DependencyKind) []Dependency { return p.deps[kind] }

// Changelog returns the ordered changelog entries
func (p *Package) Changelog() []ChangelogEntry { return p.changelog }

// Path returns the on-disk path of the RPM file, "" for installed packages
func (p *Package) Path() string { return p.path }

// Installed reports whether the package was resolved from the RPM database
func (p *Package) Installed() bool { return p.installedRoot != "" }

// FilePath returns an on-disk path for path's content, extracting the
// payload on first use. Installed packages resolve against the live
// filesystem and need no extraction.
func (p *Package) FilePath(path string) (string, error) {
	if p.installedRoot != "" {
		return filepath.Join(p.installedRoot, path), nil
	}
	if err := p.extract(); err != nil {
		return "", err
	}
	return filepath.Join(p.scratch, path), nil
}

// NewPackage assembles a Package from already-decoded metadata. Load
// and LoadInstalled use it internally; tests use it to build fixtures.
func NewPackage(info PackageInfo) *Package {
	pkg := &Package{
		Name:          info.Name,
		Version:       info.Version,
		Release:       info.Release,
		Epoch:         info.Epoch,
		Arch:          info.Arch,
		SourceRPM:     info.SourceRPM,
		Source:        info.SourceRPM == "",
		tags:          info.Tags,
		deps:          info.Deps,
		scriptlets:    info.Scriptlets,
		changelog:     info.Changelog,
		files:         info.Files,
		path:          info.Path,
		expand:        info.Expand,
		installedRoot: info.InstalledRoot,
		runID:         info.RunID,
	}
	if pkg.tags == nil {
		pkg.tags = make(map[string]string)
	}
	if pkg.deps == nil {
		pkg.deps = make(map[DependencyKind][]Dependency)
	}
	if pkg.scriptlets == nil {
		pkg.scriptlets = make(map[string]string)
	}
	return pkg
}

// PackageInfo is the decoded metadata NewPackage assembles a Package
// from. Expand materializes the payload into a directory; it is unset
// for installed packages, which read content from InstalledRoot.
type PackageInfo struct {
	Name      string
	Version   string
	Release   string
	Epoch     string
	Arch      string
	SourceRPM string

	Tags       map[string]string
	Deps       map[DependencyKind][]Dependency
	Scriptlets map[string]string
	Changelog  []ChangelogEntry
	Files      []FileEntry

	Path          string
	Expand        func(dest string) error
	InstalledRoot string
	RunID         string
}

// FileContent reads the content of one payload file
func (p *Package) FileContent(path string) ([]byte, error) {
	fp, err := p.FilePath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fp)
}

func (p *Package) extract() error {
	p.extractOnce.Do(func() {
		base := filepath.Join(os.TempDir(), "rpmcheck-"+p.runID)
		if err := os.MkdirAll(base, 0o700); err != nil {
			p.extractErr = err
			return
		}
		dir, err := os.MkdirTemp(base, p.Ident()+"-")
		if err != nil {
			p.extractErr = err
			return
		}
		p.scratch = dir
		if p.expand == nil {
			p.extractErr = &models.CheckError{
				Type:   models.ErrMalformedPackage,
				Target: p.Ident(),
				Err:    fmt.Errorf("package has no payload source"),
			}
			return
		}
		if err := p.expand(dir); err != nil {
			p.extractErr = &models.CheckError{
				Type:   models.ErrMalformedPackage,
				Target: p.Ident(),
				Err:    fmt.Errorf("payload extraction: %w", err),
			}
		}
	})
	return p.extractErr
}

// Close releases the scratch directory and the underlying file handle.
// Safe to call multiple times and on packages that never extracted.
func (p *Package) Close() error {
	var first error
	if p.scratch != "" {
		if err := os.RemoveAll(p.scratch); err != nil {
			first = err
		}
		p.scratch = ""
	}
	if p.fh != nil {
		if err := p.fh.Close(); err != nil && first == nil {
			first = err
		}
		p.fh = nil
	}
	return first
}
