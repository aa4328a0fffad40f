package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmcheck/internal/models"
)

// RPM packages start with 0xED 0xAB 0xEE 0xDB
var rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

// Resolve turns a CLI target into a Package. A readable file is loaded
// as an RPM container; otherwise the target is looked up as an installed
// package name in the RPM database.
func Resolve(target, runID string) (*Package, error) {
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		return Load(target, runID)
	}
	pkg, err := LoadInstalled(target, runID)
	if err == nil {
		return pkg, nil
	}
	if models.IsType(err, models.ErrMalformedPackage) {
		return nil, err
	}
	return nil, &models.CheckError{
		Type:   models.ErrNotFound,
		Target: target,
		Err:    fmt.Errorf("neither a readable file nor an installed package"),
	}
}

// Load reads an RPM file into a Package. The file handle stays open
// until Close so the payload can be expanded lazily.
func Load(path, runID string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.CheckError{Type: models.ErrNotFound, Target: path, Err: err}
	}

	magic := make([]byte, 4)
	if n, _ := io.ReadFull(f, magic); n != 4 || !bytes.Equal(magic, rpmMagic) {
		f.Close()
		return nil, &models.CheckError{
			Type:   models.ErrMalformedPackage,
			Target: path,
			Err:    fmt.Errorf("not an RPM container"),
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, &models.CheckError{Type: models.ErrMalformedPackage, Target: path, Err: err}
	}

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		f.Close()
		return nil, &models.CheckError{
			Type:   models.ErrMalformedPackage,
			Target: path,
			Err:    fmt.Errorf("failed to read RPM: %w", err),
		}
	}

	hdr := rpm.Header
	nevra, err := hdr.GetNEVRA()
	if err != nil {
		f.Close()
		return nil, &models.CheckError{
			Type:   models.ErrMalformedPackage,
			Target: path,
			Err:    fmt.Errorf("failed to read NEVRA: %w", err),
		}
	}

	info := PackageInfo{
		Name:       nevra.Name,
		Version:    nevra.Version,
		Release:    nevra.Release,
		Epoch:      nevra.Epoch,
		Arch:       nevra.Arch,
		SourceRPM:  getStringTag(hdr, rpmutils.SOURCERPM),
		Tags:       scalarTags(hdr),
		Deps:       dependencySets(hdr),
		Scriptlets: scriptletTags(hdr),
		Changelog:  changelogEntries(hdr),
		Path:       path,
		Expand:     rpm.ExpandPayload,
		RunID:      runID,
	}

	files, err := hdr.GetFiles()
	if err != nil {
		logrus.Warnf("Failed to read file list of %s: %v", path, err)
	}
	for _, fi := range files {
		info.Files = append(info.Files, FileEntry{
			Path:     fi.Name(),
			Mode:     fi.Mode(),
			Owner:    fi.UserName(),
			Group:    fi.GroupName(),
			Size:     fi.Size(),
			Digest:   fi.Digest(),
			Flags:    FileFlag(fi.Flags()),
			Linkname: fi.Linkname(),
		})
	}

	pkg := NewPackage(info)
	pkg.fh = f

	logrus.Debugf("Loaded %s (%d files)", pkg.Ident(), len(pkg.files))
	return pkg, nil
}

var scalarTagNames = map[string]int{
	"summary":      rpmutils.SUMMARY,
	"description":  rpmutils.DESCRIPTION,
	"license":      rpmutils.LICENSE,
	"group":        rpmutils.GROUP,
	"url":          rpmutils.URL,
	"packager":     rpmutils.PACKAGER,
	"vendor":       rpmutils.VENDOR,
	"buildhost":    rpmutils.BUILDHOST,
	"distribution": rpmutils.DISTRIBUTION,
}

func scalarTags(hdr *rpmutils.RpmHeader) map[string]string {
	tags := make(map[string]string, len(scalarTagNames))
	for name, tag := range scalarTagNames {
		if v := getStringTag(hdr, tag); v != "" {
			tags[name] = v
		}
	}
	return tags
}

var scriptletTagNames = map[string]int{
	PhasePreInstall:    rpmutils.PREIN,
	PhasePostInstall:   rpmutils.POSTIN,
	PhasePreUninstall:  rpmutils.PREUN,
	PhasePostUninstall: rpmutils.POSTUN,
}

func scriptletTags(hdr *rpmutils.RpmHeader) map[string]string {
	scripts := make(map[string]string)
	for phase, tag := range scriptletTagNames {
		if v := getStringTag(hdr, tag); v != "" {
			scripts[phase] = v
		}
	}
	return scripts
}

// RPM dependency sense flags
const (
	senseLess    = 1 << 1
	senseGreater = 1 << 2
	senseEqual   = 1 << 3
)

func comparator(flags int) string {
	var c string
	if flags&senseLess != 0 {
		c += "<"
	}
	if flags&senseGreater != 0 {
		c += ">"
	}
	if flags&senseEqual != 0 {
		c += "="
	}
	return c
}

func dependencySets(hdr *rpmutils.RpmHeader) map[DependencyKind][]Dependency {
	kinds := []struct {
		kind                   DependencyKind
		names, versions, flags int
	}{
		{Requires, rpmutils.REQUIRENAME, rpmutils.REQUIREVERSION, rpmutils.REQUIREFLAGS},
		{Provides, rpmutils.PROVIDENAME, rpmutils.PROVIDEVERSION, rpmutils.PROVIDEFLAGS},
		{Conflicts, rpmutils.CONFLICTNAME, rpmutils.CONFLICTVERSION, rpmutils.CONFLICTFLAGS},
		{Obsoletes, rpmutils.OBSOLETENAME, rpmutils.OBSOLETEVERSION, rpmutils.OBSOLETEFLAGS},
	}

	deps := make(map[DependencyKind][]Dependency, len(kinds))
	for _, k := range kinds {
		names := getStringSliceTag(hdr, k.names)
		versions := getStringSliceTag(hdr, k.versions)
		flags := getIntSliceTag(hdr, k.flags)
		for i, name := range names {
			d := Dependency{Name: name}
			if i < len(versions) {
				d.Version = versions[i]
			}
			if i < len(flags) && d.Version != "" {
				d.Comparator = comparator(flags[i])
			}
			deps[k.kind] = append(deps[k.kind], d)
		}
	}
	return deps
}

func changelogEntries(hdr *rpmutils.RpmHeader) []ChangelogEntry {
	times := getIntSliceTag(hdr, rpmutils.CHANGELOGTIME)
	names := getStringSliceTag(hdr, rpmutils.CHANGELOGNAME)
	texts := getStringSliceTag(hdr, rpmutils.CHANGELOGTEXT)

	var entries []ChangelogEntry
	for i := range times {
		e := ChangelogEntry{Time: time.Unix(int64(times[i]), 0)}
		if i < len(names) {
			e.Author = names[i]
		}
		if i < len(texts) {
			e.Text = texts[i]
		}
		entries = append(entries, e)
	}
	return entries
}

// getStringTag safely gets a string tag from the header
func getStringTag(hdr *rpmutils.RpmHeader, tag int) string {
	val, err := hdr.Get(tag)
	if err != nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// getStringSliceTag safely gets a string slice tag from the header
func getStringSliceTag(hdr *rpmutils.RpmHeader, tag int) []string {
	val, err := hdr.Get(tag)
	if err != nil {
		return nil
	}
	slice, ok := val.([]string)
	if !ok {
		return nil
	}
	var result []string
	for _, s := range slice {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// getIntSliceTag safely gets an integer slice tag, tolerating the
// different widths the header codec may hand back
func getIntSliceTag(hdr *rpmutils.RpmHeader, tag int) []int {
	val, err := hdr.Get(tag)
	if err != nil {
		return nil
	}
	switch v := val.(type) {
	case []int:
		return v
	case []int32:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []uint32:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []int64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []uint64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	default:
		return nil
	}
}
