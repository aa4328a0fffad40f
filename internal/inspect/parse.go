package inspect

import (
	"regexp"
	"strings"
)

// readelf -W -d lines look like:
//
//	0x0000000000000001 (NEEDED)  Shared library: [libc.so.6]
//	0x000000000000000e (SONAME)  Library soname: [libfoo.so.1]
//	0x000000000000001d (RUNPATH) Library runpath: [/usr/lib64:/opt/lib]
var dynEntryRe = regexp.MustCompile(`^\s*0x[0-9a-fA-F]+\s+\((?P<key>\w+)\)\s+(?P<value>.*)$`)

// bracketed extracts "x" from trailing "[x]" decorations
var bracketedRe = regexp.MustCompile(`\[([^\]]*)\]\s*$`)

func parseDynamicSection(out string) *Result {
	res := &Result{Tool: ToolDynamic}

	lines := strings.Split(out, "\n")
	seen := false
	for _, line := range lines {
		m := dynEntryRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		seen = true
		key, value := m[1], strings.TrimSpace(m[2])
		res.Dynamic = append(res.Dynamic, DynEntry{Key: key, Value: value})

		switch key {
		case "NEEDED":
			if so := bracketed(value); so != "" {
				res.Needed = append(res.Needed, so)
			}
		case "SONAME":
			res.SONAME = bracketed(value)
		case "RPATH", "RUNPATH":
			for _, p := range strings.Split(bracketed(value), ":") {
				if p != "" {
					res.RPaths = append(res.RPaths, p)
				}
			}
		}
	}

	// readelf prints nothing parseable for files without a dynamic
	// section; an empty dynamic section is still a valid answer as long
	// as the header line appeared.
	res.Available = seen || strings.Contains(out, "Dynamic section at offset") ||
		strings.Contains(out, "There is no dynamic section in this file")
	return res
}

// readelf -W -l program header lines:
//
//	GNU_STACK  0x000000 0x0000000000000000 0x0000000000000000 0x000000 0x000000 RW  0x10
var progHeaderRe = regexp.MustCompile(`^\s+(?P<header>\w+)(\s+0x[0-9a-fA-F]+){5}\s+(?P<flags>[RWE ]{1,3})\s`)

func parseProgramHeaders(out string) *Result {
	res := &Result{Tool: ToolProgramHeaders}

	for _, line := range strings.Split(out, "\n") {
		m := progHeaderRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		flags := strings.ReplaceAll(m[len(m)-1], " ", "")
		res.ProgramHeaders = append(res.ProgramHeaders, ProgHeader{
			Type:  m[1],
			Flags: flags,
		})
	}

	res.Available = len(res.ProgramHeaders) > 0 ||
		strings.Contains(out, "There are no program headers in this file")
	return res
}

func parseFileType(out string) *Result {
	t := strings.TrimSpace(out)
	return &Result{
		Tool:      ToolFileType,
		Available: t != "",
		FileType:  t,
	}
}

func bracketed(value string) string {
	m := bracketedRe.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

// Stack returns the GNU_STACK program header flags, ok=false when the
// binary declares none.
func (r *Result) Stack() (string, bool) {
	for _, h := range r.ProgramHeaders {
		if h.Type == "GNU_STACK" {
			return h.Flags, true
		}
	}
	return "", false
}

// IsELF reports whether the classified file type is an ELF object
func (r *Result) IsELF() bool {
	return strings.HasPrefix(r.FileType, "ELF ")
}

// IsScript reports whether the classified file type is a script
func (r *Result) IsScript() bool {
	return strings.Contains(r.FileType, "script")
}
