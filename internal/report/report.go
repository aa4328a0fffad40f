// Package report is the central sink for diagnostics: it applies the
// exception rules, keeps the per-package emission order, counts
// severities, and renders the final output lines.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/models"
)

// Pipeline filters and collects diagnostics for a whole run. It is safe
// for concurrent use by the package workers; each package gets its own
// Report so emission order stays deterministic per package.
type Pipeline struct {
	rules        []config.ExceptionRule
	descriptions map[string]string

	errorCount atomic.Int64

	mu  sync.Mutex
	out io.Writer
}

// New builds a Pipeline writing rendered reports to out. When
// noExceptions is set the configured rules are ignored and every
// diagnostic passes through.
func New(out io.Writer, cfg *config.Config, noExceptions bool) *Pipeline {
	p := &Pipeline{
		descriptions: make(map[string]string),
		out:          out,
	}
	if !noExceptions {
		p.rules = cfg.Exceptions()
	}
	return p
}

// Describe registers the long description for a message id, shown in
// explain mode after each occurrence.
func (p *Pipeline) Describe(message, text string) {
	p.descriptions[message] = text
}

// HasErrors reports whether any non-suppressed error-severity
// diagnostic was recorded anywhere in the run.
func (p *Pipeline) HasErrors() bool {
	return p.errorCount.Load() > 0
}

// Report accumulates the diagnostics of one package
type Report struct {
	pipeline *Pipeline
	pkg      string

	diags      []models.Diagnostic
	counts     map[models.Severity]int
	suppressed int
}

// NewReport opens the per-package diagnostic sequence for pkg
func (p *Pipeline) NewReport(pkg string) *Report {
	return &Report{
		pipeline: p,
		pkg:      pkg,
		counts:   make(map[models.Severity]int),
	}
}

// Add routes one diagnostic through the exception rules. A diagnostic
// is suppressed iff any single rule matches; rule order is irrelevant.
func (r *Report) Add(d models.Diagnostic) {
	d.Package = r.pkg
	for _, rule := range r.pipeline.rules {
		if rule.Matches(d) {
			r.suppressed++
			return
		}
	}
	r.diags = append(r.diags, d)
	r.counts[d.Severity]++
	if d.Severity == models.SeverityError {
		r.pipeline.errorCount.Add(1)
	}
}

// Count returns the number of non-suppressed diagnostics of a severity
func (r *Report) Count(s models.Severity) int { return r.counts[s] }

// Suppressed returns how many diagnostics the exception rules removed
func (r *Report) Suppressed() int { return r.suppressed }

// Diagnostics returns the non-suppressed diagnostics in emission order
func (r *Report) Diagnostics() []models.Diagnostic { return r.diags }

// Flush renders the report. Output of different packages is serialized
// so lines never interleave; within a package the emission order holds.
func (r *Report) Flush(explain bool) {
	p := r.pipeline
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool)
	for _, d := range r.diags {
		line := fmt.Sprintf("%s: %s: %s", d.Package, d.Severity, d.Message)
		if args := d.ArgString(); args != "" {
			line += " " + args
		}
		fmt.Fprintln(p.out, line)

		if explain && !seen[d.Message] {
			seen[d.Message] = true
			if text := p.descriptions[d.Message]; text != "" {
				fmt.Fprintln(p.out, indent(text))
			}
		}
	}
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
