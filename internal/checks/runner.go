package checks

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/models"
	"github.com/ralt/rpmcheck/internal/report"
)

// Runner evaluates targets in parallel with a bounded worker pool.
// Packages are independent; within one package the checks run in
// registration order and report into that package's own Report, so
// emission order is deterministic per package.
type Runner struct {
	Registry *Registry
	Config   *config.Config
	Cache    *inspect.Cache
	Pipeline *report.Pipeline
	Jobs     int
	Explain  bool
	RunID    string
}

// NewRunner wires a Runner and registers every check's descriptions
// with the pipeline.
func NewRunner(reg *Registry, cfg *config.Config, cache *inspect.Cache, pipe *report.Pipeline, runID string) *Runner {
	for _, c := range reg.Checks() {
		for msg, text := range c.Descriptions() {
			pipe.Describe(msg, text)
		}
	}
	return &Runner{
		Registry: reg,
		Config:   cfg,
		Cache:    cache,
		Pipeline: pipe,
		RunID:    runID,
	}
}

// Run checks every target. Per-target failures are isolated: a package
// that cannot be loaded surfaces as diagnostics for that target while
// the remaining targets are still checked.
func (r *Runner) Run(ctx context.Context, targets []string) error {
	jobs := r.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			r.checkTarget(gctx, target)
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) checkTarget(ctx context.Context, target string) {
	pkg, err := loader.Resolve(target, r.RunID)
	if err != nil {
		rep := r.Pipeline.NewReport(target)
		switch {
		case models.IsType(err, models.ErrMalformedPackage):
			rep.Add(diag("loader", "malformed-package", models.SeverityError, err.Error()))
		default:
			rep.Add(diag("loader", "package-not-found", models.SeverityError, target))
		}
		rep.Flush(r.Explain)
		return
	}
	r.checkPackage(ctx, pkg)
}

// checkPackage runs every registered check against one loaded package,
// then releases its scratch resources and renders its report. The
// deferred Close guarantees scratch cleanup even when a check fails.
func (r *Runner) checkPackage(ctx context.Context, pkg *loader.Package) {
	defer func() {
		if err := pkg.Close(); err != nil {
			logrus.Warnf("Failed to clean up scratch directory of %s: %v", pkg.Ident(), err)
		}
	}()

	rep := r.Pipeline.NewReport(pkg.Ident())
	for _, c := range r.Registry.Checks() {
		r.runCheck(ctx, c, pkg, rep)
	}
	rep.Flush(r.Explain)

	logrus.Debugf("%s: %d errors, %d warnings, %d suppressed",
		pkg.Ident(),
		rep.Count(models.SeverityError),
		rep.Count(models.SeverityWarning),
		rep.Suppressed())
}

// runCheck executes one check, converting an error return or a panic
// into an internal-error diagnostic so the remaining checks still run.
func (r *Runner) runCheck(ctx context.Context, c Check, pkg *loader.Package, rep *report.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("Check %s panicked on %s: %v", c.Name(), pkg.Ident(), rec)
			rep.Add(diag(c.Name(), "internal-error", models.SeverityError,
				c.Name(), fmt.Sprintf("%v", rec)))
		}
	}()

	diags, err := c.Run(ctx, pkg, r.Cache, r.Config)
	if err != nil {
		rep.Add(diag(c.Name(), "internal-error", models.SeverityError, c.Name(), err.Error()))
		return
	}
	for _, d := range diags {
		d.Check = c.Name()
		rep.Add(d)
	}
}
