package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/rpmcheck/internal/checks"
	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/inspect"
	"github.com/ralt/rpmcheck/internal/loader"
	"github.com/ralt/rpmcheck/internal/report"
)

// ErrDiagnosticsFound is returned by the check command when at least
// one non-suppressed error-severity diagnostic was reported. main maps
// it to the dedicated exit code.
var ErrDiagnosticsFound = errors.New("errors were reported")

// checkOptions holds the flag values of the check command
type checkOptions struct {
	configFile   string
	noExceptions bool
	explain      bool
	allInstalled bool
	jobs         int
	timeout      time.Duration
}

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check <targets...>",
		Short: "Run all checks against the given packages",
		Long: `Checks every target package and prints one diagnostic per line:

    <package>: <severity>: <message-id> [args...]

A target is an RPM file path or the name of an installed package.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !opts.allInstalled {
				return fmt.Errorf("no targets given (or use --all)")
			}
			return runCheck(cmd, &opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "f", "", "Additional configuration file")
	cmd.Flags().BoolVarP(&opts.noExceptions, "no-exceptions", "n", false, "Disable all exception filtering")
	cmd.Flags().BoolVarP(&opts.explain, "explain", "i", false, "Print long descriptions after diagnostics")
	cmd.Flags().BoolVarP(&opts.allInstalled, "all", "a", false, "Check all installed packages")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "Number of packages checked in parallel (0 = NumCPU)")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Per-tool inspection timeout (overrides inspect-timeout)")

	return cmd
}

func configSources(extra string) []config.Source {
	sources := []config.Source{
		{Path: "/etc/rpmcheck/config.toml", Optional: true},
	}
	if home, err := os.UserHomeDir(); err == nil {
		sources = append(sources, config.Source{
			Path:     filepath.Join(home, ".config", "rpmcheck", "config.toml"),
			Optional: true,
		})
	}
	if extra != "" {
		// A layer named on the command line must exist and parse
		sources = append(sources, config.Source{Path: extra})
	}
	return sources
}

func runCheck(cmd *cobra.Command, opts *checkOptions, targets []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configSources(opts.configFile))
	if err != nil {
		return err
	}

	if opts.allInstalled {
		installed, err := loader.ListInstalled()
		if err != nil {
			return err
		}
		targets = append(targets, installed...)
	}

	runID := strconv.FormatInt(time.Now().UnixNano(), 36)
	timeout := cfg.Duration("inspect-timeout")
	if opts.timeout > 0 {
		timeout = opts.timeout
	}
	cache := inspect.NewCache(timeout, cfg.Int("inspect-concurrency"))
	pipeline := report.New(cmd.OutOrStdout(), cfg, opts.noExceptions)

	runner := checks.NewRunner(checks.DefaultRegistry(), cfg, cache, pipeline, runID)
	runner.Jobs = opts.jobs
	runner.Explain = opts.explain

	logrus.Debugf("Checking %d targets with run id %s", len(targets), runID)
	if err := runner.Run(ctx, targets); err != nil {
		return err
	}

	if pipeline.HasErrors() {
		return ErrDiagnosticsFound
	}
	return nil
}
