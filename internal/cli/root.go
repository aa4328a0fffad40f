package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpmcheck",
		Short: "Check RPM packages for policy, structural, and linkage conformance",
		Long: `Rpmcheck inspects RPM binary and source packages and reports
policy, structural, and linkage violations as diagnostics. It never
modifies a package.

Targets are RPM file paths or installed package names. Diagnostics can
be suppressed per package through layered exception rules in the
configuration files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewCheckCmd())

	return rootCmd
}
