package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmcheck/internal/cli"
)

// Exit codes: 0 when no non-suppressed error diagnostics were found,
// 64 when at least one was, 2 for a fatal engine failure.
const (
	exitOK          = 0
	exitDiagnostics = 64
	exitFatal       = 2
)

func main() {
	// Setup logging format
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetOutput(os.Stderr)

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, cli.ErrDiagnosticsFound) {
			os.Exit(exitDiagnostics)
		}
		logrus.Error(err)
		os.Exit(exitFatal)
	}
	os.Exit(exitOK)
}
