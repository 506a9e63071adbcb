// Package main provides the portfolio CLI: the web server plus offline tools
// for the pipeline diagram.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// Exit codes
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitConfigError = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Personal portfolio site with an animated CI/CD pipeline diagram",
	Long: `portfolio serves a single-page portfolio with HTMX fragments, a contact
form, a small admin area and an animated SVG diagram of the site's own
build and deploy pipeline.

Run without a subcommand to start the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.Version = Version
}

// configError marks failures caused by settings rather than runtime faults.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var cerr configError
	if errors.As(err, &cerr) {
		return ExitConfigError
	}
	return ExitError
}
