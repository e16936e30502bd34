// Package cmd defines and implements the CLI commands for the wayback-crawler executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wayback-crawler",
		Short: "Discover a site's pages and submit them to the Wayback Machine.",
		Long: `wayback-crawler walks every in-scope page reachable from one or more seed
URLs and asks the Internet Archive to capture each one, pacing saves to stay
inside Save Page Now limits and skipping pages captured recently.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./wayback.yaml or $HOME/.wayback-crawler/wayback.yaml)")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so an active crawl winds down and writes its summary.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
