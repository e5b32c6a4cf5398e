// Package cli implements shelfctl, a terminal client for a docshelf server.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docshelf/docshelf/internal/browser"
	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/pkg/manifest"
	"github.com/docshelf/docshelf/pkg/retry"
)

// Version is injected at build time via -ldflags
var Version = "dev"

type options struct {
	server  string
	timeout time.Duration
	retries int
	verbose bool
}

// NewRootCommand creates the shelfctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "shelfctl",
		Short: "Browse, preview and search a docshelf library",
		Long: `shelfctl loads the instructions manifest from a docshelf server and runs
the same tree, preview and search pipeline as the web client.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			return logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"})
		},
	}

	server := os.Getenv("DOCSHELF_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "docshelf server URL (env DOCSHELF_SERVER)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	cmd.PersistentFlags().IntVar(&opts.retries, "retries", 3, "attempts per request")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	cmd.AddCommand(newTreeCommand(opts))
	cmd.AddCommand(newPreviewCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))

	return cmd
}

// openSession loads the library from the configured server.
func openSession(ctx context.Context, opts *options) (*browser.Session, error) {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = max(opts.retries, 1)

	origin := strings.TrimRight(opts.server, "/")
	f := fetch.NewHTTPFetcher(fetch.HTTPConfig{
		BaseURL:     origin,
		Timeout:     opts.timeout,
		RetryConfig: rc,
	})
	s := browser.New(f, browser.Options{PublicOrigin: origin})
	if err := s.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load library from %s: %w", origin, err)
	}
	return s, nil
}

// libraryPath accepts a full node path or one relative to the library root.
func libraryPath(arg string) string {
	arg = strings.Trim(arg, "/")
	prefix := manifest.AssetRoot + "/" + manifest.LibraryDir
	if arg == prefix || strings.HasPrefix(arg, prefix+"/") {
		return arg
	}
	return prefix + "/" + arg
}
