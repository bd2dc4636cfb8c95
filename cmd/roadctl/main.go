// Command roadctl inspects the road catalog and asks questions from the
// terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/pkg/config"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	dataDir    string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "roadctl",
		Short:         "Query road traffic summaries",
		Long:          "roadctl lists road versions, prints traffic summaries, compares road files and answers questions about roads.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to roadwise.{yaml,toml,json}")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "override the data directory")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newScanCmd(opts),
		newVersionsCmd(opts),
		newSummaryCmd(opts),
		newResolveCmd(opts),
		newDiffCmd(),
		newAskCmd(opts),
		newGraphCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *options) config() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	return cfg, nil
}

// open loads the configuration and wires the engine. When index is set and
// the resolver uses embeddings, the similarity index is built first.
func (o *options) open(cmd *cobra.Command, appOpts app.Options, index bool, tweak func(*config.Config)) (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	if tweak != nil {
		tweak(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	a, err := app.New(cmd.Context(), cfg, appOpts, o.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}
	if index && a.IndexEnabled() {
		if err := a.BuildIndex(cmd.Context()); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}
