package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightsagent/insights-agent/agent/internal/client"
	"github.com/insightsagent/insights-agent/agent/internal/config"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	verbose    bool

	fromStdin bool
	noGPG     bool
	offline   bool
	outputDir string
	watch     bool
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "insights-agent",
		Short: "Collect host data according to signed collection rules.",
		Long: `insights-agent resolves the collection rules for this host, either from
standard input or from the local rules cache, checks their GPG signature and
collects the host data they name, minus anything excluded by remove.conf.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", config.DefaultConfigFile, "path to config file")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log at debug level")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newCollectCmd(o, stdin), newResolveCmd(o, stdin))
	return root
}

func newCollectCmd(o *options, stdin io.Reader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Resolve collection rules and run a collection.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			if o.watch && cfg.FromStdin {
				return errors.New("--watch cannot be combined with rules from stdin")
			}
			c := client.New(cfg, stdin)

			if err := runCollect(cmd.Context(), c, cmd.OutOrStdout()); err != nil {
				return err
			}
			if !o.watch {
				return nil
			}
			return config.Watch(cmd.Context(), c.WatchPaths(), func(path string) {
				slog.Info("rules changed, collecting again", "path", path)
				if err := runCollect(cmd.Context(), c, cmd.OutOrStdout()); err != nil {
					slog.Error("collection failed", "err", err)
				}
			})
		},
	}
	o.addRuleFlags(cmd)
	cmd.Flags().StringVar(&o.outputDir, "output-dir", "", "directory receiving collection runs (overrides output_dir)")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "collect again whenever the rules cache or removal files change")
	return cmd
}

func newResolveCmd(o *options, stdin io.Reader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved collection and removal rules as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			resolved, err := client.New(cfg, stdin).Resolve(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resolved)
		},
	}
	o.addRuleFlags(cmd)
	return cmd
}

func (o *options) addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.fromStdin, "from-stdin", false, "read signed collection rules from standard input")
	cmd.Flags().BoolVar(&o.noGPG, "no-gpg", false, "do not verify the signature of collection rules")
	cmd.Flags().BoolVar(&o.offline, "offline", false, "do not use cached branch info")
}

// load reads the config file, applies flag overrides and sets up logging.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	o.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("config loaded",
		"config", o.configPath,
		"from_stdin", cfg.FromStdin,
		"gpg", cfg.GPG,
		"offline", cfg.Offline,
	)
	if !cfg.GPG {
		slog.Warn("signature validation of collection rules is disabled")
	}
	return cfg, nil
}

// apply overrides cfg with the flags that were set explicitly.
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("from-stdin") {
		cfg.FromStdin = o.fromStdin
	}
	if flags.Changed("no-gpg") {
		cfg.GPG = !o.noGPG
	}
	if flags.Changed("offline") {
		cfg.Offline = o.offline
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.outputDir
	}
}

func runCollect(ctx context.Context, c *client.Client, out io.Writer) error {
	dir, err := c.Collect(ctx)
	if err != nil {
		return err
	}
	slog.Info("collection complete", "output", dir)
	_, err = fmt.Fprintln(out, dir)
	return err
}
