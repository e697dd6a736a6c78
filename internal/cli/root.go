// Package cli implements the newsagent command line.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Gurpartap/newsagent/internal/config"
	"github.com/Gurpartap/newsagent/internal/logging"
)

// Version is stamped at build time with -ldflags "-X github.com/Gurpartap/newsagent/internal/cli.Version=...".
var Version = "dev"

type app struct {
	v          *viper.Viper
	configPath string
	stdout     io.Writer
	stderr     io.Writer
	registry   *prometheus.Registry
}

// Execute runs the command line with args. Any returned error means exit status 1.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "newsagent",
		Short:         "Collect, filter and summarize the day's news with a tool-using model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default ./newsagent.yaml or $XDG_CONFIG_HOME/newsagent/newsagent.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", string(config.LogFormatText), "log format: text or json")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))

	root.AddCommand(a.runCommand(), a.scheduleCommand(), a.latestCommand(), a.versionCommand())
	return root.ExecuteContext(ctx)
}

func (a *app) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	level, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(a.stderr, level, cfg.Log.Format), nil
}

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), "newsagent "+Version+"\n")
			return err
		},
	}
}
