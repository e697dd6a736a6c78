package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/newsagent/internal/archive"
	"github.com/Gurpartap/newsagent/internal/config"
	"github.com/Gurpartap/newsagent/internal/output"
)

func (a *app) latestCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the most recent archived digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if err := validateStdoutFormat(format); err != nil {
				return err
			}
			if cfg.Archive.Path == "" {
				return errors.New("latest: archive.path is not configured")
			}

			store, err := archive.Open(cmd.Context(), cfg.Archive.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			digest, err := store.LatestDigest(cmd.Context())
			if err != nil {
				return err
			}
			if digest == nil {
				logger.Info("no digest archived yet", "path", cfg.Archive.Path)
				return nil
			}
			return output.Encode(a.stdout, format, digest)
		},
	}
	cmd.Flags().StringVar(&format, "format", config.FormatMarkdown, "json, csv, md or yaml")
	cmd.Flags().String("archive", "", "archive database (overrides archive.path)")
	_ = a.v.BindPFlag("archive.path", cmd.Flags().Lookup("archive"))
	return cmd
}
