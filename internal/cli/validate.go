package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teamnewpipe/crashreportimporter/internal/config"
	"github.com/teamnewpipe/crashreportimporter/internal/sentry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and required environment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}

		for _, dest := range cfg.Destinations {
			if _, err := sentry.ParseDSN(dest.DSN()); err != nil {
				return fmt.Errorf("destination %s: %w", dest.Name, err)
			}
		}
		if dsn := cfg.SelfReport.DSN(); dsn != "" {
			if _, err := sentry.ParseDSN(dsn); err != nil {
				return fmt.Errorf("self report: %w", err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), config.Summary(cfg))
		return nil
	},
}

func init() {
	addCommonFlags(validateCmd)
}
