package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teamnewpipe/crashreportimporter/internal/pipeline"
	"github.com/teamnewpipe/crashreportimporter/internal/sentry"
	"github.com/teamnewpipe/crashreportimporter/internal/storage"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Parse a crash report mail and print what would be stored, without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, false)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		p := pipeline.New(
			pipeline.WithLogger(newLogger(cmd)),
			pipeline.WithRelays(cfg.Relays),
			pipeline.WithRejectFuture(cfg.RejectFutureEnabled()),
		)
		d, err := p.Parse(commandContext(cmd), f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		rec := d.Record
		pkg, _ := rec.Package()
		fmt.Fprintf(out, "Crash record\n- hash: %s\n- recipient: %s\n- date: %s\n- package: %s\n- path: %s\n- exception: %s (%d frames)\n",
			rec.HashID(), rec.Recipient, rec.Date.Format(time.RFC3339), defaultIfEmpty(pkg, "(none)"),
			storage.ShardPath(rec.HashID()), d.Exception.Type, len(d.Exception.Frames))

		for _, dest := range cfg.Destinations {
			payload, err := sentry.Build(rec, d.Exception, dest.Package)
			var mismatch *sentry.PackageMismatchError
			if errors.As(err, &mismatch) {
				continue
			}
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nEvent for %s:\n%s\n", dest.Name, data)
		}
		return nil
	},
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func init() {
	addCommonFlags(inspectCmd)
}
