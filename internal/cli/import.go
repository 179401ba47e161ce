package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [files...]",
	Short: "Import RFC 822 crash report mails from files, or stdin when none or - is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}

		ctx := commandContext(cmd)
		a, err := newApp(ctx, cmd, cfg)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if len(args) == 0 {
			args = []string{"-"}
		}

		failed := 0
		for _, name := range args {
			a.logger.Info("importing mail", "file", name)
			if err := importOne(cmd, a, name); err != nil {
				a.logger.Error("could not import mail", "file", name, "error", err)
				failed++
			}
		}

		// Message failures are reported, never turned into an exit status.
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d mails, %d with errors\n", len(args), failed)
		return nil
	},
}

func importOne(cmd *cobra.Command, a *app, name string) error {
	var r io.Reader
	if name == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	res := a.pipeline.Handle(commandContext(cmd), r)
	if res.Err != nil {
		return res.Err
	}
	if res.RoutingErr != nil {
		return res.RoutingErr
	}
	if res.Failed() {
		return fmt.Errorf("record %s was not delivered everywhere", res.Record.HashID())
	}
	return nil
}

func init() {
	addCommonFlags(importCmd)
}
