package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the gateway for stale pending requests once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.recon.Run(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d resolved=%d failed=%d skipped=%d\n",
				report.Checked, report.Resolved, report.Failed, report.Skipped)
			return err
		},
	}
}
