package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/bookrent/pkg/subscription"
)

func newPlansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog := subscription.NewCatalog(subscription.SourceFromConfig(cfg.Plans), cfg.Plans.PlansCacheTTL)
			plans, err := catalog.Plans(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCURRENCY\tMAX ITEMS\tMONTHS")
			for _, p := range plans {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", p.ID, p.Name, p.Price, p.Currency, p.MaxItems, p.DurationMonths)
			}
			return tw.Flush()
		},
	}
}
