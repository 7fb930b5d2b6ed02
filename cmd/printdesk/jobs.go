package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/core"
)

var (
	listStatus string
	listSearch string
	listJSON   bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect print jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listStatus != core.StatusFilterAll && !core.JobStatus(listStatus).Valid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}

		be, err := openBackend(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer be.close()

		manager := core.NewJobManager(be.jobs, nil)
		jobs, err := manager.List(cmd.Context(), listStatus, listSearch)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			b, err := json.MarshalIndent(jobs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tCONFIG\tAMOUNT\tSUBMITTED")
		for _, j := range jobs {
			amount := "-"
			if j.PaymentAmount != nil {
				amount = fmt.Sprintf("%.2f", *j.PaymentAmount)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				j.ID, j.FileName, j.Status, describeConfig(j.PrintConfig), amount, j.Timestamp.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

func describeConfig(c core.PrintConfig) string {
	parts := []string{fmt.Sprintf("%dx", c.Copies), string(c.ColorMode), string(c.PaperSize), string(c.Orientation)}
	if c.DoubleSided {
		parts = append(parts, "duplex")
	}
	return strings.Join(parts, " ")
}

func init() {
	jobsListCmd.Flags().StringVar(&listStatus, "status", core.StatusFilterAll, "Filter by status (all|pending|awaiting_payment|paid|printing|completed|cancelled)")
	jobsListCmd.Flags().StringVar(&listSearch, "search", "", "Match file name or job id")
	jobsListCmd.Flags().BoolVar(&listJSON, "json", false, "JSON output")
	jobsCmd.AddCommand(jobsListCmd)
	rootCmd.AddCommand(jobsCmd)
}
