package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/app"
	"github.com/Aamir1055/BrokerEye-sub005/internal/backend"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

var commissionQuery models.CommissionQuery

var commissionsCmd = &cobra.Command{
	Use:     "commissions",
	Aliases: []string{"comm"},
	Short:   "Manage IB commissions",
	Long:    "Commands for listing IB commissions and editing commission percentages",
}

var listCommissionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List IB commission records",
	Long: `List IB commission records page by page.

Examples:
  broker-eyes commissions list
  broker-eyes commissions list --search north --sort total_commission --order desc`,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		page, err := a.API().ListCommissions(cmd.Context(), commissionQuery)
		if err != nil {
			return err
		}

		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPERCENT\tTOTAL\tAVAILABLE\tLAST SYNC")
		for _, r := range page.Records {
			synced := "-"
			if r.LastSyncedAt != nil {
				synced = r.LastSyncedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
				r.ID, r.Name, r.Email, r.Percentage, r.TotalCommission, r.AvailableCommission, synced)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		p := page.Pagination
		fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d of %d (%d records)\n", p.Page, p.TotalPages, p.Total)
		return nil
	}),
}

var getCommissionCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show the commission percentage of an IB",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		p, err := a.API().CommissionPercentage(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "IB %d: %.2f%%\n", p.ID, p.Percentage)
		return nil
	}),
}

var setCommissionCmd = &cobra.Command{
	Use:   "set <id> <percentage>",
	Short: "Set the commission percentage of an IB",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		pct, err := backend.ParsePercentage(args[1])
		if err != nil {
			return err
		}

		rec, err := a.API().UpdateCommissionPercentage(cmd.Context(), id, pct)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "IB %d (%s) now at %.2f%%\n", rec.ID, rec.Email, rec.Percentage)
		return nil
	}),
}

var bulkCommissionCmd = &cobra.Command{
	Use:   "bulk <id=percentage>...",
	Short: "Set several commission percentages at once",
	Long: `Set several commission percentages in one request. Nothing is sent when
any entry is invalid.

Examples:
  broker-eyes commissions bulk 1=25 2=30.5 7=10`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		updates, err := backend.ParseBulk(args)
		if err != nil {
			return err
		}

		result, err := a.API().BulkUpdatePercentages(cmd.Context(), updates)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Updated %d of %d\n", result.Updated, len(updates))
		for _, f := range result.Failed {
			fmt.Fprintf(out, "  IB %d: %s\n", f.ID, f.Reason)
		}
		return nil
	}),
}

var totalCommissionsCmd = &cobra.Command{
	Use:   "total",
	Short: "Show aggregate commission figures",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		totals, err := a.API().CommissionTotals(cmd.Context())
		if err != nil {
			return err
		}

		w := table(cmd.OutOrStdout())
		fmt.Fprintf(w, "IBs\t%d\n", totals.Count)
		fmt.Fprintf(w, "Total commission\t%.2f\n", totals.TotalCommission)
		fmt.Fprintf(w, "Available commission\t%.2f\n", totals.AvailableCommission)
		return w.Flush()
	}),
}

func init() {
	rootCmd.AddCommand(commissionsCmd)
	commissionsCmd.AddCommand(listCommissionsCmd, getCommissionCmd, setCommissionCmd, bulkCommissionCmd, totalCommissionsCmd)

	listCommissionsCmd.Flags().IntVar(&commissionQuery.Page, "page", 1, "Page number")
	listCommissionsCmd.Flags().IntVar(&commissionQuery.PerPage, "per-page", 25, "Records per page")
	listCommissionsCmd.Flags().StringVarP(&commissionQuery.Search, "search", "s", "", "Filter by name or email")
	listCommissionsCmd.Flags().StringVar(&commissionQuery.SortBy, "sort", "", "Sort column (e.g. total_commission, percentage)")
	listCommissionsCmd.Flags().StringVar(&commissionQuery.SortOrder, "order", "", "Sort order (asc, desc)")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
