package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/app"
	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
)

var ibCmd = &cobra.Command{
	Use:   "ib",
	Short: "Select the introducing broker that scopes listings",
}

var ibEmailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "List introducing brokers",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		ibs, err := a.Selector().RefreshList(cmd.Context())
		if err != nil {
			return err
		}

		selected := a.Selector().Selected()
		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "\tID\tEMAIL\tNAME\tPERCENT")
		for _, ib := range ibs {
			mark := ""
			if selected != nil && selected.Email == ib.Email {
				mark = "*"
			}
			pct := "-"
			if ib.Percentage != nil {
				pct = fmt.Sprintf("%.2f", *ib.Percentage)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", mark, ib.ID, ib.Email, ib.Name, pct)
		}
		return w.Flush()
	}),
}

var ibSelectCmd = &cobra.Command{
	Use:   "select <email>",
	Short: "Select an introducing broker",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		ib, err := a.Selector().SelectByEmail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%d MT5 accounts)\n", ib.Email, len(a.Selector().Accounts()))
		return nil
	}),
}

var ibClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the IB selection",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		if err := a.Selector().Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "IB selection cleared")
		return nil
	}),
}

var ibShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the selected IB and its MT5 accounts",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		out := cmd.OutOrStdout()
		ib := a.Selector().Selected()
		if ib == nil {
			fmt.Fprintln(out, "No IB selected")
			return nil
		}

		fmt.Fprintf(out, "%s (%s)\n", ib.Email, ib.Name)
		for _, login := range sortedLogins(a.Selector().Accounts()) {
			fmt.Fprintf(out, "  %d\n", login)
		}
		return nil
	}),
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask every running client to reload its data",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		a.Bus().Publish(cmd.Context(), events.Event{
			Name:    events.AppRefresh,
			Payload: events.RefreshPayload{Source: "cli"},
		})
		fmt.Fprintln(cmd.OutOrStdout(), "Refresh requested")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(ibCmd, refreshCmd)
	ibCmd.AddCommand(ibEmailsCmd, ibSelectCmd, ibClearCmd, ibShowCmd)
}

func sortedLogins(logins []int64) []int64 {
	slices.Sort(logins)
	return logins
}
