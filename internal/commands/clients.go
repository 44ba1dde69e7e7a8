package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/app"
	"github.com/Aamir1055/BrokerEye-sub005/internal/backend"
	"github.com/Aamir1055/BrokerEye-sub005/internal/ibselect"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

var (
	clientsPage    int
	clientsPerPage int
	clientsSearch  string
	clientsIB      string
	dealsFrom      string
	dealsTo        string
	balanceComment string
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Browse client accounts",
	Long: `Browse client accounts, positions and deals.

Listings are narrowed to the MT5 accounts of the selected IB when one is
selected (see "broker-eyes ib select").`,
}

var listClientsCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	Long: `List clients.

Examples:
  broker-eyes clients list
  broker-eyes clients list --ib northwind@ib.example --per-page 100`,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		if clientsIB != "" {
			if _, err := a.Selector().SelectByEmail(cmd.Context(), clientsIB); err != nil {
				return err
			}
		}

		var (
			list *models.ClientList
			err  error
		)
		if clientsSearch != "" {
			list, err = a.API().SearchClients(cmd.Context(), models.ClientSearch{
				Query:   clientsSearch,
				Page:    clientsPage,
				PerPage: clientsPerPage,
			})
		} else {
			list, err = a.API().ListClients(cmd.Context(), clientsPage, clientsPerPage)
		}
		if err != nil {
			return err
		}

		clients := ibselect.FilterByActiveIB(a.Selector(), list.Clients, func(c models.Client) int64 {
			return c.Login
		})

		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "LOGIN\tNAME\tGROUP\tBALANCE\tEQUITY\tCREDIT")
		for _, c := range clients {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\n", c.Login, c.Name, c.Group, c.Balance, c.Equity, c.Credit)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if ib := a.Selector().Selected(); ib != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d clients for IB %s\n", len(clients), len(list.Clients), ib.Email)
		}
		return nil
	}),
}

var positionsCmd = &cobra.Command{
	Use:   "positions <login>",
	Short: "Show the open positions of a client",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		login, err := parseLogin(args[0])
		if err != nil {
			return err
		}
		positions, err := a.API().ClientPositions(cmd.Context(), login)
		if err != nil {
			return err
		}

		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "POSITION\tSYMBOL\tACTION\tVOLUME\tOPEN\tCURRENT\tPROFIT")
		for _, p := range positions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.5f\t%.5f\t%.2f\n",
				p.Position, p.Symbol, p.Action, p.Volume, p.PriceOpen, p.PriceCurrent, p.Profit)
		}
		return w.Flush()
	}),
}

var dealsCmd = &cobra.Command{
	Use:   "deals <login>",
	Short: "Show the deal history of a client",
	Long: `Show the deal history of a client.

Examples:
  broker-eyes clients deals 100101
  broker-eyes clients deals 100101 --from 2024-01-01 --to 2024-02-01`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		login, err := parseLogin(args[0])
		if err != nil {
			return err
		}
		from, err := parseDate(dealsFrom)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		to, err := parseDate(dealsTo)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}

		deals, err := a.API().ClientDeals(cmd.Context(), login, from, to)
		if err != nil {
			return err
		}

		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "DEAL\tTIME\tACTION\tSYMBOL\tVOLUME\tPROFIT\tCOMMENT")
		for _, d := range deals {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
				d.Deal, d.Time.Local().Format("2006-01-02 15:04"), d.Action, d.Symbol, d.Volume, d.Profit, d.Comment)
		}
		return w.Flush()
	}),
}

func balanceCommand(kind backend.BalanceKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " <login> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			login, err := parseLogin(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			msg, err := a.API().Balance(cmd.Context(), kind, login, amount, balanceComment)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "done"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", login, msg)
			return nil
		}),
	}
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(listClientsCmd, positionsCmd, dealsCmd)

	for _, c := range []*cobra.Command{
		balanceCommand(backend.Deposit, "Deposit funds to a client"),
		balanceCommand(backend.Withdrawal, "Withdraw funds from a client"),
		balanceCommand(backend.CreditIn, "Grant credit to a client"),
		balanceCommand(backend.CreditOut, "Remove credit from a client"),
	} {
		c.Flags().StringVar(&balanceComment, "comment", "", "Comment recorded with the operation")
		clientsCmd.AddCommand(c)
	}

	listClientsCmd.Flags().IntVar(&clientsPage, "page", 1, "Page number")
	listClientsCmd.Flags().IntVar(&clientsPerPage, "per-page", 50, "Clients per page")
	listClientsCmd.Flags().StringVarP(&clientsSearch, "search", "s", "", "Search by login, name or email")
	listClientsCmd.Flags().StringVar(&clientsIB, "ib", "", "Select this IB (by email) before listing")

	dealsCmd.Flags().StringVar(&dealsFrom, "from", "", "Start date (YYYY-MM-DD or RFC3339)")
	dealsCmd.Flags().StringVar(&dealsTo, "to", "", "End date (YYYY-MM-DD or RFC3339)")
}

func parseLogin(raw string) (int64, error) {
	login, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || login <= 0 {
		return 0, fmt.Errorf("invalid login %q", raw)
	}
	return login, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, time.Local)
}
