package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/app"
	"github.com/Aamir1055/BrokerEye-sub005/internal/backend"
)

var (
	loginEmail    string
	loginPassword string
	loginCode     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the back office",
	Long: `Log in with a broker account and store the session locally.

The password may also be given through BROKER_EYES_PASSWORD. Accounts with
two-factor authentication need --code.

Examples:
  broker-eyes login --email ops@broker.com --password secret
  broker-eyes login --email ops@broker.com --password secret --code 123456`,
	RunE: withApp(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		if err := a.API().Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		ctx := cmd.Context()
		if !a.Session().HasSession(ctx) {
			return fmt.Errorf("not logged in")
		}

		user, err := a.API().CurrentUser(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if user == nil {
			fmt.Fprintln(out, "Logged in (no user details stored)")
			return nil
		}
		fmt.Fprintf(out, "%s <%s>", user.Name, user.Email)
		if user.Role != "" {
			fmt.Fprintf(out, " role=%s", user.Role)
		}
		if ib := a.Selector().Selected(); ib != nil {
			fmt.Fprintf(out, " ib=%s", ib.Email)
		}
		fmt.Fprintln(out)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	loginCmd.Flags().StringVarP(&loginCode, "code", "c", "", "Two-factor code")
	loginCmd.MarkFlagRequired("email")
}

func runLogin(cmd *cobra.Command, args []string, a *app.App) error {
	ctx := cmd.Context()
	password := loginPassword
	if password == "" {
		password = os.Getenv("BROKER_EYES_PASSWORD")
	}

	result, err := a.API().Login(ctx, loginEmail, password)
	if err != nil {
		return err
	}

	if result.Requires2FA {
		if loginCode == "" {
			return fmt.Errorf("%w: rerun with --code", backend.ErrTwoFARequired)
		}
		if result, err = a.API().VerifyTwoFA(ctx, result.TempToken, loginCode); err != nil {
			return err
		}
	}

	name := loginEmail
	if result.User != nil && result.User.Name != "" {
		name = result.User.Name
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", name)
	return nil
}
