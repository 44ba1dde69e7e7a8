package commands

import (
	"fmt"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/app"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

var qrPath string

var twofaCmd = &cobra.Command{
	Use:   "twofa",
	Short: "Manage two-factor authentication",
}

var twofaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether two-factor authentication is enabled",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		status, err := a.API().TwoFAStatus(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !status.Enabled {
			fmt.Fprintln(out, "Two-factor authentication is disabled")
			return nil
		}
		fmt.Fprintln(out, "Two-factor authentication is enabled")
		if status.EnabledAt != nil {
			fmt.Fprintf(out, "Enabled at: %s\n", status.EnabledAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(out, "Backup codes remaining: %d\n", status.BackupCodesRemaining)
		return nil
	}),
}

var twofaSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Start two-factor enrollment",
	Long: `Start two-factor enrollment and print the secret for the authenticator app.

Examples:
  broker-eyes twofa setup
  broker-eyes twofa setup --qr enroll.png`,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		setup, err := a.API().TwoFASetup(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Secret: %s\n", setup.Secret)
		fmt.Fprintf(out, "URL:    %s\n", setup.OTPAuthURL)

		if qrPath != "" {
			if err := qrcode.WriteFile(setup.OTPAuthURL, qrcode.Medium, 256, qrPath); err != nil {
				return fmt.Errorf("failed to write QR code: %w", err)
			}
			fmt.Fprintf(out, "QR code written to %s\n", qrPath)
		} else {
			qr, err := qrcode.New(setup.OTPAuthURL, qrcode.Low)
			if err != nil {
				return fmt.Errorf("failed to render QR code: %w", err)
			}
			fmt.Fprintln(out, qr.ToSmallString(false))
		}

		fmt.Fprintln(out, "Confirm with: broker-eyes twofa enable <code>")
		return nil
	}),
}

var twofaEnableCmd = &cobra.Command{
	Use:   "enable <code>",
	Short: "Confirm enrollment and enable two-factor authentication",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		codes, err := a.API().TwoFAEnable(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Two-factor authentication enabled")
		printBackupCodes(cmd, codes)
		return nil
	}),
}

var twofaDisableCmd = &cobra.Command{
	Use:   "disable <code>",
	Short: "Disable two-factor authentication",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		if err := a.API().TwoFADisable(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Two-factor authentication disabled")
		return nil
	}),
}

var backupCodesCmd = &cobra.Command{
	Use:   "backup-codes",
	Short: "Regenerate backup codes",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		codes, err := a.API().RegenerateBackupCodes(cmd.Context())
		if err != nil {
			return err
		}
		printBackupCodes(cmd, codes)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(twofaCmd)
	twofaCmd.AddCommand(twofaStatusCmd, twofaSetupCmd, twofaEnableCmd, twofaDisableCmd, backupCodesCmd)

	twofaSetupCmd.Flags().StringVar(&qrPath, "qr", "", "Write the enrollment QR code to this PNG file")
}

func printBackupCodes(cmd *cobra.Command, codes *models.BackupCodes) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Backup codes (each works once, store them safely):")
	for _, c := range codes.Codes {
		fmt.Fprintf(out, "  %s\n", c)
	}
}
