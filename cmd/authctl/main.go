package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/payflow-auth/cmd/authctl/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Maintenance commands for the PayFlow auth service",
		Long:          "Operator CLI sharing the API's environment configuration: apply migrations, sweep expired OTPs and reset passwords.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}

	otpCmd := &cobra.Command{
		Use:   "otp",
		Short: "Manage one-time passcodes",
	}
	otpSweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired OTP records once",
		RunE:  runOTPSweep,
	}
	otpCmd.AddCommand(otpSweepCmd)

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	setPasswordCmd := &cobra.Command{
		Use:   "set-password",
		Short: "Replace a user's password",
		Long:  "Replace a user's password without the current one. Outstanding OTPs for the account are invalidated.",
		RunE:  runSetPassword,
	}
	setPasswordCmd.Flags().String("email", "", "Account email")
	setPasswordCmd.Flags().Bool("password-stdin", false, "Read the new password from the first line of stdin")
	_ = setPasswordCmd.MarkFlagRequired("email")
	userCmd.AddCommand(setPasswordCmd)

	rootCmd.AddCommand(migrateCmd, otpCmd, userCmd)
	return rootCmd
}
