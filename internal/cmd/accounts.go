package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"careerpath-api/internal/domain"
	"careerpath-api/internal/service"
)

type appRunner func(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error

func newCreateAdminCommand(withApp appRunner) *cobra.Command {
	var in service.SignupInput

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an account with the admin role",
		Long:  "Create an account with the admin role and print its id.",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			in.PasswordConfirm = in.Password
			account, err := app.Accounts.Signup(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			if _, err := app.Accounts.SetRole(cmd.Context(), account.ID, domain.RoleAdmin); err != nil {
				return fmt.Errorf("promote %s: %w", account.ID, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), account.ID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password (required)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "Admin", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "User", "last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSetRoleCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <account-id> <user|admin>",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			account, err := app.Accounts.SetRole(cmd.Context(), args[0], domain.Role(args[1]))
			if err != nil {
				return fmt.Errorf("set role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", account.ID, account.Role)
			return nil
		}),
	}
}

func newDeactivateCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <account-id>",
		Short: "Deactivate an account; its tokens stop working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			if err := app.Accounts.Deactivate(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deactivate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deactivated\n", args[0])
			return nil
		}),
	}
}

func newIssueTokenCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token <account-id>",
		Short: "Print a session token for an active account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			if app.Issuer == nil {
				return errors.New("JWT_SECRET is not configured")
			}
			account, err := app.Accounts.FindActiveByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("find account: %w", err)
			}
			token, err := app.Issuer.Issue(account.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		}),
	}
}
