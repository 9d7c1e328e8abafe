package main

import (
	"fmt"
	"os"

	"github.com/jrsteele09/go-tenant-access/users"
	"github.com/spf13/cobra"
)

func passwordFlag(cmd *cobra.Command, value *string, name, usage string) {
	cmd.Flags().StringVar(value, name, "", usage+" (or HR_PASSWORD)")
}

func passwordOrEnv(value string) string {
	if value != "" {
		return value
	}
	return os.Getenv("HR_PASSWORD")
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(c.cfg.GetAppName())
			w, err := c.workspace()
			if err != nil {
				return err
			}
			s, err := w.Session().Login(cmd.Context(), email, passwordOrEnv(password))
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (user %s), tenant %s\n", s.Email, s.UserID, s.TenantID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	passwordFlag(cmd, &password, "password", "Account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := c.workspace()
			if err != nil {
				return err
			}
			w.Session().Logout(cmd.Context())
			fmt.Println("Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := c.restore(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(s)
		},
	}
}

func (c *cli) switchTenantCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "switch-tenant TENANT_ID",
		Short: "Check that the session may act in another tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := c.restore(cmd.Context())
			if err != nil {
				return err
			}
			s, err := w.Session().SwitchTenant(cmd.Context(), args[0], users.RoleType(role))
			if err != nil {
				return err
			}
			fmt.Printf("Acting in tenant %s as %s\n", s.TenantID, s.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "require-role", "", "Role the user must hold in the tenant")
	return cmd
}

func (c *cli) forgotPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := c.workspace()
			if err != nil {
				return err
			}
			if err := w.Session().ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Println("If the account exists a reset email has been sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var resetToken, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := c.workspace()
			if err != nil {
				return err
			}
			if err := w.Session().ResetPassword(cmd.Context(), resetToken, passwordOrEnv(password)); err != nil {
				return err
			}
			fmt.Println("Password reset")
			return nil
		},
	}
	cmd.Flags().StringVar(&resetToken, "token", "", "Reset token from the email")
	passwordFlag(cmd, &password, "password", "New password")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (c *cli) changePasswordCmd() *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the signed-in user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := c.restore(cmd.Context())
			if err != nil {
				return err
			}
			if err := w.Session().ChangePassword(cmd.Context(), passwordOrEnv(current), next); err != nil {
				return err
			}
			fmt.Println("Password changed")
			return nil
		},
	}
	passwordFlag(cmd, &current, "current", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}
