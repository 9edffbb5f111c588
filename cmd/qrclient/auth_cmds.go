package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as staff",
		Long: `Log in as staff. The token is stored next to the session and sent as a
Bearer token (with X-User-Role) on every later request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var out struct {
				Token    string `json:"token"`
				UserRole string `json:"user_role"`
			}
			err := a.client.Do(cmd.Context(), http.MethodPost, "/login", map[string]string{
				"email":    email,
				"password": password,
			}, &out)
			if err != nil {
				return err
			}
			if err := a.client.SetAuth(cmd.Context(), out.Token, out.UserRole); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", out.UserRole)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Staff email")
	cmd.Flags().StringVar(&password, "password", "", "Staff password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the staff login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).client.ClearAuth(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
