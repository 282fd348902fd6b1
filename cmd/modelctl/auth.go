package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func loginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.valueOrPrompt(email, "Email", false)
			if err != nil {
				return err
			}
			pw, err := a.valueOrPrompt(password, "Password", true)
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			s, err := c.Login(cmd.Context(), addr, pw)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Signed in as %s (%d models)\n", s.User.Email, len(s.User.Models))
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			display, err := a.valueOrPrompt(name, "Name", false)
			if err != nil {
				return err
			}
			addr, err := a.valueOrPrompt(email, "Email", false)
			if err != nil {
				return err
			}
			pw, err := a.valueOrPrompt(password, "Password", true)
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			s, err := c.Register(cmd.Context(), display, addr, pw)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Account created for %s\n", s.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(a.errOut, "warning: server logout failed: %s\n", err)
			}
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.signedIn()
			if err != nil {
				return err
			}
			u, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s <%s>\n", u.Name, u.Email)
			fmt.Fprintf(a.out, "  id:     %s\n", u.ID)
			fmt.Fprintf(a.out, "  role:   %s\n", u.Role)
			fmt.Fprintf(a.out, "  models: %d\n", len(u.Models))
			return nil
		},
	}
}
