package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gmerge/internal/gmail"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to Gmail and store the token in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			oc, err := gmail.OAuthConfig(a.oauthSettings())
			if err != nil {
				return err
			}
			tok, err := gmail.Login(ctx, oc, gmail.LoginOptions{
				Open: gmail.OpenBrowser,
				In:   os.Stdin,
				Out:  cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			ts, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := ts.SaveToken(tok); err != nil {
				return err
			}

			client, err := gmail.NewClient(ctx, oc, tok, ts)
			if err != nil {
				return err
			}
			addr, err := gmail.NewTransport(client.Service).Profile(ctx)
			if err != nil {
				a.logger.Warn("read profile failed", "error", err)
				fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", addr)
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored Gmail token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := ts.Delete(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
