package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talentbridge/trustlayer/core"
)

func authCommands(g *globals) []*cobra.Command {
	var code string
	login := &cobra.Command{
		Use:   "login",
		Short: "Exchange a one-time login code for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.tokens.ExchangeLoginCode(ctx, code)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in, next step: %s\n", res.NextStep)
			return nil
		},
	}
	login.Flags().StringVar(&code, "code", "", "One-time login code")
	_ = login.MarkFlagRequired("code")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.tokens.Logout(ctx)
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in profile and onboarding step",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := a.profile(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"profile":  profile,
				"nextStep": core.NextStepFor(profile),
			})
		},
	}

	return []*cobra.Command{login, logout, whoami}
}

func (a *app) profile(ctx context.Context) (*core.Profile, error) {
	cred, ok := a.tokens.GetValidAccessToken(ctx)
	if !ok {
		return nil, fmt.Errorf("not signed in: %w", core.ErrTokenExpired)
	}
	return a.auth.Me(ctx, cred.Token)
}
