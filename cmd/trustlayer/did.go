package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talentbridge/trustlayer/core"
)

func didCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "did",
		Short: "Bind and prove control of the wallet DID",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "bind",
		Short: "Sign the wallet nonce and attach the wallet to the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			holder, err := a.authenticator().BindWallet(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bound %s\n", holder.Identifier)
			return nil
		},
	})

	var markVerified bool
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Run the challenge-response flow for the wallet DID",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			authn := a.authenticator()
			res, err := authn.Authenticate(ctx, func(phase core.Phase, detail core.PhaseDetail) {
				if detail.Message != "" {
					fmt.Fprintf(out, "%-22s %s\n", phase, detail.Message)
					return
				}
				fmt.Fprintln(out, phase)
			})
			if err != nil {
				return err
			}
			if markVerified {
				if err := authn.MarkVerified(ctx, res.Holder.Identifier); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Verified %s\n", res.Holder.Identifier)
			return nil
		},
	}
	auth.Flags().BoolVar(&markVerified, "mark-verified", true, "Record the verification on the profile")
	cmd.AddCommand(auth)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the registry state of the wallet DID",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			holder := core.NewDidHolder(a.cfg.DID.Method, a.wallet.Address())
			status, err := a.did.Status(ctx, holder.WalletAddress)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"did":    holder.Identifier,
				"status": status,
			})
		},
	})

	return cmd
}
