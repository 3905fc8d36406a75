package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/service"
)

func contractCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Create, sign and settle escrow contracts",
	}
	cmd.AddCommand(
		contractCreateCmd(g),
		contractInboxCmd(g),
		contractSignCmd(g),
		employerStep(g, "finalize", "Countersign a contract the applicant has signed", (*service.ContractMachine).EmployerFinalize),
		employerStep(g, "observe", "Adopt the applicant signature reported by the chain", (*service.ContractMachine).ObserveApplicantSignature),
		employerStep(g, "expire", "Expire an unsigned contract and reclaim the escrow", (*service.ContractMachine).Expire),
		contractSettleCmd(g),
		contractReconcileCmd(g),
		contractShowCmd(g),
	)
	return cmd
}

func contractCreateCmd(g *globals) *cobra.Command {
	var (
		applicant string
		salary    string
	)
	cmd := &cobra.Command{
		Use:   "create APPLICATION_ID",
		Short: "Open a contract for an application and notify the applicant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			application, err := a.jobs.Application(ctx, args[0])
			if err != nil {
				return err
			}
			role, err := a.roleFor(ctx, application.AuthorUserID, "")
			if err != nil {
				return err
			}
			if role != core.RoleEmployer {
				return core.NewContractError(core.ErrRoleNotPermitted, fmt.Errorf("only the posting author can create the contract"))
			}

			req := service.CreateRequest{
				PostID:           application.PostID,
				ApplicationID:    application.ID,
				JobTitle:         application.JobTitle,
				ApplicantAddress: application.ApplicantAddress,
				Salary:           application.Salary,
			}
			if applicant != "" {
				req.ApplicantAddress = applicant
			}
			if salary != "" {
				if req.Salary, err = decimal.NewFromString(salary); err != nil {
					return fmt.Errorf("invalid salary: %w", err)
				}
			}

			c, err := a.contractMachine(core.RoleEmployer).Create(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	cmd.Flags().StringVar(&applicant, "applicant", "", "Applicant wallet address (defaults to the application's)")
	cmd.Flags().StringVar(&salary, "salary", "", "Salary to escrow (defaults to the application's)")
	return cmd
}

func contractInboxCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "List contract requests waiting for this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.notify.Notifications(ctx)
			if err != nil {
				return err
			}
			var requests []core.Notification
			for _, n := range all {
				if n.Type == service.NotificationContractRequest {
					requests = append(requests, n)
				}
			}
			return printJSON(cmd, requests)
		},
	}
}

func contractSignCmd(g *globals) *cobra.Command {
	var (
		affirm    []string
		affirmAll bool
	)
	cmd := &cobra.Command{
		Use:   "sign NOTIFICATION_ID",
		Short: "Review a contract request and sign it as the applicant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.notification(ctx, args[0])
			if err != nil {
				return err
			}
			link, err := service.ParseContractLink(n.LinkURL)
			if err != nil {
				return err
			}

			checklist := core.Checklist{}
			if affirmAll {
				checklist = core.FullChecklist()
			}
			for _, item := range affirm {
				checklist[core.ChecklistItem(item)] = true
			}

			m := a.contractMachine(core.RoleApplicant)
			if _, err := m.Resume(ctx, link, n.Transaction); err != nil {
				return err
			}
			c, err := m.ApplicantSign(ctx, link.ApplicationID, checklist)
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	cmd.Flags().StringSliceVar(&affirm, "affirm", nil, "Checklist items to affirm (condition, extra, privacy, security, overall)")
	cmd.Flags().BoolVar(&affirmAll, "affirm-all", false, "Affirm every checklist item")
	return cmd
}

type employerTransition func(*service.ContractMachine, context.Context, string) (*core.ContractEscrow, error)

func employerStep(g *globals, use, short string, step employerTransition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " APPLICATION_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := step(a.contractMachine(core.RoleEmployer), ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
}

func contractSettleCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "settle APPLICATION_ID",
		Short: "Release the escrowed salary of a completed contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sig, err := a.contractMachine(core.RoleEmployer).Settle(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settled in %s\n", sig)
			return nil
		},
	}
}

func contractReconcileCmd(g *globals) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "reconcile APPLICATION_ID",
		Short: "Compare the local contract record with the chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.machineFor(ctx, args[0], core.Role(role))
			if err != nil {
				return err
			}
			report, err := m.Reconcile(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"contract": report.Contract,
				"chain":    report.Chain,
				"drift":    report.Drift,
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Act as employer or applicant (derived from the application by default)")
	return cmd
}

func contractShowCmd(g *globals) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "show APPLICATION_ID",
		Short: "Print the local contract record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.machineFor(ctx, args[0], core.Role(role))
			if err != nil {
				return err
			}
			c, err := m.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Act as employer or applicant (derived from the application by default)")
	return cmd
}

// machineFor picks the role from the override or the application's author
func (a *app) machineFor(ctx context.Context, applicationID string, override core.Role) (*service.ContractMachine, error) {
	var author string
	if !override.Valid() {
		application, err := a.jobs.Application(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		author = application.AuthorUserID
	}
	role, err := a.roleFor(ctx, author, override)
	if err != nil {
		return nil, err
	}
	return a.contractMachine(role), nil
}

func (a *app) roleFor(ctx context.Context, authorID string, override core.Role) (core.Role, error) {
	account, _ := a.tokens.CurrentAccountID(ctx)
	return service.ResolveRole(account, authorID, override)
}

func (a *app) notification(ctx context.Context, id string) (*core.Notification, error) {
	all, err := a.notify.Notifications(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
}
