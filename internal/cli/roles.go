package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/roles"
	"xdao.co/taskledger/views"
)

func newRolesCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List, grant and revoke role assignments",
	}
	cmd.AddCommand(newRolesListCommand(root))
	cmd.AddCommand(newRolesGrantCommand(root))
	cmd.AddCommand(newRolesRevokeCommand(root))
	cmd.AddCommand(newRolesCheckCommand(root))
	return cmd
}

func (o *RootOptions) roleManager(env *Env) *roles.Manager {
	return roles.New(env.Client(), roles.Options{
		Wait:        env.Config.Ledger.Wait(),
		Concurrency: env.Config.Roles.Concurrency,
		Logger:      env.Logger,
		Now:         o.now,
	})
}

func newRolesListCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every role and its members",
		Long: `List every role on the ledger. A role without members shows N/A as its
account. Expired assignments are listed and marked. Roles whose details
cannot be read are reported as warnings and left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.open(cmd, NeedLedger)
			if err != nil {
				return err
			}
			defer env.Close()

			l, err := root.roleManager(env).List(contextOf(cmd))
			if err != nil {
				return fail(err)
			}
			rows := make([]model.RoleRow, 0, len(l.Assignments))
			for _, a := range l.Assignments {
				rows = append(rows, a.Row(l.At))
			}
			return root.printer(cmd).result(rows, l.Failures, func(w io.Writer) error {
				return views.RenderRoles(w, rows)
			})
		},
	}
}

type grantOptions struct {
	Role        string
	Account     string
	Description string
	Permanent   bool
	Expires     string
	Retroactive bool
}

func newRolesGrantCommand(root *RootOptions) *cobra.Command {
	opts := &grantOptions{}
	cmd := &cobra.Command{
		Use:   "grant --role <id> --account <0x...> --description <text> (--permanent | --expires <date>)",
		Short: "Grant a role to an account",
		Long: `Grant --role to --account until --expires, or without expiration with
--permanent. --expires takes RFC 3339 or YYYY-MM-DD (midnight GMT) and must
not be in the past unless --retroactive is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := opts.policy()
			if err != nil {
				return err
			}
			env, err := root.open(cmd, NeedLedger|NeedSigner)
			if err != nil {
				return err
			}
			defer env.Close()

			rcpt, err := root.roleManager(env).Grant(contextOf(cmd), roles.GrantRequest{
				RoleID:      opts.Role,
				Account:     opts.Account,
				Description: opts.Description,
				Expiration:  policy,
			})
			if err != nil {
				return fail(err)
			}
			return printRoleReceipt(root.printer(cmd), rcpt)
		},
	}
	cmd.Flags().StringVar(&opts.Role, "role", "", "role identifier (at most 32 bytes)")
	cmd.Flags().StringVar(&opts.Account, "account", "", "account address (0x-prefixed hex)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "role description (at most 32 bytes)")
	cmd.Flags().BoolVar(&opts.Permanent, "permanent", false, "grant without expiration")
	cmd.Flags().StringVar(&opts.Expires, "expires", "", "expiration time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.Retroactive, "retroactive", false, "allow an expiration in the past")
	for _, f := range []string{"role", "account", "description"} {
		_ = cmd.MarkFlagRequired(f)
	}
	cmd.MarkFlagsMutuallyExclusive("permanent", "expires")
	return cmd
}

func (o *grantOptions) policy() (roles.ExpirationPolicy, error) {
	if o.Permanent {
		return roles.Forever(), nil
	}
	if o.Expires == "" {
		return roles.ExpirationPolicy{}, usageError("one of --permanent or --expires is required")
	}
	t, err := parseExpiry(o.Expires)
	if err != nil {
		return roles.ExpirationPolicy{}, usageError("invalid --expires %q: %v", o.Expires, err)
	}
	if o.Retroactive {
		return roles.RetroactiveUntil(t), nil
	}
	return roles.Until(t), nil
}

func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("want RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func newRolesRevokeCommand(root *RootOptions) *cobra.Command {
	var role, account string
	cmd := &cobra.Command{
		Use:   "revoke --role <id> --account <0x...>",
		Short: "Revoke a role from an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.open(cmd, NeedLedger|NeedSigner)
			if err != nil {
				return err
			}
			defer env.Close()

			rcpt, err := root.roleManager(env).Revoke(contextOf(cmd), role, account)
			if err != nil {
				return fail(err)
			}
			return printRoleReceipt(root.printer(cmd), rcpt)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role identifier")
	cmd.Flags().StringVar(&account, "account", "", "account address (0x-prefixed hex)")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newRolesCheckCommand(root *RootOptions) *cobra.Command {
	var role, account string
	cmd := &cobra.Command{
		Use:   "check --role <id> --account <0x...>",
		Short: "Report whether an account holds an unexpired role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ledger.ParseAddress(account)
			if err != nil {
				return usageError("invalid --account %q: %v", account, err)
			}
			env, err := root.open(cmd, NeedLedger)
			if err != nil {
				return err
			}
			defer env.Close()

			ok, err := root.roleManager(env).HasRole(contextOf(cmd), role, addr)
			if err != nil {
				return fail(err)
			}
			data := struct {
				Role    string `json:"roleId"`
				Account string `json:"account"`
				Holds   bool   `json:"holds"`
			}{role, addr.Hex(), ok}
			return root.printer(cmd).result(data, nil, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s %s: %t\n", role, roles.ShortAccount(addr), ok)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role identifier")
	cmd.Flags().StringVar(&account, "account", "", "account address (0x-prefixed hex)")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func printRoleReceipt(p printer, r ledger.Receipt) error {
	row := model.ReceiptRow{TxHash: r.TxHash, Block: r.Block, Op: string(r.Op)}
	return p.result(row, nil, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s tx=%s block=%d\n", r.Op, r.TxHash, r.Block)
		return err
	})
}
