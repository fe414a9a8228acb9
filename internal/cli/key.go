package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/keys"
)

func newKeyCommand(root *RootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage signing keys in the local key store",
		Long: `Keys live under ~/.taskledger/keys/<name> unless --key-dir or signer.key_dir
is set. Role keys are derived from a root key and stored alongside it.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "key-dir", "", "key store directory (overrides signer.key_dir)")

	store := func() (*keys.KeyStore, error) {
		if dir == "" {
			cfg, err := root.config()
			if err != nil {
				return nil, err
			}
			dir = cfg.Signer.KeyDir
		}
		return keys.Open(dir)
	}

	cmd.AddCommand(newKeyInitCommand(root, store))
	cmd.AddCommand(newKeyDeriveCommand(root, store))
	cmd.AddCommand(newKeyListCommand(root, store))
	cmd.AddCommand(newKeyAddressCommand(root, store))
	return cmd
}

type keyStoreFunc func() (*keys.KeyStore, error)

func newKeyInitCommand(root *RootOptions, store keyStoreFunc) *cobra.Command {
	var (
		name    string
		seedHex string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init --name <name> [--seed-hex <64hex>] [--force]",
		Short: "Create a root key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed []byte
			if seedHex != "" {
				s, err := keys.ParseSeedHex(seedHex)
				if err != nil {
					return usageError("invalid --seed-hex: %v", err)
				}
				seed = s
			}
			ks, err := store()
			if err != nil {
				return err
			}
			path, err := ks.Init(name, seed, force)
			if err != nil {
				return fail(err)
			}
			return printPath(root.printer(cmd), path)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "32-byte seed as hex (random when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newKeyDeriveCommand(root *RootOptions, store keyStoreFunc) *cobra.Command {
	var (
		from  string
		role  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "derive --from <name> --role <role> [--force]",
		Short: "Derive a role key from a root key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := store()
			if err != nil {
				return err
			}
			path, err := ks.Derive(from, role, force)
			if err != nil {
				return fail(err)
			}
			return printPath(root.printer(cmd), path)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "root key name")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing role key")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newKeyListCommand(root *RootOptions, store keyStoreFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List root keys and their derived roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := store()
			if err != nil {
				return err
			}
			entries, err := ks.List()
			if err != nil {
				return fail(err)
			}
			if entries == nil {
				entries = []keys.Entry{}
			}
			return root.printer(cmd).result(entries, nil, func(w io.Writer) error {
				for _, e := range entries {
					if len(e.Roles) == 0 {
						fmt.Fprintln(w, e.Name)
						continue
					}
					fmt.Fprintf(w, "%s\troles: %s\n", e.Name, strings.Join(e.Roles, ", "))
				}
				return nil
			})
		},
	}
}

func newKeyAddressCommand(root *RootOptions, store keyStoreFunc) *cobra.Command {
	var (
		name   string
		role   string
		scheme string
	)
	cmd := &cobra.Command{
		Use:   "address --name <name> [--role <role>] [--scheme ed25519|dilithium3]",
		Short: "Print the ledger account address of a key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := keys.ParseScheme(scheme)
			if err != nil {
				return usageError("%v", err)
			}
			ks, err := store()
			if err != nil {
				return err
			}
			s, err := ks.LoadSigner(sch, "", name, role)
			if err != nil {
				return fail(err)
			}
			data := struct {
				Address string `json:"address"`
				Scheme  string `json:"scheme"`
			}{s.Address().Hex(), string(s.Scheme())}
			return root.printer(cmd).result(data, nil, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, data.Address)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "root key name")
	cmd.Flags().StringVar(&role, "role", "", "derived role (root key when empty)")
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.SchemeEd25519), "signature scheme")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func printPath(p printer, path string) error {
	data := struct {
		Path string `json:"path"`
	}{path}
	return p.result(data, nil, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, path)
		return err
	})
}
