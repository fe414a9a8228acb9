package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/casregistry"
)

// newBlobCommand exposes the store directly. Without --backend the store from
// the config file is used; with it, the named backend is opened from its
// registry flags (e.g. --backend localfs --localfs-dir ./blobs).
func newBlobCommand(root *RootOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Put and get raw blobs in the addressable store",
	}
	cmd.PersistentFlags().StringVar(&backend, "backend", "", "store backend name (config store when empty)")

	gofs := flag.NewFlagSet("blob", flag.ContinueOnError)
	casregistry.RegisterFlags(gofs, casregistry.UsageCLI)
	cmd.PersistentFlags().AddGoFlagSet(gofs)

	open := func(cmd *cobra.Command) (storage.Store, func() error, error) {
		if backend != "" {
			s, closeFn, err := casregistry.Open(backend, casregistry.UsageCLI)
			if err != nil {
				return nil, nil, wrapExit(ExitCommandError, "open backend", err)
			}
			if closeFn == nil {
				closeFn = func() error { return nil }
			}
			return s, closeFn, nil
		}
		env, err := root.open(cmd, NeedStore)
		if err != nil {
			return nil, nil, err
		}
		return env.Store, env.Close, nil
	}

	cmd.AddCommand(newBlobPutCommand(root, open))
	cmd.AddCommand(newBlobGetCommand(root, open))
	cmd.AddCommand(&cobra.Command{
		Use:   "backends",
		Short: "List store backends linked into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Name        string `json:"name"`
				Description string `json:"description,omitempty"`
			}
			var rows []row
			for _, b := range casregistry.List(casregistry.UsageCLI) {
				rows = append(rows, row{b.Name, b.Description})
			}
			return root.printer(cmd).result(rows, nil, func(w io.Writer) error {
				for _, r := range rows {
					if r.Description == "" {
						fmt.Fprintln(w, r.Name)
						continue
					}
					fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Description)
				}
				return nil
			})
		},
	})
	return cmd
}

type storeOpener func(cmd *cobra.Command) (storage.Store, func() error, error)

func newBlobPutCommand(root *RootOptions, open storeOpener) *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Push a file and print its content identifier",
		Args:  requireArgs(1, "blob put <file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return wrapExit(ExitCommandError, "read "+filepath.Base(args[0]), err)
			}
			kv, err := parseTags(tags)
			if err != nil {
				return err
			}
			s, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := s.Push(contextOf(cmd), b, storage.Metadata{Name: filepath.Base(args[0]), KeyValues: kv})
			if err != nil {
				return fail(err)
			}
			data := struct {
				CID string `json:"cid"`
			}{id.String()}
			return root.printer(cmd).result(data, nil, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, id.String())
				return err
			})
		},
	}
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "store metadata key=value (repeatable)")
	return cmd
}

func newBlobGetCommand(root *RootOptions, open storeOpener) *cobra.Command {
	var (
		cidStr  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "get --cid <cid> [--out <file>]",
		Short: "Fetch a blob by content identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cidutil.ParseV1(cidStr)
			if err != nil {
				return usageError("invalid --cid: %v", err)
			}
			s, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			b, err := s.Get(contextOf(cmd), id)
			if err != nil {
				return fail(err)
			}
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(outPath, b, 0o600); err != nil {
				return fail(fmt.Errorf("write %s: %w", outPath, err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cidStr, "cid", "", "content identifier")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (stdout when empty)")
	_ = cmd.MarkFlagRequired("cid")
	return cmd
}
