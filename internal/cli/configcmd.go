package cli

import (
	"io"

	"github.com/spf13/cobra"
)

func newConfigCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			return root.printer(cmd).result(cfg, nil, func(w io.Writer) error {
				b, err := cfg.Marshal()
				if err != nil {
					return err
				}
				_, err = w.Write(b)
				return err
			})
		},
	})
	return cmd
}
