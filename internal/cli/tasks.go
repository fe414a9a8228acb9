package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/storage/bundle"
	"xdao.co/taskledger/views"
)

func newTasksCommand(root *RootOptions) *cobra.Command {
	var summaryOnly bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks recorded on the ledger",
		Long: `List every task on the ledger in index order. Parameters come from the
local journal when it knows the task. Completed tasks show a gateway URL for
their result when a gateway is configured. Tasks that cannot be read are
reported as warnings and left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.open(cmd, NeedLedger|NeedJournal)
			if err != nil {
				return err
			}
			defer env.Close()

			list, err := views.Tasks{
				Ledger:  env.Engine,
				Params:  env.ParamSource(),
				Gateway: env.Config.Gateway,
				Logger:  env.Logger,
			}.List(contextOf(cmd))
			if err != nil {
				return fail(err)
			}
			sum := views.Summarize(list.Rows)
			p := root.printer(cmd)
			if summaryOnly {
				return p.result(sum, list.Failures, func(w io.Writer) error { return views.RenderSummary(w, sum) })
			}
			data := struct {
				Tasks   []model.TaskRow `json:"tasks"`
				Summary views.Summary   `json:"summary"`
			}{Tasks: list.Rows, Summary: sum}
			return p.result(data, list.Failures, func(w io.Writer) error {
				if err := views.RenderTasks(w, list.Rows); err != nil {
					return err
				}
				return views.RenderSummary(w, sum)
			})
		},
	}
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "print only the status distribution")
	return cmd
}

func newExportCommand(root *RootOptions) *cobra.Command {
	var (
		outPath       string
		includeInputs bool
	)
	cmd := &cobra.Command{
		Use:   "export --out <bundle.tar>",
		Short: "Export completed task results from the store as a TAR bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.open(cmd, NeedStore|NeedLedger)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := contextOf(cmd)
			list, err := views.Tasks{Ledger: env.Engine, Logger: env.Logger}.List(ctx)
			if err != nil {
				return fail(err)
			}
			entries, warnings := bundleEntries(list.Rows, includeInputs)
			warnings = append(list.Failures, warnings...)

			f, err := os.Create(outPath)
			if err != nil {
				return wrapExit(ExitCommandError, "create bundle", err)
			}
			if err := bundle.Export(ctx, f, env.Store, entries, bundle.ExportOptions{IncludeIndex: true}); err != nil {
				_ = f.Close()
				return fail(err)
			}
			if err := f.Close(); err != nil {
				return fail(err)
			}
			data := struct {
				Path    string `json:"path"`
				Entries int    `json:"entries"`
			}{outPath, len(entries)}
			return root.printer(cmd).result(data, warnings, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "exported %d blobs to %s\n", len(entries), outPath)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "bundle path")
	cmd.Flags().BoolVar(&includeInputs, "inputs", false, "also export task input payloads")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// bundleEntries labels task blobs as <dataId>/result and <dataId>/input.
// Identifiers that do not parse are returned as warnings.
func bundleEntries(rows []model.TaskRow, inputs bool) ([]bundle.Entry, []error) {
	var (
		out  []bundle.Entry
		errs []error
	)
	add := func(label, s string) {
		if s == "" {
			return
		}
		id, err := cidutil.ParseV1(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			return
		}
		out = append(out, bundle.Entry{Label: label, CID: id})
	}
	for _, r := range rows {
		if r.Completed {
			add(r.DataID+"/result", r.ResultCID)
		}
		if inputs {
			add(r.DataID+"/input", r.InputCID)
		}
	}
	return out, errs
}

func newImportCommand(root *RootOptions) *cobra.Command {
	var repin bool
	cmd := &cobra.Command{
		Use:   "import <bundle.tar>",
		Short: "Push every blob of a TAR bundle into the store",
		Args:  requireArgs(1, "import <bundle.tar>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return wrapExit(ExitCommandError, "open bundle", err)
			}
			defer f.Close()

			env, err := root.open(cmd, NeedStore)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := bundle.Import(contextOf(cmd), f, env.Store, bundle.ImportOptions{Repin: repin})
			if err != nil {
				return fail(err)
			}
			mapping := make(map[string]string, len(res))
			keys := make([]string, 0, len(res))
			for k, v := range res {
				mapping[k] = v.String()
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return root.printer(cmd).result(mapping, nil, func(w io.Writer) error {
				for _, k := range keys {
					if mapping[k] == k {
						fmt.Fprintln(w, k)
						continue
					}
					fmt.Fprintf(w, "%s -> %s\n", k, mapping[k])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&repin, "repin", false, "accept non-raw blocks; the store may assign new identifiers")
	return cmd
}

type orphanRow struct {
	TaskID string    `json:"taskId"`
	DataID string    `json:"dataId"`
	Op     string    `json:"op"`
	CID    string    `json:"cid"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

func newOrphansCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List stored blobs whose ledger write failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.open(cmd, NeedJournal)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.Journal == nil {
				return usageError("orphans needs a history journal (set history in the config)")
			}
			evs, err := env.Journal.Orphans(contextOf(cmd))
			if err != nil {
				return fail(err)
			}
			rows := make([]orphanRow, 0, len(evs))
			for _, ev := range evs {
				rows = append(rows, orphanRow{TaskID: ev.TaskID, DataID: ev.DataID, Op: string(ev.Op), CID: ev.CID, Error: ev.Error, At: ev.At})
			}
			return root.printer(cmd).result(rows, nil, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATA ID\tOP\tCID\tAT\tERROR")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.DataID, r.Op, r.CID, r.At.UTC().Format(time.RFC3339), r.Error)
				}
				return tw.Flush()
			})
		},
	}
}
