package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/submission"
)

type submitOptions struct {
	DataID     string
	Parameters string
	Name       string
	Tags       []string
}

func newSubmitCommand(root *RootOptions) *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit --data-id <id> [--params <text>] <file>",
		Short: "Upload a task payload and record it on the ledger",
		Long: `Upload <file> to the configured store, then record --data-id and the
returned content identifier on the ledger. The command returns once the
ledger write is final. Progress is reported on stderr.

Example:
  taskledger submit --data-id run-001 --params "lr=0.01" ./input.bin`,
		Args: requireArgs(1, "submit --data-id <id> [--params <text>] <file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.DataID, "data-id", "", "ledger key of the task (at most 32 bytes)")
	cmd.Flags().StringVar(&opts.Parameters, "params", "", "task parameters, kept in the local journal")
	cmd.Flags().StringVar(&opts.Name, "name", "", "blob name in store metadata (defaults to the file name)")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", nil, "store metadata key=value (repeatable)")
	return cmd
}

func runSubmit(cmd *cobra.Command, root *RootOptions, opts *submitOptions, path string) error {
	payload, err := readPayload(path, opts.Name, opts.Tags)
	if err != nil {
		return err
	}
	env, err := root.open(cmd, NeedStore|NeedLedger|NeedSigner|NeedJournal)
	if err != nil {
		return err
	}
	defer env.Close()

	p := root.printer(cmd)
	coord := submission.New(env.Store, env.Client(), submission.Options{
		Wait:    env.Config.Ledger.Wait(),
		Journal: journalOf(env),
		Logger:  env.Logger,
		Tags:    env.Config.Tags,
	})
	task := submission.NewTask(opts.DataID, opts.Parameters)
	rcpt, err := coord.Submit(contextOf(cmd), task, payload, progressTo(p))
	if err != nil {
		return fail(err)
	}
	return printReceipt(p, task, rcpt)
}

type completeOptions struct {
	Index uint64
	Name  string
	Tags  []string
}

func newCompleteCommand(root *RootOptions) *cobra.Command {
	opts := &completeOptions{}
	cmd := &cobra.Command{
		Use:   "complete --index <n> <result-file>",
		Short: "Upload a task result and mark the task completed",
		Args:  requireArgs(1, "complete --index <n> <result-file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().Uint64Var(&opts.Index, "index", 0, "ledger index of the task")
	cmd.Flags().StringVar(&opts.Name, "name", "", "blob name in store metadata (defaults to the file name)")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", nil, "store metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func runComplete(cmd *cobra.Command, root *RootOptions, opts *completeOptions, path string) error {
	payload, err := readPayload(path, opts.Name, opts.Tags)
	if err != nil {
		return err
	}
	env, err := root.open(cmd, NeedStore|NeedLedger|NeedSigner|NeedJournal)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := contextOf(cmd)
	rec, err := env.Engine.GetTask(ctx, opts.Index)
	if err != nil {
		return fail(model.Wrap(model.KindValidation, model.StageValidating, string(ledger.OpCompleteTask),
			fmt.Sprintf("task %d", opts.Index), err))
	}

	p := root.printer(cmd)
	coord := submission.New(env.Store, env.Client(), submission.Options{
		Wait:    env.Config.Ledger.Wait(),
		Journal: journalOf(env),
		Logger:  env.Logger,
		Tags:    env.Config.Tags,
	})
	task := submission.NewTask(rec.DataID.String(), "")
	rcpt, err := coord.Complete(ctx, opts.Index, task, payload, progressTo(p))
	if err != nil {
		return fail(err)
	}
	return printReceipt(p, task, rcpt)
}

// readPayload reads path. An empty file is passed through so the coordinator
// reports it as a validation failure.
func readPayload(path, name string, tags []string) (submission.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return submission.Payload{}, wrapExit(ExitCommandError, "read payload", err)
	}
	kv, err := parseTags(tags)
	if err != nil {
		return submission.Payload{}, err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return submission.Payload{Name: name, Data: data, Tags: kv}, nil
}

func parseTags(tags []string) (map[string]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	kv := make(map[string]string, len(tags))
	for _, t := range tags {
		k, v, ok := strings.Cut(t, "=")
		if !ok || k == "" {
			return nil, usageError("invalid --tag %q: want key=value", t)
		}
		kv[k] = v
	}
	return kv, nil
}

func journalOf(env *Env) submission.Journal {
	if env.Journal == nil {
		return nil
	}
	return env.Journal
}

func progressTo(p printer) submission.ProgressFunc {
	if p.json() {
		return nil
	}
	return func(v int) {
		if v < 0 {
			fmt.Fprintln(p.errOut, "progress: failed")
			return
		}
		fmt.Fprintf(p.errOut, "progress: %d%%\n", v)
	}
}

type receiptOutput struct {
	TaskID string `json:"taskId"`
	DataID string `json:"dataId,omitempty"`
	model.ReceiptRow
}

func printReceipt(p printer, t *submission.Task, r ledger.Receipt) error {
	out := receiptOutput{
		TaskID:     t.ID,
		DataID:     t.DataID,
		ReceiptRow: model.ReceiptRow{TxHash: r.TxHash, Block: r.Block, Op: string(r.Op), CID: r.CID},
	}
	return p.result(out, nil, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s %s cid=%s tx=%s block=%d\n", r.Op, t.DataID, r.CID, r.TxHash, r.Block)
		return err
	})
}
