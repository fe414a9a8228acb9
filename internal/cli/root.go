// Package cli implements the taskledger operator command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/config"
)

// RootOptions holds global flags and the hooks tests override.
type RootOptions struct {
	Verbose    bool
	Format     string
	ConfigPath string

	// Connect opens command dependencies; nil means the package Connect.
	Connect Connector
	// Now is the clock used for expiration checks; nil means time.Now.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string, out, errOut io.Writer) int {
	return Run(&RootOptions{}, args, out, errOut)
}

// Run executes args against a root command built from opts.
func Run(opts *RootOptions, args []string, out, errOut io.Writer) int {
	cmd := NewRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.Execute()
	if err != nil {
		printer{format: opts.Format, out: out, errOut: errOut}.failure(err)
	}
	return ExitCode(err)
}

// NewRootCommand creates the root command.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskledger",
		Short: "Submit computation tasks and manage roles on a ledger",
		Long: `taskledger pushes task payloads to an addressable store, records their
content identifiers on a ledger and waits for finality. It also manages
time-bounded role assignments and reads the task list back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to taskledger.yaml (defaults apply when empty)")

	cmd.AddCommand(newSubmitCommand(opts))
	cmd.AddCommand(newCompleteCommand(opts))
	cmd.AddCommand(newTasksCommand(opts))
	cmd.AddCommand(newRolesCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newOrphansCommand(opts))
	cmd.AddCommand(newServeUploadCommand(opts))
	cmd.AddCommand(newKeyCommand(opts))
	cmd.AddCommand(newBlobCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, wrapExit(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// open loads the config and connects the dependencies in need. The caller
// must Close the returned Env.
func (o *RootOptions) open(cmd *cobra.Command, need Need) (*Env, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	connect := o.Connect
	if connect == nil {
		connect = Connect
	}
	env, err := connect(contextOf(cmd), cfg, need, o.logger(cmd))
	if err != nil {
		return nil, wrapExit(ExitCommandError, "connect", err)
	}
	if env.Logger == nil {
		env.Logger = o.logger(cmd)
	}
	return env, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func requireArgs(n int, use string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError("usage: taskledger %s", use)
		}
		return nil
	}
}

// fail marks err as an operation failure, as opposed to a usage error.
func fail(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}
