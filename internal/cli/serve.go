package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/taskledger/uploadapi"
)

func newServeUploadCommand(root *RootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve-upload",
		Short: "Serve the upload endpoint in front of the configured store",
		Long: `Serve POST /api/upload (multipart field "file", optional "keyvalues" JSON)
and GET /health. Uploads are pushed to the configured store and answered with
{"identifier": "<cid>"}. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.open(cmd, NeedDaemonStore)
			if err != nil {
				return err
			}
			defer env.Close()

			addr := listen
			if addr == "" {
				addr = env.Config.Upload.Listen
			}
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return wrapExit(ExitCommandError, "listen", err)
			}

			srv := &http.Server{
				Handler: (&uploadapi.Server{
					Store:    env.Store,
					MaxBytes: env.Config.Upload.MaxBytes,
					Tags:     env.Config.Tags,
					Logger:   env.Logger,
				}).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveUntil(ctx, srv, lis, env)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides upload.listen)")
	return cmd
}

func serveUntil(ctx context.Context, srv *http.Server, lis net.Listener, env *Env) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	env.Logger.Info("upload endpoint listening", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fail(err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	env.Logger.Info("upload endpoint shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fail(err)
	}
	return nil
}
