package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"xdao.co/taskledger/storage/casregistry"
	"xdao.co/taskledger/storage/grpccas"

	_ "xdao.co/taskledger/storage/ipfs"
	_ "xdao.co/taskledger/storage/localfs"
	_ "xdao.co/taskledger/storage/pinning"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("casgrpcd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "store backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	maxMsg := fs.Int("max-msg-bytes", 64<<20, "maximum gRPC message size")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	log := slog.New(slog.NewTextHandler(errOut, nil))

	store, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	s := grpc.NewServer(grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	grpccas.RegisterStoreServer(s, &grpccas.Server{Store: store})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Info("casgrpcd listening", "addr", lis.Addr().String(), "backend", *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
