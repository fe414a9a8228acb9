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
	"time"

	"google.golang.org/grpc"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/ledger/grpcledger"
	"xdao.co/taskledger/ledger/ledgerdb"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, errOut io.Writer) int {
	fs := flag.NewFlagSet("ledgerd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7700", "listen address")
	dbPath := fs.String("db", "ledger.db", "SQLite ledger database path")
	owner := fs.String("owner", "", "owner account (0x...); empty leaves role management open")
	interval := fs.Duration("block-interval", 2*time.Second, "block sealing interval; 0 seals after every transaction")
	requireSubmitter := fs.Bool("require-submitter-role", false, "only live SUBMITTER role holders may submit tasks")
	verbose := fs.Bool("verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	opts := ledgerdb.Options{
		RequireSubmitterRole: *requireSubmitter,
		AutoSeal:             *interval <= 0,
		Logger:               log,
	}
	if *owner != "" {
		addr, err := ledger.ParseAddress(*owner)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --owner: %v\n", err)
			return 2
		}
		opts.Owner = addr
	}

	db, err := ledgerdb.Open(*dbPath, opts)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer db.Close()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := grpc.NewServer()
	grpcledger.RegisterLedgerServer(s, &grpcledger.Server{Engine: db})

	if !opts.AutoSeal {
		go func() { _ = db.Run(ctx, *interval) }()
	}
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Info("ledgerd listening", "addr", lis.Addr().String(), "db", *dbPath, "block_interval", interval.String(), "owner", opts.Owner.Hex())
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
