package main

import (
	"os"

	"xdao.co/taskledger/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
