package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dmitrijs2005/bucketkeeper/internal/client/cli"
	"github.com/dmitrijs2005/bucketkeeper/internal/config"
	"github.com/dmitrijs2005/bucketkeeper/internal/flagx"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(cfg, os.Stdin, os.Stdout)
	defer app.Close()

	root := app.NewRootCmd()
	root.SetArgs(flagx.RemoveArgs(args, slices.Concat(config.Flags, flagx.ConfigFileFlags)))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
