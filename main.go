package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ftmgraph/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ftmgraph:", err)
		os.Exit(1)
	}
}
