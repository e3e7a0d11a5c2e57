package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eduverse-client-go/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "eduverse: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
