// Command rpcrouter serves the sample calculator router over stdin/stdout and
// prints or publishes its method catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
