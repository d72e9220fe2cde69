package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/signpost/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cli.Execute(ctx); err != nil {
		os.Stderr.WriteString("signpostctl: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
