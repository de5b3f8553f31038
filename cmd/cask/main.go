package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/beyondbrewing/cask/pkg/logger"
)

func main() {
	defer logger.SyncDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := RootCmd.ExecuteContext(ctx)
	if cerr := closeDatabase(RootCmd, nil); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		logger.Fatal("command failed", "error", err)
	}
}
