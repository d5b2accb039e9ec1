package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eawag-uwo/sensorhealth/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx)
	cancel()
	os.Exit(int(code))
}
