package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/api"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"
)

func main() {
	verbose := flag.Bool("verbose", false, "verbose logging")
	listenAddr := flag.String("listen-addr", ":8080", "address to listen on")
	envFile := flag.String("env-file", ".env", "dotenv file with datapool credentials")
	location := flag.String("location", config.DefaultLocation, "time zone of the datapool timestamps")
	reportTTL := flag.Duration("report-cache-ttl", 15*time.Minute, "how long psr reports are cached")
	flag.Parse()

	log := newLogger(*verbose)

	if err := run(log, *listenAddr, *envFile, *location, *reportTTL); err != nil {
		log.Error("failed to serve", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, listenAddr, envFile, location string, reportTTL time.Duration) error {
	env, err := config.Load(envFile)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(location)
	if err != nil {
		return fmt.Errorf("failed to load location: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := datapool.Connect(ctx, &datapool.ClientConfig{
		Logger:     log,
		ConnString: env.Datapool.ConnString(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	provider, err := datapool.NewProvider(&datapool.ProviderConfig{
		Logger: log,
		Store:  client,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	server, err := api.NewServer(&api.ServerConfig{
		Logger:         log,
		Provider:       provider,
		Location:       loc,
		ReportCacheTTL: reportTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	log.Info("listening", "address", listener.Addr().String())
	return server.Serve(ctx, listener)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
