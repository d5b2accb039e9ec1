package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/archive"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/history"
	"github.com/eawag-uwo/sensorhealth/internal/influx"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/alert"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/worker"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

const (
	defaultPSRInterval   = 24 * time.Hour
	defaultDriftInterval = 24 * time.Hour
)

var (
	envFile       = flag.String("env-file", ".env", "dotenv file with datapool and sink credentials")
	env           = flag.String("env", "prod", "the environment name used in alerts and influx tags")
	psrInterval   = flag.Duration("psr-interval", defaultPSRInterval, "interval between psr checks")
	driftInterval = flag.Duration("drift-interval", defaultDriftInterval, "interval between drift checks")
	driftConfig   = flag.String("drift-config", "", "drift.yaml with sensor pairs; drift checks are disabled when empty")
	sources       = flag.String("sources", "", "comma separated sources to check; all datapool sources when empty")
	historyWeeks  = flag.Int("history-weeks", 16, "weeks of history used as baseline")
	resolution    = flag.String("resolution", "W", "psr resolution (Y, Q, M, W, D)")
	location      = flag.String("location", config.DefaultLocation, "time zone of the datapool timestamps")
	outDir        = flag.String("out-dir", "", "directory for workbook reports; no workbooks when empty")
	verbose       = flag.Bool("verbose", false, "enable verbose logging")
	showVersion   = flag.Bool("version", false, "Print the version of the uwo-monitor and exit")
	metricsAddr   = flag.String("metrics-addr", ":8080", "Address to listen on for prometheus metrics")

	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}

	// Initialize logger.
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if err := run(log); err != nil {
		log.Error("Failed to run monitor", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	res, err := stats.ParseResolution(*resolution)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(*location)
	if err != nil {
		return fmt.Errorf("failed to load location: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize datapool provider.
	client, err := datapool.Connect(ctx, &datapool.ClientConfig{
		Logger:     log,
		ConnString: cfg.Datapool.ConnString(),
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
		return err
	}

	workerCfg := &worker.Config{
		Logger:        log,
		Provider:      provider,
		Location:      loc,
		Env:           *env,
		PSRInterval:   *psrInterval,
		HistoryWeeks:  *historyWeeks,
		Resolution:    res,
		DriftInterval: *driftInterval,
		OutDir:        *outDir,
	}
	if *sources != "" {
		workerCfg.Sources = strings.Split(*sources, ",")
	}
	if *driftConfig != "" {
		dc, err := config.LoadDriftConfig(*driftConfig)
		if err != nil {
			return err
		}
		workerCfg.Drift = dc
	}

	// Initialize prometheus metrics server.
	worker.MetricBuildInfo.WithLabelValues(version, commit, date).Set(1)
	go func() {
		listener, err := net.Listen("tcp", *metricsAddr)
		if err != nil {
			log.Error("Failed to start prometheus metrics server listener", "error", err)
			return
		}
		log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
		http.Handle("/metrics", promhttp.Handler())
		if err := http.Serve(listener, nil); err != nil {
			log.Error("Failed to start prometheus metrics server", "error", err)
		}
	}()

	// Initialize InfluxDB writer.
	if cfg.Influx.Enabled() {
		influxClient, writer := influx.NewWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer influxClient.Close()
		influx.LogErrors(ctx, log, writer)
		workerCfg.InfluxWriter = writer
	} else {
		log.Info("INFLUX_URL or INFLUX_TOKEN not set, not enabling writes to InfluxDB")
	}

	// Initialize ClickHouse history.
	if cfg.ClickHouse.Enabled() {
		sink, err := history.New(
			history.WithAddr(cfg.ClickHouse.Addr),
			history.WithDatabase(cfg.ClickHouse.Database),
			history.WithUser(cfg.ClickHouse.User),
			history.WithPassword(cfg.ClickHouse.Password),
			history.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.EnsureSchema(ctx); err != nil {
			return err
		}
		workerCfg.History = sink
	} else {
		log.Info("CLICKHOUSE_ADDR not set, not recording history")
	}

	// Initialize report archive.
	if cfg.S3.Enabled() {
		if *outDir == "" {
			return fmt.Errorf("-out-dir is required when %s is set", config.EnvS3Bucket)
		}
		uploader, err := archive.New(ctx, &archive.Config{
			Logger:          log,
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			EndpointURL:     cfg.S3.EndpointURL,
			KeyPrefix:       cfg.S3.KeyPrefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Verify:          true,
		})
		if err != nil {
			return err
		}
		workerCfg.Archiver = uploader
	}

	// Initialize Slack alerts.
	if cfg.SlackWebhookURL != "" {
		notifier, err := alert.NewSlackNotifier(cfg.SlackWebhookURL, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			return err
		}
		workerCfg.Notifier = notifier
	}

	w, err := worker.New(workerCfg)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	return w.Run(ctx)
}
