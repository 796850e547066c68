package main

import (
	"context"
	goflag "flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/Chichichkin/dd-logs-sink/internal/config"
	"github.com/Chichichkin/dd-logs-sink/internal/daemon"
	"github.com/Chichichkin/dd-logs-sink/internal/logging"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/batch"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/datadog"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/encoder"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/format"
	"github.com/Chichichkin/dd-logs-sink/internal/metrics"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	configPath := pflag.String("config", "", "path to a YAML configuration file")
	overrides := registerFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		klog.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv()
	overrides.apply(pflag.CommandLine, &cfg)
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent, err := StartDaemon(ctx, cfg)
	if err != nil {
		klog.Fatalf("Failed to start: %v", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalChan
		klog.Info("Received shutdown signal")
		cancel()
	}()

	<-ctx.Done()
	klog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	agent.Stop(shutdownCtx)
}

// Agent is a running daemon together with its optional /metrics server.
type Agent struct {
	service       *daemon.LogDaemonService
	metricsServer *http.Server
}

// Stop drains the daemon, then shuts the metrics server down.
func (a *Agent) Stop(ctx context.Context) {
	a.service.Stop()

	if a.metricsServer == nil {
		return
	}
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		klog.Errorf("Failed to shut down metrics server: %v", err)
	}
}

func StartDaemon(ctx context.Context, cfg config.Config) (*Agent, error) {
	mode, err := format.ParseMode(cfg.Datadog.PayloadMode)
	if err != nil {
		return nil, err
	}

	formatter, err := format.New(mode, encoder.JSONEncoder{SchemasEnable: cfg.Datadog.SchemasEnable}, logging.Metadata{
		Source:   cfg.Datadog.Source,
		Tags:     cfg.Datadog.Tags,
		Hostname: cfg.Datadog.Hostname,
		Service:  cfg.Datadog.Service,
	})
	if err != nil {
		return nil, err
	}

	client := datadog.NewClient(datadog.Endpoint{
		Host:   cfg.Datadog.URL,
		Port:   cfg.Datadog.Port,
		APIKey: cfg.Datadog.APIKey,
	})
	klog.Infof("Delivering logs to %s in %s mode, max batch length %d",
		client.URL(), mode, cfg.Datadog.MaxBatchLength)

	processor, err := batch.NewBatchProcessor(batch.Config{
		MaxBatchLength: cfg.Datadog.MaxBatchLength,
	}, formatter, timeoutSender{sender: client, timeout: cfg.Datadog.RequestTimeout})
	if err != nil {
		return nil, err
	}

	service := daemon.NewLogDaemonService(ctx, daemon.Config{
		LogRootPath:     cfg.Source.LogRootPath,
		ScanInterval:    cfg.Source.ScanInterval,
		Workers:         cfg.Source.Workers,
		FileQueueSize:   cfg.Source.FileQueueSize,
		NodeName:        cfg.Source.NodeName,
		FileIdleTimeout: cfg.Source.FileIdleTimeout,
		PollBatchSize:   cfg.Source.PollBatchSize,
		PollInterval:    cfg.Source.PollInterval,
	}, processor)

	agent := &Agent{service: service}
	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector(service.Metrics(), processor.Metrics())
		agent.metricsServer, err = metrics.Serve(cfg.MetricsAddr, collector)
		if err != nil {
			return nil, err
		}
		klog.Infof("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	service.Start()
	return agent, nil
}

// timeoutSender bounds each delivery attempt by timeout when it is set.
type timeoutSender struct {
	sender  logging.Sender
	timeout time.Duration
}

func (s timeoutSender) Send(ctx context.Context, payload string) error {
	if s.timeout <= 0 {
		return s.sender.Send(ctx, payload)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sender.Send(ctx, payload)
}

// ------------------------------------  command line overrides -----------------------------------------------------

type flagOverrides struct {
	apiKey         *string
	url            *string
	port           *int
	source         *string
	tags           *string
	hostname       *string
	service        *string
	maxBatchLength *int
	payloadMode    *string
	logPath        *string
	metricsAddr    *string
}

func registerFlags(fs *pflag.FlagSet) *flagOverrides {
	return &flagOverrides{
		apiKey:         fs.String("dd-api-key", "", "Datadog API key"),
		url:            fs.String("dd-url", "", "Datadog logs intake host"),
		port:           fs.Int("dd-port", 0, "Datadog logs intake port"),
		source:         fs.String("dd-source", "", "value of the ddsource field"),
		tags:           fs.String("dd-tags", "", "comma separated tags sent as ddtags"),
		hostname:       fs.String("dd-hostname", "", "hostname attached to every payload"),
		service:        fs.String("dd-service", "", "service attached to every payload"),
		maxBatchLength: fs.Int("dd-max-batch-length", 0, "maximum number of records per request"),
		payloadMode:    fs.String("payload-mode", "", "structured or raw"),
		logPath:        fs.String("log-path", "", "root directory of the log files to tail"),
		metricsAddr:    fs.String("metrics-addr", "", "listen address of the /metrics endpoint"),
	}
}

// apply copies only the flags that were set explicitly.
func (o *flagOverrides) apply(fs *pflag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "dd-api-key":
			cfg.Datadog.APIKey = *o.apiKey
		case "dd-url":
			cfg.Datadog.URL = *o.url
		case "dd-port":
			cfg.Datadog.Port = *o.port
		case "dd-source":
			cfg.Datadog.Source = *o.source
		case "dd-tags":
			cfg.Datadog.Tags = *o.tags
		case "dd-hostname":
			cfg.Datadog.Hostname = *o.hostname
		case "dd-service":
			cfg.Datadog.Service = *o.service
		case "dd-max-batch-length":
			cfg.Datadog.MaxBatchLength = *o.maxBatchLength
		case "payload-mode":
			cfg.Datadog.PayloadMode = *o.payloadMode
		case "log-path":
			cfg.Source.LogRootPath = *o.logPath
		case "metrics-addr":
			cfg.MetricsAddr = *o.metricsAddr
		}
	})
}
