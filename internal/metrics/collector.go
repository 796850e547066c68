package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/Chichichkin/dd-logs-sink/internal/daemon"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/batch"
)

const namespace = "ddlogs"

// Collector exports the daemon and delivery counters. Values are read from
// snapshots on every scrape.
type Collector struct {
	daemon   *daemon.LogDaemonMetrics
	delivery *batch.ProcessorMetrics

	descs map[string]*prometheus.Desc
}

func NewCollector(daemonMetrics *daemon.LogDaemonMetrics, deliveryMetrics *batch.ProcessorMetrics) *Collector {
	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}

	return &Collector{
		daemon:   daemonMetrics,
		delivery: deliveryMetrics,
		descs: map[string]*prometheus.Desc{
			"files_discovered": desc("source", "files_discovered_total", "Log files discovered under the root path"),
			"files_processed":  desc("source", "files_processed_total", "Log files that stopped being tailed"),
			"files_failed":     desc("source", "files_failed_total", "Log files that could not be tailed"),
			"queued_files":     desc("source", "queued_files", "Files waiting for a worker"),
			"queue_usage":      desc("source", "queue_usage", "Fraction of the file queue in use"),
			"workers_active":   desc("source", "workers_active", "Running tail workers"),
			"workers_busy":     desc("source", "workers_busy", "Workers currently tailing a file"),
			"lines_read":       desc("source", "lines_read_total", "Lines read from tailed files"),
			"writes":           desc("source", "writes_total", "Record groups delivered to the sink"),
			"writes_failed":    desc("source", "writes_failed_total", "Record groups whose delivery failed"),
			"records_accepted": desc("delivery", "records_accepted_total", "Records accepted into a batch"),
			"records_sent":     desc("delivery", "records_sent_total", "Records included in a delivered payload"),
			"records_skipped":  desc("delivery", "records_skipped_total", "Records left out because they had no value"),
			"records_dropped":  desc("delivery", "records_dropped_total", "Records dropped with a failed batch"),
			"batches_sent":     desc("delivery", "batches_sent_total", "Batches delivered with a 2xx response"),
			"batches_failed":   desc("delivery", "batches_failed_total", "Batches whose delivery failed"),
			"empty_flushes":    desc("delivery", "empty_flushes_total", "Flushes that had nothing to send"),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(name string, v int) {
		ch <- prometheus.MustNewConstMetric(c.descs[name], prometheus.CounterValue, float64(v))
	}
	gauge := func(name string, v int) {
		ch <- prometheus.MustNewConstMetric(c.descs[name], prometheus.GaugeValue, float64(v))
	}

	if c.daemon != nil {
		d := c.daemon.GetMetricsStamp()
		counter("files_discovered", d.FilesDiscovered)
		counter("files_processed", d.FilesProcessed)
		counter("files_failed", d.FilesFailed)
		gauge("queued_files", d.QueuedFiles)
		ch <- prometheus.MustNewConstMetric(c.descs["queue_usage"], prometheus.GaugeValue, c.daemon.GetQueueUsage())
		gauge("workers_active", d.WorkersActive)
		gauge("workers_busy", d.WorkersBusy)
		counter("lines_read", d.LinesRead)
		counter("writes", d.Writes)
		counter("writes_failed", d.WritesFailed)
	}

	if c.delivery != nil {
		p := c.delivery.GetMetricsStamp()
		counter("records_accepted", p.RecordsAccepted)
		counter("records_sent", p.RecordsSent)
		counter("records_skipped", p.RecordsSkipped)
		counter("records_dropped", p.RecordsDropped)
		counter("batches_sent", p.BatchesSent)
		counter("batches_failed", p.BatchesFailed)
		counter("empty_flushes", p.EmptyFlushes)
	}
}

// Serve registers the collector on a fresh registry and serves /metrics on
// addr in the background.
func Serve(addr string, c *Collector) (*http.Server, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			klog.Errorf("Metrics server stopped: %v", err)
		}
	}()
	return srv, nil
}
