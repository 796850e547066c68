package daemon

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
	"k8s.io/klog/v2"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/datadog"
)

// LogDaemonService tails pod log files and hands their lines to a RecordSink
// in groups. Only the pump goroutine calls the sink, so a sink that is not
// safe for concurrent use can be passed in.
type LogDaemonService struct {
	config        Config
	sink          logging.RecordSink
	fileQueue     chan string
	records       chan *logging.Record
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	pumpWg        sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       *LogDaemonMetrics

	filesMutex  sync.Mutex
	activeFiles map[string]struct{}
	seenFiles   map[string]struct{}
}

type Config struct {
	LogRootPath   string
	ScanInterval  time.Duration
	Workers       int
	FileQueueSize int
	NodeName      string
	// If > 0, stop tailing a file after this period without new lines
	FileIdleTimeout time.Duration
	// PollBatchSize caps the number of records per sink Write
	PollBatchSize int
	// PollInterval is the longest a non-empty group waits before Write
	PollInterval time.Duration
}

func NewLogDaemonService(ctx context.Context, config Config, sink logging.RecordSink) *LogDaemonService {
	nCtx, cancel := context.WithCancel(ctx)

	return &LogDaemonService{
		config:    config,
		sink:      sink,
		fileQueue: make(chan string, config.FileQueueSize),
		records:   make(chan *logging.Record, config.PollBatchSize),
		ctx:       nCtx,
		cancel:    cancel,
		metrics: &LogDaemonMetrics{
			FilesQueueCapacity: config.FileQueueSize,
		},
		activeFiles: make(map[string]struct{}),
		seenFiles:   make(map[string]struct{}),
	}
}

func (s *LogDaemonService) Metrics() *LogDaemonMetrics {
	return s.metrics
}

func (s *LogDaemonService) Start() {
	klog.Infof("Starting log daemon service: workers=%d, queue size=%d, root=%s",
		s.config.Workers, s.config.FileQueueSize, s.config.LogRootPath)

	for i := 0; i < s.config.Workers; i++ {
		s.workersWg.Add(1)
		go s.worker(i)
	}

	s.pumpWg.Add(1)
	go s.pump()

	s.subServicesWg.Add(1)
	go s.scanner()

	klog.Info("Log daemon service started")
}

// Stop cancels tailing, waits for the workers and delivers the records that
// were already read.
func (s *LogDaemonService) Stop() {
	klog.Info("Stopping log daemon service...")
	s.cancel()

	s.subServicesWg.Wait()
	close(s.fileQueue)
	s.workersWg.Wait()

	close(s.records)
	s.pumpWg.Wait()

	klog.Info("Log daemon service stopped")
}

func (s *LogDaemonService) worker(id int) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Worker %d panicked: %v", id, r)
		}
	}()

	s.metrics.IncWorkersActive()
	defer s.metrics.DecWorkersActive()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.DecAmountQueueFiles()
			s.metrics.IncWorkersBusy()
			s.processFile(s.ctx, filePath)
			s.metrics.DecWorkersBusy()
			s.release(filePath)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) processFile(ctx context.Context, filePath string) {
	defer s.metrics.IncFilesProcessed()
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("File processing panicked for %s: %v", filePath, r)
			s.metrics.IncFilesFailed()
		}
	}()

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		klog.Errorf("Failed to tail file %s: %v", filePath, err)
		s.metrics.IncFilesFailed()
		return
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	checkTicker := time.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()
	topic := s.topicFor(filePath)

	for {
		select {
		case line := <-t.Lines:
			if line == nil {
				continue
			}
			if line.Err != nil {
				klog.Warningf("Error reading from %s: %v", filePath, line.Err)
				continue
			}

			select {
			case s.records <- lineToRecord(topic, line.Text):
				s.metrics.IncLinesRead()
			case <-ctx.Done():
				return
			}
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check context status and idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// pump is the only caller of the sink. It writes a group when it reaches
// PollBatchSize records or when PollInterval elapses. Groups are delivered
// with a context that outlives the service context, so records read before
// Stop still reach the sink while the channel drains.
func (s *LogDaemonService) pump() {
	defer s.pumpWg.Done()

	deliveryCtx := context.WithoutCancel(s.ctx)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	group := make([]*logging.Record, 0, s.config.PollBatchSize)
	for {
		select {
		case record, ok := <-s.records:
			if !ok {
				if len(group) > 0 {
					s.deliver(deliveryCtx, group)
				}
				return
			}
			group = append(group, record)
			if len(group) >= s.config.PollBatchSize {
				s.deliver(deliveryCtx, group)
				group = group[:0]
			}

		case <-ticker.C:
			if len(group) > 0 {
				s.deliver(deliveryCtx, group)
				group = group[:0]
			}
		}
	}
}

func (s *LogDaemonService) deliver(ctx context.Context, group []*logging.Record) {
	err := s.sink.Write(ctx, group)
	if err == nil {
		s.metrics.IncWrites()
		return
	}

	s.metrics.IncWritesFailed()
	var deliveryErr *datadog.DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Temporary() {
		klog.Warningf("Dropped records after transient delivery failure: %v", err)
		return
	}
	klog.Errorf("Failed to write %d records: %v", len(group), err)
}

func (s *LogDaemonService) scanner() {
	defer s.subServicesWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		klog.Errorf("Error discovering log files: %v", err)
		return
	}

	for _, file := range files {
		if !s.claim(file) {
			continue
		}
		select {
		case s.fileQueue <- file:
			s.metrics.IncAmountQueueFiles()
		case <-s.ctx.Done():
			s.release(file)
			return
		default:
			s.release(file)
			klog.Warningf("File queue full (%d/%d), skipping %s",
				len(s.fileQueue), cap(s.fileQueue), file)
		}
	}
}

// claim marks file as queued or tailed. It returns false if it already is.
func (s *LogDaemonService) claim(file string) bool {
	s.filesMutex.Lock()
	defer s.filesMutex.Unlock()

	if _, ok := s.seenFiles[file]; !ok {
		s.metrics.IncFilesDiscovered()
		s.seenFiles[file] = struct{}{}
	}
	if _, ok := s.activeFiles[file]; ok {
		return false
	}
	s.activeFiles[file] = struct{}{}
	return true
}

func (s *LogDaemonService) release(file string) {
	s.filesMutex.Lock()
	defer s.filesMutex.Unlock()
	delete(s.activeFiles, file)
}

func (s *LogDaemonService) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			klog.V(2).Infof("Error accessing path %s: %v", path, err)
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

// topicFor derives a topic from the pod log layout
// /var/log/pods/<namespace>_<pod>_<uid>/<container>/<n>.log, falling back to
// <node>.<file> for other paths.
func (s *LogDaemonService) topicFor(filePath string) string {
	parts := strings.Split(filePath, "/")
	if len(parts) >= 6 {
		podParts := strings.Split(parts[4], "_")
		if len(podParts) >= 3 {
			return strings.Join([]string{podParts[0], podParts[1], parts[5]}, ".")
		}
	}

	return s.config.NodeName + "." + filepath.Base(filePath)
}

// lineToRecord keeps JSON object lines structured and everything else raw.
func lineToRecord(topic, line string) *logging.Record {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]any
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(trimmed, &fields); err == nil {
			return &logging.Record{
				Topic:  topic,
				Value:  logging.StructValue{Fields: fields},
				Schema: &logging.Schema{Type: "struct", Optional: true},
			}
		}
	}

	return &logging.Record{
		Topic:  topic,
		Value:  logging.RawValue(line),
		Schema: &logging.Schema{Type: "string", Optional: true},
	}
}
