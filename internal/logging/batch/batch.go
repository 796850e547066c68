package batch

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
)

// Batch is an ordered, bounded buffer of records owned by a single Processor.
type Batch struct {
	records   []*logging.Record
	maxLength int
}

func NewBatch(maxLength int) *Batch {
	return &Batch{
		records:   make([]*logging.Record, 0, maxLength),
		maxLength: maxLength,
	}
}

// Full reports whether the next accepted record must be preceded by a flush.
func (b *Batch) Full() bool {
	return len(b.records) >= b.maxLength
}

func (b *Batch) Add(record *logging.Record) {
	b.records = append(b.records, record)
}

func (b *Batch) Len() int {
	return len(b.records)
}

func (b *Batch) Records() []*logging.Record {
	return b.records
}

func (b *Batch) Reset() {
	clear(b.records)
	b.records = b.records[:0]
}

// Processor accumulates records and delivers them in batches of at most
// Config.MaxBatchLength. It is not safe for concurrent use: calls must be
// serialized by the caller.
type Processor struct {
	config    Config
	batch     *Batch
	formatter logging.Formatter
	sender    logging.Sender
	metrics   *ProcessorMetrics
}

type Config struct {
	MaxBatchLength int
}

func NewBatchProcessor(config Config, formatter logging.Formatter, sender logging.Sender) (*Processor, error) {
	if config.MaxBatchLength < 1 {
		return nil, fmt.Errorf("max batch length must be positive, got %d", config.MaxBatchLength)
	}

	return &Processor{
		config:    config,
		batch:     NewBatch(config.MaxBatchLength),
		formatter: formatter,
		sender:    sender,
		metrics:   &ProcessorMetrics{},
	}, nil
}

func (p *Processor) Metrics() *ProcessorMetrics {
	return p.metrics
}

// Write accepts every record in order and then flushes whatever is left,
// even when the remainder is empty. It stops at the first failed delivery.
func (p *Processor) Write(ctx context.Context, records []*logging.Record) error {
	for _, record := range records {
		if err := p.Accept(ctx, record); err != nil {
			return err
		}
	}

	return p.Flush(ctx)
}

// Accept appends record to the current batch, flushing first when the batch
// already holds MaxBatchLength records. Records are not filtered here.
func (p *Processor) Accept(ctx context.Context, record *logging.Record) error {
	if p.batch.Full() {
		if err := p.Flush(ctx); err != nil {
			return err
		}
	}

	p.batch.Add(record)
	p.metrics.IncRecordsAccepted()
	return nil
}

// Flush formats, compresses and sends the current batch. The batch is cleared
// once the attempt completes, whether it succeeded or not; failed records are
// dropped.
func (p *Processor) Flush(ctx context.Context) error {
	size := p.batch.Len()
	defer p.batch.Reset()

	payload, ok, err := p.formatter.Format(p.batch.Records())
	if err != nil {
		p.metrics.IncBatchesFailed(size)
		return fmt.Errorf("failed to format batch of %d records: %w", size, err)
	}
	if !ok {
		klog.V(4).Info("Nothing to send; skipping the HTTP request")
		p.metrics.IncEmptyFlushes(size)
		return nil
	}

	if err := p.sender.Send(ctx, payload); err != nil {
		p.metrics.IncBatchesFailed(size)
		return err
	}

	sent := countSendable(p.batch.Records())
	p.metrics.IncBatchesSent(sent, size-sent)
	klog.V(2).Infof("Delivered batch of %d records (%d skipped)", sent, size-sent)
	return nil
}

func countSendable(records []*logging.Record) int {
	n := 0
	for _, r := range records {
		if r != nil && r.Value != nil {
			n++
		}
	}
	return n
}
