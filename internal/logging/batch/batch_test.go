package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
	"github.com/Chichichkin/dd-logs-sink/internal/logging/format"
	"github.com/Chichichkin/dd-logs-sink/internal/testutils"
)

// countingFormatter records the batch sizes it sees and renders raw values.
type countingFormatter struct {
	sizes []int
	inner logging.Formatter
}

func (f *countingFormatter) Format(records []*logging.Record) (string, bool, error) {
	f.sizes = append(f.sizes, len(records))
	return f.inner.Format(records)
}

func newProcessor(t *testing.T, maxBatchLength int, sender logging.Sender) (*Processor, *countingFormatter) {
	t.Helper()
	formatter := &countingFormatter{inner: format.NewRawJoin()}
	p, err := NewBatchProcessor(Config{MaxBatchLength: maxBatchLength}, formatter, sender)
	require.NoError(t, err)
	return p, formatter
}

func records(n int) []*logging.Record {
	out := make([]*logging.Record, n)
	for i := range out {
		out[i] = testutils.RawRecord("topic", fmt.Sprintf("r%d", i))
	}
	return out
}

func TestNewBatchProcessor_RejectsNonPositiveLength(t *testing.T) {
	_, err := NewBatchProcessor(Config{MaxBatchLength: 0}, format.NewRawJoin(), &testutils.MockSender{})
	assert.Error(t, err)
}

func TestBatchProcessor_WriteSplitsIntoBatches(t *testing.T) {
	sender := &testutils.MockSender{}
	processor, formatter := newProcessor(t, 2, sender)

	err := processor.Write(context.Background(), records(5))
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, formatter.sizes)
	assert.Equal(t, []string{"r0,r1", "r2,r3", "r4"}, sender.GetPayloads())
	assert.Equal(t, 0, processor.batch.Len())
}

func TestBatchProcessor_FinalFlushAlwaysRuns(t *testing.T) {
	tests := []struct {
		name           string
		maxBatchLength int
		n              int
		wantFlushes    int
	}{
		{"empty write", 3, 0, 1},
		{"exact multiple", 2, 4, 2},
		{"remainder", 3, 7, 3},
		{"single batch", 10, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &testutils.MockSender{}
			processor, formatter := newProcessor(t, tt.maxBatchLength, sender)

			require.NoError(t, processor.Write(context.Background(), records(tt.n)))
			assert.Len(t, formatter.sizes, tt.wantFlushes)
			for _, size := range formatter.sizes {
				assert.LessOrEqual(t, size, tt.maxBatchLength)
			}
		})
	}
}

func TestBatchProcessor_NilValuesNeverSent(t *testing.T) {
	sender := &testutils.MockSender{}
	processor, _ := newProcessor(t, 10, sender)

	batch := []*logging.Record{
		testutils.RawRecord("t", "x"),
		nil,
		{Topic: "t", Value: nil},
		testutils.RawRecord("t", "y"),
	}
	require.NoError(t, processor.Write(context.Background(), batch))

	assert.Equal(t, []string{"x,y"}, sender.GetPayloads())
	assert.Equal(t, 0, processor.batch.Len())

	stamp := processor.Metrics().GetMetricsStamp()
	assert.Equal(t, 4, stamp.RecordsAccepted)
	assert.Equal(t, 2, stamp.RecordsSent)
	assert.Equal(t, 2, stamp.RecordsSkipped)
	assert.Equal(t, 1, stamp.BatchesSent)
}

func TestBatchProcessor_OnlyNilValuesMakesNoRequest(t *testing.T) {
	sender := &testutils.MockSender{}
	processor, _ := newProcessor(t, 10, sender)

	batch := []*logging.Record{nil, {Topic: "t"}, {Topic: "t"}}
	require.NoError(t, processor.Write(context.Background(), batch))

	assert.Empty(t, sender.GetPayloads())
	assert.Equal(t, 1, processor.Metrics().GetMetricsStamp().EmptyFlushes)
}

func TestBatchProcessor_FailureClearsBatch(t *testing.T) {
	sendErr := errors.New("HTTP Response code: 429")
	sender := &testutils.MockSender{Err: sendErr}
	processor, _ := newProcessor(t, 2, sender)

	err := processor.Write(context.Background(), records(5))
	require.ErrorIs(t, err, sendErr)

	// the first full batch fails and the remaining records are never accepted
	assert.Equal(t, []string{"r0,r1"}, sender.GetPayloads())
	assert.Equal(t, 0, processor.batch.Len())

	stamp := processor.Metrics().GetMetricsStamp()
	assert.Equal(t, 1, stamp.BatchesFailed)
	assert.Equal(t, 2, stamp.RecordsDropped)

	// a later write starts from an empty batch and does not replay anything
	sender.Err = nil
	require.NoError(t, processor.Write(context.Background(), records(1)))
	assert.Equal(t, "r0", sender.GetPayloads()[1])
}

func TestBatchProcessor_FormatErrorClearsBatch(t *testing.T) {
	sender := &testutils.MockSender{}
	formatter := format.NewStructured(&testutils.MockEncoder{Err: errors.New("boom")}, logging.Metadata{Source: "s"})
	processor, err := NewBatchProcessor(Config{MaxBatchLength: 5}, formatter, sender)
	require.NoError(t, err)

	err = processor.Write(context.Background(), records(3))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
	assert.Empty(t, sender.GetPayloads())
	assert.Equal(t, 0, processor.batch.Len())
}

func TestBatchProcessor_AcceptFlushesBeforeAppend(t *testing.T) {
	sender := &testutils.MockSender{}
	processor, _ := newProcessor(t, 2, sender)
	ctx := context.Background()

	require.NoError(t, processor.Accept(ctx, testutils.RawRecord("t", "a")))
	require.NoError(t, processor.Accept(ctx, testutils.RawRecord("t", "b")))
	assert.Empty(t, sender.GetPayloads())
	assert.Equal(t, 2, processor.batch.Len())

	require.NoError(t, processor.Accept(ctx, testutils.RawRecord("t", "c")))
	assert.Equal(t, []string{"a,b"}, sender.GetPayloads())
	assert.Equal(t, 1, processor.batch.Len())

	require.NoError(t, processor.Flush(ctx))
	assert.Equal(t, []string{"a,b", "c"}, sender.GetPayloads())
}

func TestBatch_ResetKeepsCapacity(t *testing.T) {
	b := NewBatch(3)
	for _, r := range records(3) {
		b.Add(r)
	}
	assert.True(t, b.Full())

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Full())
	assert.Equal(t, 3, cap(b.Records()))
}
