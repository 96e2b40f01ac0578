package testutil

import (
	"QuoteLedger/internal/event"
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// Quote builds a quote with every price and size present.
func Quote(venue, pair string, ts int64, bid, ask, bidSize, askSize float64) event.Quote {
	return event.Quote{
		Venue:     venue,
		Pair:      pair,
		Timestamp: ts,
		Bid:       event.Some(bid),
		Ask:       event.Some(ask),
		BidSize:   event.Some(bidSize),
		AskSize:   event.Some(askSize),
	}
}

// PerpQuote is Quote with a funding rate.
func PerpQuote(venue, pair string, ts int64, bid, ask, size, rate float64) event.Quote {
	q := Quote(venue, pair, ts, bid, ask, size, size)
	q.FundingRate = event.Some(rate)
	return q
}

// Ptr returns a pointer to v, for optional parquet fields.
func Ptr(v float64) *float64 { return &v }

// QuoteRow is the full quote log schema.
type QuoteRow struct {
	TsNs        int64    `parquet:"name=ts_ns, type=INT64"`
	Pair        string   `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bid         *float64 `parquet:"name=bid, type=DOUBLE, repetitiontype=OPTIONAL"`
	Ask         *float64 `parquet:"name=ask, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidSize     *float64 `parquet:"name=bid_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskSize     *float64 `parquet:"name=ask_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	FundingRate *float64 `parquet:"name=funding_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	Venue       string   `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// MinimalQuoteRow has only the required columns, as older spot collectors wrote.
type MinimalQuoteRow struct {
	TsNs int64    `parquet:"name=ts_ns, type=INT64"`
	Pair string   `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bid  *float64 `parquet:"name=bid, type=DOUBLE, repetitiontype=OPTIONAL"`
	Ask  *float64 `parquet:"name=ask, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// RowFromQuote converts a quote into a full schema row.
func RowFromQuote(q event.Quote) QuoteRow {
	return QuoteRow{
		TsNs:        q.Timestamp,
		Pair:        q.Pair,
		Bid:         q.Bid.Ptr(),
		Ask:         q.Ask.Ptr(),
		BidSize:     q.BidSize.Ptr(),
		AskSize:     q.AskSize.Ptr(),
		FundingRate: q.FundingRate.Ptr(),
		Venue:       q.Venue,
	}
}

// WriteQuoteLog writes quotes to dir/name in the full schema and returns the path.
func WriteQuoteLog(t *testing.T, dir, name string, quotes ...event.Quote) string {
	t.Helper()
	rows := make([]interface{}, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, RowFromQuote(q))
	}
	path := filepath.Join(dir, name)
	WriteParquetFile(t, path, new(QuoteRow), rows)
	return path
}

// WriteParquetFile writes rows with the schema of obj to a local file.
func WriteParquetFile(t *testing.T, path string, obj interface{}, rows []interface{}) {
	t.Helper()
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer fw.Close()
	if err := writeRows(fw, obj, rows); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ParquetBytes encodes rows with the schema of obj in memory.
func ParquetBytes(t *testing.T, obj interface{}, rows []interface{}) []byte {
	t.Helper()
	mf := &memFile{buffer: &bytes.Buffer{}}
	if err := writeRows(mf, obj, rows); err != nil {
		t.Fatalf("encode parquet: %v", err)
	}
	return mf.buffer.Bytes()
}

func writeRows(pf source.ParquetFile, obj interface{}, rows []interface{}) error {
	pw, err := writer.NewParquetWriter(pf, obj, 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return fmt.Errorf("write row: %w", err)
		}
	}
	return pw.WriteStop()
}

type memFile struct {
	buffer *bytes.Buffer
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
