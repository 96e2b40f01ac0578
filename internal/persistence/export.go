package persistence

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// S3PutAPI is the part of the S3 client used to upload exports.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type tradeLogMemFile struct {
	buffer *bytes.Buffer
}

func newTradeLogMemFile() *tradeLogMemFile {
	return &tradeLogMemFile{buffer: &bytes.Buffer{}}
}

func (m *tradeLogMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *tradeLogMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *tradeLogMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *tradeLogMemFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *tradeLogMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *tradeLogMemFile) Close() error                              { return nil }
func (m *tradeLogMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// TradeLogParquet encodes the trade log as a snappy-compressed parquet file.
func TradeLogParquet(rows []TradeRow) ([]byte, error) {
	mf := newTradeLogMemFile()
	if err := writeTradeLog(mf, rows); err != nil {
		return nil, err
	}
	return mf.Bytes(), nil
}

// WriteTradeLogFile writes the parquet trade log to a local path.
func WriteTradeLogFile(path string, rows []TradeRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	pf, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := writeTradeLog(pf, rows); err != nil {
		pf.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return pf.Close()
}

// UploadTradeLog puts an encoded trade log under bucket/key.
func UploadTradeLog(ctx context.Context, client S3PutAPI, bucket, key string, data []byte) error {
	if bucket == "" {
		return fmt.Errorf("s3 bucket not configured")
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.apache.parquet"),
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func writeTradeLog(pf source.ParquetFile, rows []TradeRow) error {
	pw, err := writer.NewParquetWriter(pf, new(TradeRow), 1)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return err
		}
	}
	return pw.WriteStop()
}
