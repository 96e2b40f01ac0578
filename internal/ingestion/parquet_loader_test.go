package ingestion_test

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ingestion"
	"QuoteLedger/internal/testutil"
	"bytes"
	"context"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestLoadParquetFile_FullSchema(t *testing.T) {
	dir := t.TempDir()
	in := testutil.PerpQuote("hyperliquid", "BTC/USDC:USDC", 1_000, 99.5, 100.5, 2, 0.0001)
	in.AskSize = event.None()
	path := testutil.WriteQuoteLog(t, dir, "hyperliquid_perp.parquet", in)

	quotes, err := ingestion.LoadParquetFile(path, ingestion.LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d", len(quotes))
	}
	got := quotes[0]
	if got.Venue != "hyperliquid" || got.Pair != "BTC/USDC:USDC" || got.Timestamp != 1_000 {
		t.Fatalf("identity fields = %+v", got)
	}
	if got.Bid != event.Some(99.5) || got.Ask != event.Some(100.5) {
		t.Fatalf("prices = %v / %v", got.Bid, got.Ask)
	}
	if got.AskSize.Valid {
		t.Fatalf("ask size should be absent, got %v", got.AskSize)
	}
	if got.FundingRate != event.Some(0.0001) {
		t.Fatalf("funding rate = %v", got.FundingRate)
	}
}

func TestLoadParquetBytes_MissingOptionalColumns(t *testing.T) {
	rows := []interface{}{
		testutil.MinimalQuoteRow{TsNs: 5, Pair: "BTC/USD", Bid: testutil.Ptr(10), Ask: nil},
		testutil.MinimalQuoteRow{TsNs: 6, Pair: "BTC/USD", Bid: testutil.Ptr(math.NaN()), Ask: testutil.Ptr(11)},
	}
	data := testutil.ParquetBytes(t, new(testutil.MinimalQuoteRow), rows)

	quotes, err := ingestion.LoadParquetBytes("kraken_spot.parquet", data, ingestion.LoadOptions{Venue: "kraken"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d", len(quotes))
	}
	first, second := quotes[0], quotes[1]
	if first.Venue != "kraken" {
		t.Fatalf("venue = %s", first.Venue)
	}
	if first.Ask.Valid || first.BidSize.Valid || first.AskSize.Valid || first.FundingRate.Valid {
		t.Fatalf("absent fields present: %+v", first)
	}
	if second.Bid.Valid {
		t.Fatalf("NaN bid must load as absent, got %v", second.Bid)
	}
}

func TestLoadParquetBytes_NoVenueAnywhere(t *testing.T) {
	rows := []interface{}{testutil.MinimalQuoteRow{TsNs: 1, Pair: "BTC/USD", Bid: testutil.Ptr(1), Ask: testutil.Ptr(2)}}
	data := testutil.ParquetBytes(t, new(testutil.MinimalQuoteRow), rows)

	_, err := ingestion.LoadParquetBytes("anon.parquet", data, ingestion.LoadOptions{})
	if err == nil || !strings.Contains(err.Error(), "venue") {
		t.Fatalf("expected venue error, got %v", err)
	}
}

type timestampOnlyRow struct {
	TsNs int64  `parquet:"name=ts_ns, type=INT64"`
	Pair string `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func TestLoadParquetBytes_MissingRequiredColumn(t *testing.T) {
	data := testutil.ParquetBytes(t, new(timestampOnlyRow), []interface{}{timestampOnlyRow{TsNs: 1, Pair: "BTC/USD"}})

	_, err := ingestion.LoadParquetBytes("x_1.parquet", data, ingestion.LoadOptions{Venue: "x"})
	if err == nil || !strings.Contains(err.Error(), `"bid"`) {
		t.Fatalf("expected missing bid column error, got %v", err)
	}
}

func TestLoadParquetBytes_NegativeValueIsFatal(t *testing.T) {
	rows := []interface{}{
		testutil.MinimalQuoteRow{TsNs: 1, Pair: "BTC/USD", Bid: testutil.Ptr(1), Ask: testutil.Ptr(2)},
		testutil.MinimalQuoteRow{TsNs: 2, Pair: "BTC/USD", Bid: testutil.Ptr(-1), Ask: testutil.Ptr(2)},
	}
	data := testutil.ParquetBytes(t, new(testutil.MinimalQuoteRow), rows)

	_, err := ingestion.LoadParquetBytes("bad.parquet", data, ingestion.LoadOptions{Venue: "x"})
	if err == nil || !strings.Contains(err.Error(), "bad.parquet: row 1") {
		t.Fatalf("expected row-level error naming the file, got %v", err)
	}
}

func TestLoadParquetFile_SymbolMapTranslates(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteQuoteLog(t, dir, "hyperliquid_spot.parquet",
		testutil.Quote("hyperliquid", "@142", 1, 1, 2, 1, 1))

	native := "@142"
	symbols := ingestion.NewSymbolMap(map[string]map[string]*string{"BTC/USDC": {"hyperliquid": &native}})
	quotes, err := ingestion.LoadParquetFile(path, ingestion.LoadOptions{Symbols: symbols})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quotes[0].Pair != "BTC/USDC" {
		t.Fatalf("pair = %s", quotes[0].Pair)
	}
}

func TestLoader_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteQuoteLog(t, dir, "b_2.parquet", testutil.Quote("b", "BTC/USDT", 2, 1, 2, 1, 1))
	testutil.WriteQuoteLog(t, dir, "a_1.parquet", testutil.Quote("a", "BTC/USDT", 1, 1, 2, 1, 1))

	files, err := ingestion.ResolveLocal(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a_1.parquet" {
		t.Fatalf("files = %v", files)
	}

	loader := ingestion.NewLoader(nil, nil, nil)
	quotes, err := loader.Load(context.Background(), ingestion.Source{Path: filepath.Join(dir, "*.parquet")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(quotes) != 2 || quotes[0].Venue != "a" {
		t.Fatalf("quotes = %+v", quotes)
	}

	if _, err := ingestion.ResolveLocal(filepath.Join(dir, "*.csv")); err == nil {
		t.Fatal("expected error for empty glob")
	}
}

func TestVenueFromFilename(t *testing.T) {
	cases := map[string]string{
		"data/binanceus_20240101.parquet": "binanceus",
		"coinbase_x_y.parquet":            "coinbase",
		"nounderscore.parquet":            "",
		"_leading.parquet":                "",
	}
	for in, want := range cases {
		if got := ingestion.VenueFromFilename(in); got != want {
			t.Errorf("VenueFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func TestLoader_S3Prefix(t *testing.T) {
	row := func(ts int64) interface{} {
		return testutil.RowFromQuote(testutil.Quote("kraken", "BTC/USD", ts, 1, 2, 1, 1))
	}
	fake := &fakeS3{objects: map[string][]byte{
		"logs/kraken_2.parquet": testutil.ParquetBytes(t, new(testutil.QuoteRow), []interface{}{row(2)}),
		"logs/kraken_1.parquet": testutil.ParquetBytes(t, new(testutil.QuoteRow), []interface{}{row(1)}),
		"logs/readme.txt":       []byte("ignored"),
	}}

	fetcher := ingestion.NewS3FetcherWithClient(fake)
	keys, err := fetcher.List(context.Background(), "bucket", "logs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "logs/kraken_1.parquet" {
		t.Fatalf("keys = %v", keys)
	}

	loader := ingestion.NewLoader(nil, fetcher, nil)
	quotes, err := loader.Load(context.Background(), ingestion.Source{Bucket: "bucket", Prefix: "logs/"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(quotes) != 2 || quotes[0].Timestamp != 1 || quotes[1].Timestamp != 2 {
		t.Fatalf("quotes = %+v", quotes)
	}
}
