package ingestion

import (
	"QuoteLedger/internal/event"
	"fmt"
	"math"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
)

// Column names of a quote log.
const (
	ColTimestamp   = "ts_ns"
	ColPair        = "pair"
	ColBid         = "bid"
	ColAsk         = "ask"
	ColBidSize     = "bid_size"
	ColAskSize     = "ask_size"
	ColFundingRate = "funding_rate"
	ColVenue       = "venue"
)

var requiredColumns = []string{ColTimestamp, ColPair, ColBid, ColAsk}

// LoadOptions controls how one log file is interpreted.
type LoadOptions struct {
	// Venue is used for rows without a venue column or value.
	Venue string
	// Symbols maps venue-native pair identifiers to canonical pairs.
	Symbols *SymbolMap
}

// LoadParquetFile reads every quote in a local parquet log, in file order.
func LoadParquetFile(path string, opts LoadOptions) ([]event.Quote, error) {
	pf, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer pf.Close()
	return loadParquet(path, pf, opts)
}

// LoadParquetBytes reads a parquet log already held in memory.
func LoadParquetBytes(name string, data []byte, opts LoadOptions) ([]event.Quote, error) {
	pf, err := buffer.NewBufferFile(data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return loadParquet(name, pf, opts)
}

func loadParquet(name string, pf source.ParquetFile, opts LoadOptions) ([]event.Quote, error) {
	pr, err := reader.NewParquetColumnReader(pf, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: read footer: %w", name, err)
	}
	defer pr.ReadStop()

	numRows := pr.GetNumRows()
	columns := make(map[string][]interface{}, len(pr.SchemaHandler.ValueColumns))
	for _, path := range pr.SchemaHandler.ValueColumns {
		col := pr.SchemaHandler.GetExName(int(pr.SchemaHandler.MapIndex[path]))
		values, _, _, err := pr.ReadColumnByPath(path, numRows)
		if err != nil {
			return nil, fmt.Errorf("%s: read column %s: %w", name, col, err)
		}
		if numRows > 0 && int64(len(values)) != numRows {
			return nil, fmt.Errorf("%s: column %s has %d values, want %d", name, col, len(values), numRows)
		}
		columns[col] = values
	}

	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("%s: missing required column %q", name, col)
		}
	}
	venues, hasVenue := columns[ColVenue]
	if !hasVenue && opts.Venue == "" {
		return nil, fmt.Errorf("%s: no venue column and no venue configured", name)
	}

	quotes := make([]event.Quote, 0, numRows)
	for i := 0; i < int(numRows); i++ {
		q, err := buildQuote(columns, i, venues, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", name, i, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func buildQuote(columns map[string][]interface{}, row int, venues []interface{}, opts LoadOptions) (event.Quote, error) {
	ts, ok := asInt64(columns[ColTimestamp][row])
	if !ok {
		return event.Quote{}, fmt.Errorf("%s is null or not an integer", ColTimestamp)
	}
	pair, ok := asString(columns[ColPair][row])
	if !ok || pair == "" {
		return event.Quote{}, fmt.Errorf("%s is null or empty", ColPair)
	}

	venue := opts.Venue
	if venues != nil {
		if v, ok := asString(venues[row]); ok && v != "" {
			venue = v
		}
	}
	if venue == "" {
		return event.Quote{}, fmt.Errorf("venue is null and no venue configured")
	}

	q := event.Quote{
		Venue:     venue,
		Pair:      opts.Symbols.Canonical(venue, pair),
		Timestamp: ts,
	}
	var err error
	if q.Bid, err = optionalColumn(columns, ColBid, row); err != nil {
		return event.Quote{}, err
	}
	if q.Ask, err = optionalColumn(columns, ColAsk, row); err != nil {
		return event.Quote{}, err
	}
	if q.BidSize, err = optionalColumn(columns, ColBidSize, row); err != nil {
		return event.Quote{}, err
	}
	if q.AskSize, err = optionalColumn(columns, ColAskSize, row); err != nil {
		return event.Quote{}, err
	}
	if q.FundingRate, err = optionalColumn(columns, ColFundingRate, row); err != nil {
		return event.Quote{}, err
	}
	if err := q.Validate(); err != nil {
		return event.Quote{}, err
	}
	return q, nil
}

// optionalColumn reads a nullable real. A missing column reads as absent.
func optionalColumn(columns map[string][]interface{}, col string, row int) (event.OptFloat, error) {
	values, ok := columns[col]
	if !ok || values[row] == nil {
		return event.None(), nil
	}
	v, ok := asFloat(values[row])
	if !ok {
		return event.None(), fmt.Errorf("%s has non-numeric value %v", col, values[row])
	}
	if math.IsNaN(v) {
		return event.None(), nil
	}
	return event.Some(v), nil
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

func asString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
