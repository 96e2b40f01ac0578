package ingestion

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/observability"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Source is one configured input location: a local file, directory or glob,
// or an S3 bucket prefix.
type Source struct {
	Venue  string
	Path   string
	Bucket string
	Prefix string
}

func (s Source) String() string {
	if s.Bucket != "" {
		return fmt.Sprintf("s3://%s/%s", s.Bucket, s.Prefix)
	}
	return s.Path
}

// Loader reads every file of a Source into quotes.
type Loader struct {
	symbols *SymbolMap
	s3      *S3Fetcher
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewLoader creates a loader. s3 and metrics may be nil.
func NewLoader(symbols *SymbolMap, s3 *S3Fetcher, metrics *observability.Metrics) *Loader {
	return &Loader{
		symbols: symbols,
		s3:      s3,
		metrics: metrics,
		logger:  observability.NewLogger("loader"),
	}
}

// Load returns the quotes of every file in src, files in name order.
func (l *Loader) Load(ctx context.Context, src Source) ([]event.Quote, error) {
	if src.Bucket != "" {
		return l.loadS3(ctx, src)
	}
	files, err := ResolveLocal(src.Path)
	if err != nil {
		return nil, err
	}

	var quotes []event.Quote
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		batch, err := LoadParquetFile(file, l.options(src, file))
		if err != nil {
			return nil, err
		}
		l.observe(src.String(), file, batch, time.Since(start))
		quotes = append(quotes, batch...)
	}
	return quotes, nil
}

func (l *Loader) loadS3(ctx context.Context, src Source) ([]event.Quote, error) {
	if l.s3 == nil {
		return nil, fmt.Errorf("source %s: no s3 client configured", src)
	}
	keys, err := l.s3.List(ctx, src.Bucket, src.Prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("source %s: no parquet objects", src)
	}

	var quotes []event.Quote
	for _, key := range keys {
		start := time.Now()
		data, err := l.s3.Fetch(ctx, src.Bucket, key)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("s3://%s/%s", src.Bucket, key)
		batch, err := LoadParquetBytes(name, data, l.options(src, path.Base(key)))
		if err != nil {
			return nil, err
		}
		l.observe(src.String(), name, batch, time.Since(start))
		quotes = append(quotes, batch...)
	}
	return quotes, nil
}

func (l *Loader) options(src Source, file string) LoadOptions {
	venue := src.Venue
	if venue == "" {
		venue = VenueFromFilename(file)
	}
	return LoadOptions{Venue: venue, Symbols: l.symbols}
}

func (l *Loader) observe(source, file string, quotes []event.Quote, elapsed time.Duration) {
	l.logger.Info().
		Str("file", file).
		Int("quotes", len(quotes)).
		Dur("elapsed", elapsed).
		Msg("loaded quote log")

	if l.metrics == nil {
		return
	}
	l.metrics.LoadDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	for _, q := range quotes {
		l.metrics.QuotesLoaded.WithLabelValues(q.Venue).Inc()
	}
}

// ResolveLocal expands a file, directory or glob into parquet files, sorted.
func ResolveLocal(p string) ([]string, error) {
	if p == "" {
		return nil, fmt.Errorf("empty source path")
	}
	info, err := os.Stat(p)
	switch {
	case err == nil && info.IsDir():
		p = filepath.Join(p, "*.parquet")
	case err == nil:
		return []string{p}, nil
	}

	files, err := filepath.Glob(p)
	if err != nil {
		return nil, fmt.Errorf("bad source pattern %q: %w", p, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files match %q", p)
	}
	sort.Strings(files)
	return files, nil
}

// VenueFromFilename returns the prefix before the first underscore of a
// "{venue}_*.parquet" log name, or "" when the name has no such prefix.
func VenueFromFilename(name string) string {
	base := filepath.Base(name)
	i := strings.IndexByte(base, '_')
	if i <= 0 {
		return ""
	}
	return base[:i]
}
